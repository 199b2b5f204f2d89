// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package models

import (
	"strings"
	"time"
)

// MediaType distinguishes movies from TV shows.
type MediaType string

const (
	MediaTypeMovie MediaType = "movie"
	MediaTypeTV    MediaType = "tv"
)

// ParseMediaType accepts the spellings used by Jellyfin ("Movie", "Series"),
// TMDB and Jellyseerr ("movie", "tv") and the API ("show", "series").
func ParseMediaType(s string) (MediaType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "movie", "movies", "film":
		return MediaTypeMovie, true
	case "tv", "series", "show", "shows", "tvshow":
		return MediaTypeTV, true
	}
	return "", false
}

// Valid reports whether m is movie or tv.
func (m MediaType) Valid() bool {
	return m == MediaTypeMovie || m == MediaTypeTV
}

func (m MediaType) String() string { return string(m) }

// MediaRef is the minimal identity of a title.
type MediaRef struct {
	ExternalID  int       `json:"external_id"`
	Title       string    `json:"title"`
	MediaType   MediaType `json:"media_type"`
	ReleaseYear string    `json:"release_year,omitempty"`
}

// Candidate is a MediaRef enriched with catalog metadata. It may only be shown
// to a user once verification has produced a non-zero ExternalID.
type Candidate struct {
	MediaRef
	Overview    string   `json:"overview,omitempty"`
	PosterURL   string   `json:"poster_url,omitempty"`
	BackdropURL string   `json:"backdrop_url,omitempty"`
	VoteAverage float64  `json:"vote_average"`
	VoteCount   int      `json:"vote_count,omitempty"`
	Popularity  float64  `json:"-"`
	GenreIDs    []int    `json:"genre_ids,omitempty"`
	Genres      []string `json:"genres,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Reason      string   `json:"reason,omitempty"`
}

// AnimationGenreID is TMDB's genre ID for Animation, shared by movies and TV.
const AnimationGenreID = 16

// Valid reports whether the candidate passed verification.
func (c *Candidate) Valid() bool {
	return c != nil && c.ExternalID > 0 && c.MediaType.Valid()
}

// IsAnimated reports whether the candidate carries the Animation genre.
func (c *Candidate) IsAnimated() bool {
	for _, id := range c.GenreIDs {
		if id == AnimationGenreID {
			return true
		}
	}
	for _, g := range c.Genres {
		if strings.EqualFold(g, "animation") {
			return true
		}
	}
	return false
}

// HasGenre reports whether the candidate belongs to genre (case-insensitive).
// TMDB TV genres combine names ("Action & Adventure"), so a partial word match
// is accepted.
func (c *Candidate) HasGenre(genre string) bool {
	want := strings.ToLower(strings.TrimSpace(genre))
	if want == "" {
		return true
	}
	for _, g := range c.Genres {
		have := strings.ToLower(g)
		if have == want || strings.Contains(have, want) {
			return true
		}
	}
	return false
}

// MediaDetails holds the enrichment captured for a title the user knows,
// including the precomputed similar/recommended ID lists used for anchor
// discovery.
type MediaDetails struct {
	ExternalID      int       `json:"external_id"`
	MediaType       MediaType `json:"media_type"`
	Title           string    `json:"title"`
	Genres          []string  `json:"genres,omitempty"`
	Keywords        []string  `json:"keywords,omitempty"`
	Cast            []string  `json:"cast,omitempty"`
	Similar         []int     `json:"similar,omitempty"`
	Recommendations []int     `json:"recommendations,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// RequestStatus mirrors Jellyseerr's media status codes.
type RequestStatus int

const (
	RequestStatusUnknown            RequestStatus = 1
	RequestStatusPending            RequestStatus = 2
	RequestStatusProcessing         RequestStatus = 3
	RequestStatusPartiallyAvailable RequestStatus = 4
	RequestStatusAvailable          RequestStatus = 5
)

// AlreadyHandled reports whether the title is requested or present in the
// library and should not be suggested again.
func (s RequestStatus) AlreadyHandled() bool {
	switch s {
	case RequestStatusPending, RequestStatusProcessing, RequestStatusPartiallyAvailable, RequestStatusAvailable:
		return true
	}
	return false
}

func (s RequestStatus) String() string {
	switch s {
	case RequestStatusPending:
		return "pending"
	case RequestStatusProcessing:
		return "processing"
	case RequestStatusPartiallyAvailable:
		return "partially_available"
	case RequestStatusAvailable:
		return "available"
	default:
		return "unknown"
	}
}
