// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/normalize"
)

// RequestResult is a created Jellyseerr request.
type RequestResult struct {
	ID     int                  `json:"id"`
	Status models.RequestStatus `json:"status"`
}

// JellyseerrClient talks to the Jellyseerr v1 API. A disabled client
// answers every call with ErrNotConfigured.
type JellyseerrClient struct {
	t        *transport
	enabled  bool
	imageURL string
}

// NewJellyseerrClient creates a Jellyseerr client. imageBaseURL is used to
// build poster URLs from the TMDB paths Jellyseerr returns.
func NewJellyseerrClient(cfg config.JellyseerrConfig, imageBaseURL string) *JellyseerrClient {
	t := newTransport("jellyseerr", cfg.URL, cfg.Timeout)
	apiKey := cfg.APIKey
	t.decorate = func(r *http.Request) {
		r.Header.Set("X-Api-Key", apiKey)
	}
	return &JellyseerrClient{
		t:        t,
		enabled:  cfg.Enabled && cfg.URL != "",
		imageURL: strings.TrimSuffix(imageBaseURL, "/"),
	}
}

// Enabled reports whether the client is configured.
func (c *JellyseerrClient) Enabled() bool {
	return c != nil && c.enabled
}

// Status returns the availability of a title. Titles Jellyseerr has never
// seen report RequestStatusUnknown.
func (c *JellyseerrClient) Status(ctx context.Context, mt models.MediaType, id int) (models.RequestStatus, error) {
	if !c.Enabled() {
		return models.RequestStatusUnknown, ErrNotConfigured
	}
	var resp struct {
		MediaInfo *struct {
			Status models.RequestStatus `json:"status"`
		} `json:"mediaInfo"`
	}
	err := c.t.do(ctx, request{
		operation: "status",
		path:      fmt.Sprintf("/api/v1/%s/%d", mt, id),
	}, &resp)
	if IsNotFound(err) {
		return models.RequestStatusUnknown, nil
	}
	if err != nil {
		return models.RequestStatusUnknown, err
	}
	if resp.MediaInfo == nil || resp.MediaInfo.Status == 0 {
		return models.RequestStatusUnknown, nil
	}
	return resp.MediaInfo.Status, nil
}

// Search runs a Jellyseerr search and keeps movie and TV results.
func (c *JellyseerrClient) Search(ctx context.Context, query string) ([]models.Candidate, error) {
	if !c.Enabled() {
		return nil, ErrNotConfigured
	}
	q := url.Values{}
	q.Set("query", query)
	q.Set("page", "1")

	var resp struct {
		Results []normalize.Record `json:"results"`
	}
	if err := c.t.do(ctx, request{operation: "search", path: "/api/v1/search", query: q}, &resp); err != nil {
		return nil, err
	}

	out := make([]models.Candidate, 0, len(resp.Results))
	for _, r := range resp.Results {
		ref, ok := r.MediaRef("")
		if !ok || ref.ExternalID == 0 || !ref.MediaType.Valid() {
			continue
		}
		cand := models.Candidate{
			MediaRef:    ref,
			Overview:    r.String("overview"),
			VoteAverage: r.Float("voteAverage", "vote_average"),
			VoteCount:   r.Int("voteCount", "vote_count"),
			Popularity:  r.Float("popularity"),
			GenreIDs:    r.Ints("genreIds"),
		}
		if p := r.String("posterPath", "poster_path"); p != "" && c.imageURL != "" {
			cand.PosterURL = c.imageURL + "/w500" + p
		}
		if p := r.String("backdropPath", "backdrop_path"); p != "" && c.imageURL != "" {
			cand.BackdropURL = c.imageURL + "/w1280" + p
		}
		out = append(out, cand)
	}
	return out, nil
}

// Request asks Jellyseerr to acquire a title. Series requests cover all
// seasons.
func (c *JellyseerrClient) Request(ctx context.Context, mt models.MediaType, id int) (*RequestResult, error) {
	if !c.Enabled() {
		return nil, ErrNotConfigured
	}
	body := map[string]any{"mediaType": string(mt), "mediaId": id}
	if mt == models.MediaTypeTV {
		body["seasons"] = "all"
	}

	var resp RequestResult
	err := c.t.do(ctx, request{
		operation: "request",
		method:    http.MethodPost,
		path:      "/api/v1/request",
		body:      body,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
