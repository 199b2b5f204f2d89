// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package models

import (
	"fmt"
	"strings"
	"time"
)

// YearRange is an inclusive range of release years.
type YearRange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Contains reports whether year lies inside the range. Zero bounds are open.
func (r *YearRange) Contains(year int) bool {
	if r == nil {
		return true
	}
	if r.From > 0 && year < r.From {
		return false
	}
	if r.To > 0 && year > r.To {
		return false
	}
	return true
}

// TasteProfile summarises what a user likes for one media type.
type TasteProfile struct {
	MediaType        MediaType  `json:"media_type"`
	Genres           []string   `json:"genres"`
	Keywords         []string   `json:"keywords"`
	YearRange        *YearRange `json:"year_range,omitempty"`
	MinRating        float64    `json:"min_rating"`
	NarrativeSummary string     `json:"narrative_summary"`
	SourceCount      int        `json:"source_count"`
	GeneratedAt      time.Time  `json:"generated_at"`
}

// NeutralProfile applies no filters. It is served while a real profile is
// being computed and whenever the LLM answer cannot be parsed.
func NeutralProfile(mt MediaType) TasteProfile {
	return TasteProfile{MediaType: mt}
}

// IsNeutral reports whether the profile carries no preference signal.
func (p *TasteProfile) IsNeutral() bool {
	return len(p.Genres) == 0 && len(p.Keywords) == 0 && p.YearRange == nil &&
		p.MinRating == 0 && p.NarrativeSummary == ""
}

// Describe renders the profile as prompt text.
func (p *TasteProfile) Describe() string {
	if p.IsNeutral() {
		return "No strong preferences known yet."
	}
	var b strings.Builder
	if len(p.Genres) > 0 {
		fmt.Fprintf(&b, "Favourite genres: %s.\n", strings.Join(p.Genres, ", "))
	}
	if len(p.Keywords) > 0 {
		fmt.Fprintf(&b, "Recurring themes: %s.\n", strings.Join(p.Keywords, ", "))
	}
	if p.YearRange != nil {
		fmt.Fprintf(&b, "Preferred release years: %d-%d.\n", p.YearRange.From, p.YearRange.To)
	}
	if p.MinRating > 0 {
		fmt.Fprintf(&b, "Minimum rating: %.1f.\n", p.MinRating)
	}
	if p.NarrativeSummary != "" {
		b.WriteString(p.NarrativeSummary)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

// WeeklyWatchlistRecord is one user's picks for one ISO week.
type WeeklyWatchlistRecord struct {
	UserID       string      `json:"user_id"`
	WeekStart    time.Time   `json:"week_start"`
	Movies       []Candidate `json:"movies"`
	Shows        []Candidate `json:"shows"`
	TasteProfile string      `json:"taste_profile"`
	GeneratedAt  time.Time   `json:"generated_at"`
}

// Stale reports whether the record must be regenerated at now.
func (r *WeeklyWatchlistRecord) Stale(now time.Time, maxAge time.Duration) bool {
	return r == nil || now.Sub(r.GeneratedAt) > maxAge
}

// WeekStart returns Monday 00:00 UTC of the ISO week containing t.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	d := t.AddDate(0, 0, -offset)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// RedemptionCandidate is a blocked title the advisor thinks deserves a second
// look.
type RedemptionCandidate struct {
	Media      MediaRef  `json:"media"`
	BlockedAt  time.Time `json:"blocked_at"`
	AppealText string    `json:"appeal_text"`
	Confidence int       `json:"confidence"`
	Reasons    []string  `json:"reasons"`
}
