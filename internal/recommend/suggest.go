// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package recommend

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/normalize"
	"github.com/tomtom215/marquee/internal/upstream"
)

// SuggestRequest describes one LLM batch.
type SuggestRequest struct {
	Profile   models.TasteProfile
	MediaType models.MediaType
	Genre     string
	Count     int
	Avoid     []string
}

// Suggester asks the LLM for free-text recommendations.
type Suggester struct {
	llm LLM
}

// NewSuggester creates a suggester.
func NewSuggester(llm LLM) *Suggester {
	return &Suggester{llm: llm}
}

// Suggest returns the LLM's suggestions. Transport failures and malformed
// output are logged and yield no suggestions.
func (s *Suggester) Suggest(ctx context.Context, req SuggestRequest) []Suggestion {
	text, err := s.llm.Generate(ctx, suggestPrompt(req))
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("LLM suggestion request failed")
		return nil
	}
	out, err := ParseSuggestions(text, req.MediaType)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Malformed LLM suggestions, treating as empty")
		return nil
	}
	return out
}

func suggestPrompt(req SuggestRequest) string {
	kind := "movie"
	if req.MediaType == models.MediaTypeTV {
		kind = "TV show"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert %s recommender. Suggest %d %ss for this viewer.\n\n", kind, req.Count, kind)
	b.WriteString("Viewer taste:\n")
	b.WriteString(req.Profile.Describe())
	b.WriteString("\n\n")
	if g := strings.TrimSpace(req.Genre); g != "" {
		fmt.Fprintf(&b, "Every suggestion must belong to the genre %q.\n", g)
	} else {
		b.WriteString("Vary the genres.\n")
	}
	if len(req.Avoid) > 0 {
		b.WriteString("Do NOT suggest any of these titles, the viewer already knows them:\n")
		b.WriteString(strings.Join(req.Avoid, "; "))
		b.WriteString("\n")
	}
	b.WriteString(`
Respond ONLY with a JSON array. Each element must have the keys
"title", "year" (four digit release year) and "reason" (one sentence).
`)
	return b.String()
}

// ParseSuggestions decodes a JSON array of {title, year, reason} objects,
// tolerating markdown fences and numeric or string years. Entries without a
// title are skipped. mt is applied to every suggestion.
func ParseSuggestions(text string, mt models.MediaType) ([]Suggestion, error) {
	raw := upstream.ExtractJSON(text)
	var recs []normalize.Record
	if err := json.Unmarshal([]byte(raw), &recs); err != nil {
		return nil, fmt.Errorf("decode suggestions: %w", err)
	}

	out := make([]Suggestion, 0, len(recs))
	for _, r := range recs {
		title := strings.TrimSpace(r.String("title", "name"))
		if title == "" {
			metrics.SuggestionsTotal.WithLabelValues("malformed").Inc()
			continue
		}
		out = append(out, Suggestion{
			Title:     title,
			Year:      normalize.Year(r.String("year", "release_year", "releaseYear")),
			MediaType: mt,
			Reason:    strings.TrimSpace(r.String("reason", "why")),
		})
	}
	return out, nil
}
