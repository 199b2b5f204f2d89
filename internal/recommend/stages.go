// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package recommend

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/goccy/go-json"

	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/normalize"
	"github.com/tomtom215/marquee/internal/upstream"
)

// maxOverview truncates overviews in selection prompts.
const maxOverview = 220

// Ranked is a candidate with the score and reason a selection stage gave
// it. Stages consume and produce Ranked slices so they can be chained.
type Ranked struct {
	Candidate models.Candidate
	Score     int
	Reason    string
}

// StageInput is what a selection stage sees.
type StageInput struct {
	MediaType  models.MediaType
	Profile    models.TasteProfile
	Candidates []Ranked
	Blocked    []models.MediaRef
}

// Stage narrows a ranked pool.
type Stage interface {
	Name() string
	Select(ctx context.Context, in StageInput) []Ranked
}

// CuratorStage takes a broad pool and keeps a shortlist using soft
// criteria.
type CuratorStage struct {
	llm  LLM
	size int
}

// NewCuratorStage creates a curator keeping up to size candidates.
func NewCuratorStage(llm LLM, size int) *CuratorStage {
	return &CuratorStage{llm: llm, size: size}
}

func (s *CuratorStage) Name() string { return "curator" }

func (s *CuratorStage) Select(ctx context.Context, in StageInput) []Ranked {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a film curator building a weekly watchlist of %s.\n", kindPlural(in.MediaType))
	b.WriteString("Viewer taste:\n")
	b.WriteString(in.Profile.Describe())
	fmt.Fprintf(&b, "\n\nFrom the candidates below, shortlist up to %d that this viewer could plausibly enjoy.\n", s.size)
	b.WriteString("Be generous: favour variety and quality over strict genre fit.\n\n")
	writeCandidates(&b, in.Candidates, true)
	b.WriteString(selectionInstructions)
	return selectWithLLM(ctx, s.llm, s.Name(), b.String(), in, s.size)
}

// CriticStage makes the final, strict selection and screens against the
// user's blocked titles.
type CriticStage struct {
	llm  LLM
	size int
}

// NewCriticStage creates a critic keeping up to size candidates.
func NewCriticStage(llm LLM, size int) *CriticStage {
	return &CriticStage{llm: llm, size: size}
}

func (s *CriticStage) Name() string { return "critic" }

func (s *CriticStage) Select(ctx context.Context, in StageInput) []Ranked {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a demanding critic choosing this week's %d best %s for one viewer.\n", s.size, kindPlural(in.MediaType))
	b.WriteString("Viewer taste:\n")
	b.WriteString(in.Profile.Describe())
	b.WriteString("\n\n")
	if len(in.Blocked) > 0 {
		b.WriteString("The viewer has explicitly rejected these titles. Drop any candidate that is one of them or is close to them in premise or style:\n")
		for _, ref := range in.Blocked {
			b.WriteString("- ")
			b.WriteString(refLabel(ref))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("Shortlist:\n")
	writeCandidates(&b, in.Candidates, false)
	b.WriteString(selectionInstructions)

	picked := selectWithLLM(ctx, s.llm, s.Name(), b.String(), in, s.size)
	return dropBlocked(picked, in.Blocked)
}

const selectionInstructions = `
Respond ONLY with a JSON array ordered best first. Each element must be
{"id": <candidate id>, "score": <0-100>, "reason": "<one sentence for the viewer>"}.
Only use ids from the list above.
`

func kindPlural(mt models.MediaType) string {
	if mt == models.MediaTypeTV {
		return "TV shows"
	}
	return "movies"
}

func refLabel(ref models.MediaRef) string {
	if ref.ReleaseYear != "" {
		return fmt.Sprintf("%s (%s)", ref.Title, ref.ReleaseYear)
	}
	return ref.Title
}

func writeCandidates(b *strings.Builder, pool []Ranked, withOverview bool) {
	for i := range pool {
		c := &pool[i].Candidate
		fmt.Fprintf(b, "[%d] %s", c.ExternalID, refLabel(c.MediaRef))
		if len(c.Genres) > 0 {
			fmt.Fprintf(b, " | %s", strings.Join(c.Genres, ", "))
		}
		if c.VoteAverage > 0 {
			fmt.Fprintf(b, " | %.1f", c.VoteAverage)
		}
		if withOverview && c.Overview != "" {
			fmt.Fprintf(b, " | %s", truncateOverview(c.Overview))
		}
		b.WriteString("\n")
	}
}

// truncateOverview cuts o to at most maxOverview bytes without splitting a
// UTF-8 sequence.
func truncateOverview(o string) string {
	if len(o) <= maxOverview {
		return o
	}
	cut := maxOverview
	for cut > 0 && !utf8.RuneStart(o[cut]) {
		cut--
	}
	return strings.TrimSpace(o[:cut]) + "..."
}

// selectWithLLM runs one selection prompt and maps the answer back onto
// the pool by ID. IDs outside the pool are ignored. When the LLM fails or
// answers with nothing usable, the pool is ranked by rating instead.
func selectWithLLM(ctx context.Context, llm LLM, stage, prompt string, in StageInput, size int) []Ranked {
	if len(in.Candidates) == 0 {
		return nil
	}
	log := logging.Ctx(ctx).With().Str("stage", stage).Str("media_type", string(in.MediaType)).Logger()

	text, err := llm.Generate(ctx, prompt)
	if err != nil {
		log.Warn().Err(err).Msg("Selection stage failed, ranking by rating")
		return rankByRating(in.Candidates, size)
	}
	picked, err := parseSelection(text, in.Candidates)
	if err != nil || len(picked) == 0 {
		log.Warn().Err(err).Msg("Unusable selection output, ranking by rating")
		return rankByRating(in.Candidates, size)
	}
	if len(picked) > size {
		picked = picked[:size]
	}
	log.Debug().Int("in", len(in.Candidates)).Int("out", len(picked)).Msg("Selection stage done")
	return picked
}

func parseSelection(text string, pool []Ranked) ([]Ranked, error) {
	var recs []normalize.Record
	if err := json.Unmarshal([]byte(upstream.ExtractJSON(text)), &recs); err != nil {
		return nil, fmt.Errorf("decode selection: %w", err)
	}

	byID := make(map[int]int, len(pool))
	for i := range pool {
		byID[pool[i].Candidate.ExternalID] = i
	}

	out := make([]Ranked, 0, len(recs))
	used := make(map[int]bool, len(recs))
	for _, r := range recs {
		id := r.Int("id", "tmdb_id", "external_id")
		idx, ok := byID[id]
		if !ok || used[id] {
			continue
		}
		used[id] = true
		picked := pool[idx]
		picked.Score = clampScore(r.Int("score", "confidence"))
		if reason := strings.TrimSpace(r.String("reason")); reason != "" {
			picked.Reason = reason
		}
		out = append(out, picked)
	}
	return out, nil
}

func rankByRating(pool []Ranked, size int) []Ranked {
	out := append([]Ranked(nil), pool...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Candidate.VoteAverage > out[j].Candidate.VoteAverage
	})
	if len(out) > size {
		out = out[:size]
	}
	return out
}

func dropBlocked(in []Ranked, blocked []models.MediaRef) []Ranked {
	if len(blocked) == 0 {
		return in
	}
	set := NewExclusionSet()
	for _, ref := range blocked {
		set.Add(ref)
	}
	out := in[:0:0]
	for i := range in {
		if !set.Contains(in[i].Candidate.MediaRef) {
			out = append(out, in[i])
		}
	}
	return out
}

func clampScore(n int) int {
	switch {
	case n < 0:
		return 0
	case n > 100:
		return 100
	}
	return n
}

func toRanked(pool []models.Candidate) []Ranked {
	out := make([]Ranked, len(pool))
	for i := range pool {
		out[i] = Ranked{Candidate: pool[i], Reason: pool[i].Reason}
	}
	return out
}

func fromRanked(ranked []Ranked) []models.Candidate {
	out := make([]models.Candidate, len(ranked))
	for i := range ranked {
		out[i] = ranked[i].Candidate
		out[i].Reason = ranked[i].Reason
	}
	return out
}
