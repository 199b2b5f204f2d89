// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package recommend

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/tomtom215/marquee/internal/models"
)

func stagePool() []Ranked {
	low := movie(1, "Low Rated", "2001")
	low.VoteAverage = 5.1
	mid := movie(2, "Mid Rated", "2002")
	mid.VoteAverage = 6.8
	high := movie(3, "High Rated", "2003")
	high.VoteAverage = 8.4
	return toRanked([]models.Candidate{low, mid, high})
}

func rankedIDs(in []Ranked) []int {
	out := make([]int, len(in))
	for i := range in {
		out[i] = in[i].Candidate.ExternalID
	}
	return out
}

func TestCuratorSelectsByID(t *testing.T) {
	llm := &fakeLLM{respond: func(string) (string, error) {
		return `[{"id": 2, "score": 91, "reason": "fits"}, {"id": 999, "score": 99}, {"id": 2, "score": 10}, {"id": 1, "score": 140}]`, nil
	}}
	got := NewCuratorStage(llm, 5).Select(context.Background(), StageInput{
		MediaType:  models.MediaTypeMovie,
		Candidates: stagePool(),
	})

	if ids := rankedIDs(got); len(ids) != 2 || ids[0] != 2 || ids[1] != 1 {
		t.Fatalf("Select() ids = %v, want [2 1]", ids)
	}
	if got[0].Score != 91 || got[0].Reason != "fits" {
		t.Errorf("first pick = %+v", got[0])
	}
	if got[1].Score != 100 {
		t.Errorf("score not clamped: %d", got[1].Score)
	}
	if !strings.Contains(llm.prompts[0], "[3] High Rated (2003)") {
		t.Error("prompt does not list candidates by id")
	}
}

func TestStagesFallBackToRating(t *testing.T) {
	tests := []struct {
		name    string
		respond func(string) (string, error)
	}{
		{"llm error", func(string) (string, error) { return "", errors.New("quota") }},
		{"unparseable", func(string) (string, error) { return "I like all of them", nil }},
		{"unknown ids only", func(string) (string, error) { return `[{"id": 42}]`, nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewCuratorStage(&fakeLLM{respond: tt.respond}, 2).Select(context.Background(), StageInput{
				MediaType:  models.MediaTypeMovie,
				Candidates: stagePool(),
			})
			if ids := rankedIDs(got); len(ids) != 2 || ids[0] != 3 || ids[1] != 2 {
				t.Errorf("fallback ids = %v, want [3 2]", ids)
			}
		})
	}
}

func TestCriticDropsBlocked(t *testing.T) {
	blocked := []models.MediaRef{movie(3, "High Rated", "2003").MediaRef}
	llm := &fakeLLM{respond: func(string) (string, error) {
		return `[{"id": 3, "score": 95}, {"id": 1, "score": 60}]`, nil
	}}
	got := NewCriticStage(llm, 5).Select(context.Background(), StageInput{
		MediaType:  models.MediaTypeMovie,
		Candidates: stagePool(),
		Blocked:    blocked,
	})
	if ids := rankedIDs(got); len(ids) != 1 || ids[0] != 1 {
		t.Errorf("critic ids = %v, want [1]", ids)
	}
	if !strings.Contains(llm.prompts[0], "explicitly rejected") || !strings.Contains(llm.prompts[0], "- High Rated (2003)") {
		t.Error("critic prompt does not list blocked titles")
	}
}

func TestSelectEmptyPool(t *testing.T) {
	llm := &fakeLLM{respond: func(string) (string, error) { return "[]", nil }}
	if got := NewCriticStage(llm, 5).Select(context.Background(), StageInput{MediaType: models.MediaTypeTV}); len(got) != 0 {
		t.Errorf("Select() = %v, want empty", got)
	}
	if llm.calls() != 0 {
		t.Error("empty pool must not call the LLM")
	}
}

func TestWriteCandidatesTruncatesOnRuneBoundary(t *testing.T) {
	tests := []struct {
		name     string
		overview string
	}{
		{"two byte runes", "a" + strings.Repeat("é", 200)},
		{"three byte runes", strings.Repeat("映画", 80)},
		{"four byte runes", "x" + strings.Repeat("🎬", 100)},
		{"ascii", strings.Repeat("plot ", 100)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := movie(9, "Long Overview", "2020")
			c.Overview = tt.overview

			var b strings.Builder
			writeCandidates(&b, toRanked([]models.Candidate{c}), true)
			out := b.String()
			if !utf8.ValidString(out) {
				t.Fatalf("prompt line is not valid UTF-8: %q", out)
			}
			if !strings.HasSuffix(strings.TrimSpace(out), "...") {
				t.Errorf("overview not marked as truncated: %q", out)
			}
			if got := truncateOverview(tt.overview); len(got) > maxOverview+len("...") {
				t.Errorf("truncated to %d bytes, want at most %d", len(got), maxOverview+3)
			}
		})
	}
}
