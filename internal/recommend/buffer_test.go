// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package recommend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/tomtom215/marquee/internal/cache"
	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/jobs"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/upstream"
)

type testPipeline struct {
	manager *BufferManager
	buffers *MemoryBuffers
	llm     *fakeLLM
	catalog *fakeCatalog
	store   *fakeStatuses
	jobs    *fakePublisher
}

func newTestPipeline(t *testing.T, cfg config.RecommendConfig, catalog *fakeCatalog, media *fakeMedia, respond func(string) (string, error)) *testPipeline {
	t.Helper()
	p := &testPipeline{
		llm:     &fakeLLM{respond: respond},
		catalog: catalog,
		store:   newFakeStatuses(),
		jobs:    &fakePublisher{},
	}
	if media == nil {
		media = &fakeMedia{}
	}
	deps := Deps{
		Statuses: p.store,
		Details:  newFakeDetails(),
		Media:    media,
		Catalog:  catalog,
		LLM:      p.llm,
		Jobs:     p.jobs,
	}

	taste := NewTasteProvider(cfg, deps)
	t.Cleanup(taste.Close)
	verifyStore := cache.NewMemoryStore("verify_test")
	t.Cleanup(func() { _ = verifyStore.Close() })
	p.buffers = NewMemoryBuffers(cfg.BufferTTL)
	t.Cleanup(p.buffers.Close)

	p.manager = NewBufferManager(
		cfg,
		NewExclusionBuilder(p.store, media, cfg.HistoryLimit),
		taste,
		NewSuggester(p.llm),
		NewVerifier(catalog, nil, verifyStore, cfg.VerifyCacheTTL, false),
		NewCandidateSource(cfg, deps),
		p.buffers,
	)
	return p
}

// suggestAll answers suggestion prompts with items and fails anything else.
func suggestAll(items ...models.Candidate) func(string) (string, error) {
	return func(prompt string) (string, error) {
		if strings.Contains(prompt, "recommender") {
			return suggestionsJSON(items...), nil
		}
		return "", errors.New("unexpected prompt")
	}
}

func dramaCatalog(n int) []models.Candidate {
	out := make([]models.Candidate, n)
	for i := range out {
		out[i] = movie(1000+i, fmt.Sprintf("Quiet Drama %c", 'A'+i), "2015", "Drama")
	}
	return out
}

func assertServable(t *testing.T, got []models.Candidate, excluded map[int]bool) {
	t.Helper()
	seen := map[int]bool{}
	for _, c := range got {
		if !c.Valid() {
			t.Errorf("unverified candidate served: %+v", c.MediaRef)
		}
		if excluded[c.ExternalID] {
			t.Errorf("excluded id %d served", c.ExternalID)
		}
		if seen[c.ExternalID] {
			t.Errorf("id %d served twice in one page", c.ExternalID)
		}
		seen[c.ExternalID] = true
	}
}

func TestBufferFreshUserDrama(t *testing.T) {
	cfg := testRecommendConfig()
	titles := dramaCatalog(15)
	p := newTestPipeline(t, cfg, &fakeCatalog{titles: titles}, nil, suggestAll(titles...))

	v := Viewer{UserID: "new-user", Session: testSession}
	f := Filter{MediaType: models.MediaTypeMovie, Genre: "drama"}

	page, err := p.manager.Next(context.Background(), v, f, 10)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if len(page) != 10 {
		t.Fatalf("len(page) = %d, want 10", len(page))
	}
	assertServable(t, page, nil)
	for _, c := range page {
		if c.MediaType != models.MediaTypeMovie || !c.HasGenre("Drama") {
			t.Errorf("candidate %q does not match the filter", c.Title)
		}
		if c.Reason == "" {
			t.Errorf("candidate %q lost its reason", c.Title)
		}
	}
	if p.llm.calls() != 1 {
		t.Errorf("LLM called %d times, want 1", p.llm.calls())
	}
	if n := p.jobs.count(jobs.TopicTasteRefresh); n != 1 {
		t.Errorf("taste refresh queued %d times, want 1", n)
	}

	rest := p.buffers.Load(f.key(v.UserID))
	if len(rest) != 5 {
		t.Fatalf("buffered %d, want 5", len(rest))
	}

	next, err := p.manager.Next(context.Background(), v, f, 10)
	if err != nil {
		t.Fatalf("second Next() error = %v", err)
	}
	assertServable(t, next, nil)
	for i := 0; i < 5; i++ {
		if next[i].ExternalID != rest[i].ExternalID {
			t.Errorf("page 2 item %d = %d, want buffered %d", i, next[i].ExternalID, rest[i].ExternalID)
		}
	}
}

func TestBufferSuppressesWatchedTitle(t *testing.T) {
	cfg := testRecommendConfig()
	matrix := movie(603, "The Matrix", "1999", "Action")
	others := []models.Candidate{movie(949, "Heat", "1995", "Crime"), movie(8681, "Taken", "2008", "Action")}
	catalog := &fakeCatalog{titles: append([]models.Candidate{matrix}, others...)}

	p := newTestPipeline(t, cfg, catalog, nil, suggestAll(matrix, others[0], others[1]))
	p.store.add("u1", models.StatusWatched, matrix.MediaRef)

	page, err := p.manager.Next(context.Background(), Viewer{UserID: "u1"}, Filter{MediaType: models.MediaTypeMovie}, 10)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	assertServable(t, page, map[int]bool{603: true})
	if len(page) != 2 {
		t.Errorf("len(page) = %d, want 2", len(page))
	}
}

func TestBufferNeverServesKnownTitles(t *testing.T) {
	cfg := testRecommendConfig()
	watched := movie(1, "Heat", "1995")
	listed := movie(2, "Ronin", "1998")
	blocked := movie(3, "Cats", "2019")
	played := movie(4, "Collateral", "2004")
	owned := movie(5, "Thief", "1981")
	fresh := []models.Candidate{movie(6, "Sicario", "2015"), movie(7, "Drive", "2011"), movie(8, "Prisoners", "2013")}

	all := append([]models.Candidate{watched, listed, blocked, played, owned}, fresh...)
	media := &fakeMedia{
		history: []upstream.LibraryItem{{Ref: played.MediaRef}},
		library: []upstream.LibraryItem{{Ref: models.MediaRef{Title: "Thief", ReleaseYear: "1981", MediaType: models.MediaTypeMovie}}},
	}
	// The LLM repeats itself, including a differently cased duplicate.
	suggestions := append(append([]models.Candidate{}, all...), fresh[0], movie(6, "SICARIO", "2015"))
	p := newTestPipeline(t, cfg, &fakeCatalog{titles: all}, media, suggestAll(suggestions...))
	p.store.add("u1", models.StatusWatched, watched.MediaRef)
	p.store.add("u1", models.StatusWatchlist, listed.MediaRef)
	p.store.add("u1", models.StatusBlocked, blocked.MediaRef)

	page, err := p.manager.Next(context.Background(), Viewer{UserID: "u1", Session: testSession}, Filter{MediaType: models.MediaTypeMovie}, 10)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	assertServable(t, page, map[int]bool{1: true, 2: true, 3: true, 4: true, 5: true})
	if len(page) != len(fresh) {
		t.Errorf("len(page) = %d, want %d", len(page), len(fresh))
	}
}

func TestBufferUnderDeliversAfterMaxAttempts(t *testing.T) {
	cfg := testRecommendConfig()
	found := []models.Candidate{movie(11, "Arrival", "2016"), movie(12, "Contact", "1997")}
	suggested := append(append([]models.Candidate{}, found...), movie(0, "Imaginary Film", "2019"))
	p := newTestPipeline(t, cfg, &fakeCatalog{titles: found}, nil, suggestAll(suggested...))

	page, err := p.manager.Next(context.Background(), Viewer{UserID: "u1"}, Filter{MediaType: models.MediaTypeMovie}, 10)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("len(page) = %d, want 2", len(page))
	}
	assertServable(t, page, nil)
	if p.llm.calls() != cfg.MaxAttempts {
		t.Errorf("LLM called %d times, want %d", p.llm.calls(), cfg.MaxAttempts)
	}
}

func TestBufferFallsBackToDiscovery(t *testing.T) {
	cfg := testRecommendConfig()
	pool := []models.Candidate{movie(21, "Parasite", "2019"), movie(22, "Oldboy", "2003")}
	catalog := &fakeCatalog{discover: func(upstream.DiscoverQuery) []models.Candidate { return pool }}
	p := newTestPipeline(t, cfg, catalog, nil, func(string) (string, error) {
		return "", errors.New("quota exceeded")
	})

	page, err := p.manager.Next(context.Background(), Viewer{UserID: "u1"}, Filter{MediaType: models.MediaTypeMovie}, 10)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("len(page) = %d, want 2 discovered titles", len(page))
	}
	assertServable(t, page, nil)
}

func TestBufferRevalidatesAndInvalidates(t *testing.T) {
	cfg := testRecommendConfig()
	titles := dramaCatalog(6)
	p := newTestPipeline(t, cfg, &fakeCatalog{titles: titles}, nil, suggestAll(titles...))
	v := Viewer{UserID: "u1"}
	f := Filter{MediaType: models.MediaTypeMovie}
	ctx := context.Background()

	if _, err := p.manager.Next(ctx, v, f, 2); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	rest := p.buffers.Load(f.key(v.UserID))
	if len(rest) != 4 {
		t.Fatalf("buffered %d, want 4", len(rest))
	}

	// Marking a buffered title watched must keep it out of the next page.
	p.store.add("u1", models.StatusWatched, rest[0].MediaRef)
	page, err := p.manager.Next(ctx, v, f, 2)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	assertServable(t, page, map[int]bool{rest[0].ExternalID: true})
	if page[0].ExternalID != rest[1].ExternalID {
		t.Errorf("first item = %d, want next buffered %d", page[0].ExternalID, rest[1].ExternalID)
	}

	p.manager.Invalidate("u1")
	if got := p.buffers.Load(f.key(v.UserID)); len(got) != 0 {
		t.Errorf("buffer survived Invalidate: %d items", len(got))
	}
}

func TestBufferAuthExpired(t *testing.T) {
	cfg := testRecommendConfig()
	p := newTestPipeline(t, cfg, &fakeCatalog{}, &fakeMedia{historyErr: upstream.ErrAuthExpired}, suggestAll())

	_, err := p.manager.Next(context.Background(), Viewer{UserID: "u1", Session: testSession}, Filter{MediaType: models.MediaTypeMovie}, 10)
	if !errors.Is(err, upstream.ErrAuthExpired) {
		t.Fatalf("Next() error = %v, want ErrAuthExpired", err)
	}
	if p.llm.calls() != 0 {
		t.Error("pipeline ran despite expired session")
	}
}
