// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package recommend

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/marquee/internal/cache"
	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/models"
)

// maxPageSize caps a caller supplied page size.
const maxPageSize = 50

// Filter selects which recommendations a buffer holds.
type Filter struct {
	MediaType models.MediaType
	Genre     string
}

func (f Filter) key(userID string) string {
	return userID + "|" + string(f.MediaType) + "|" + strings.ToLower(strings.TrimSpace(f.Genre))
}

// BufferStore holds verified candidates between requests. Load followed by
// Save is not atomic; concurrent fills for one key may overwrite each
// other, so a candidate can be served twice or dropped.
type BufferStore interface {
	Load(key string) []models.Candidate
	Save(key string, items []models.Candidate)
	Delete(key string)
	DeletePrefix(prefix string) int
}

// MemoryBuffers is a process-local BufferStore with a TTL.
type MemoryBuffers struct {
	c *cache.Cache[[]models.Candidate]
}

// NewMemoryBuffers creates a store whose buffers expire after ttl.
func NewMemoryBuffers(ttl time.Duration) *MemoryBuffers {
	return &MemoryBuffers{c: cache.New[[]models.Candidate]("recommendation_buffers", ttl)}
}

func (m *MemoryBuffers) Load(key string) []models.Candidate {
	items, ok := m.c.Get(key)
	if !ok {
		return nil
	}
	out := make([]models.Candidate, len(items))
	copy(out, items)
	return out
}

func (m *MemoryBuffers) Save(key string, items []models.Candidate) {
	m.c.Set(key, items)
}

func (m *MemoryBuffers) Delete(key string) {
	m.c.Delete(key)
}

func (m *MemoryBuffers) DeletePrefix(prefix string) int {
	return m.c.DeletePrefix(prefix)
}

// Close stops the store's cleanup loop.
func (m *MemoryBuffers) Close() {
	m.c.Close()
}

// BufferManager serves recommendation pages from per-user buffers and
// refills them through the pipeline.
type BufferManager struct {
	cfg        config.RecommendConfig
	exclusions *ExclusionBuilder
	taste      *TasteProvider
	suggester  *Suggester
	verifier   *Verifier
	source     *CandidateSource
	buffers    BufferStore
}

// NewBufferManager wires the pipeline stages together.
func NewBufferManager(
	cfg config.RecommendConfig,
	exclusions *ExclusionBuilder,
	taste *TasteProvider,
	suggester *Suggester,
	verifier *Verifier,
	source *CandidateSource,
	buffers BufferStore,
) *BufferManager {
	return &BufferManager{
		cfg:        cfg,
		exclusions: exclusions,
		taste:      taste,
		suggester:  suggester,
		verifier:   verifier,
		source:     source,
		buffers:    buffers,
	}
}

// Next returns up to limit verified, non-excluded candidates matching f.
// limit <= 0 uses the configured page size. When the buffer is short it
// runs at most the configured number of pipeline attempts; fewer than limit
// items may be returned, but never an excluded or repeated one. Candidates
// beyond limit stay buffered for the next call.
func (b *BufferManager) Next(ctx context.Context, v Viewer, f Filter, limit int) ([]models.Candidate, error) {
	target := limit
	if target <= 0 {
		target = b.cfg.PageSize
	}
	if target > maxPageSize {
		target = maxPageSize
	}

	excl, err := b.exclusions.Build(ctx, v)
	if err != nil {
		return nil, err
	}

	key := f.key(v.UserID)
	buf := b.revalidate(b.buffers.Load(key), f, excl)

	attempts := 0
	for len(buf) < target && attempts < b.cfg.MaxAttempts && ctx.Err() == nil {
		attempts++
		buf = b.fill(ctx, v, f, excl, buf)
	}
	metrics.PipelineAttempts.Observe(float64(attempts))

	n := len(buf)
	if n > target {
		n = target
	}
	page := buf[:n:n]
	if rest := buf[n:]; len(rest) > 0 {
		b.buffers.Save(key, append([]models.Candidate(nil), rest...))
	} else {
		b.buffers.Delete(key)
	}

	metrics.RecommendationsServed.WithLabelValues(string(f.MediaType)).Add(float64(n))
	logging.Ctx(ctx).Debug().
		Str("user_id", v.UserID).
		Str("media_type", string(f.MediaType)).
		Str("genre", f.Genre).
		Int("served", n).
		Int("buffered", len(buf)-n).
		Int("attempts", attempts).
		Msg("Recommendations served")
	return page, nil
}

// Invalidate drops every buffer of userID. Called after any list change.
func (b *BufferManager) Invalidate(userID string) {
	b.buffers.DeletePrefix(userID + "|")
}

// revalidate drops buffered candidates that became excluded since they
// were buffered and seeds the working exclusion set with the rest.
func (b *BufferManager) revalidate(buf []models.Candidate, f Filter, excl *ExclusionSet) []models.Candidate {
	out := buf[:0:0]
	for i := range buf {
		c := buf[i]
		if excl.Contains(c.MediaRef) || !matchesFilter(&c, f) {
			continue
		}
		excl.Add(c.MediaRef)
		out = append(out, c)
	}
	return out
}

// fill runs one pipeline attempt: taste profile, one LLM batch (or catalog
// discovery when the LLM returns nothing), verification, then in-order
// acceptance. Every accepted candidate joins the working exclusion set so
// it cannot be accepted twice.
func (b *BufferManager) fill(ctx context.Context, v Viewer, f Filter, excl *ExclusionSet, buf []models.Candidate) []models.Candidate {
	prof := b.taste.Get(ctx, v, f.MediaType)

	suggestions := b.suggester.Suggest(ctx, SuggestRequest{
		Profile:   prof,
		MediaType: f.MediaType,
		Genre:     f.Genre,
		Count:     b.cfg.BatchSize,
		Avoid:     excl.Titles(),
	})

	var candidates []*models.Candidate
	if len(suggestions) > 0 {
		candidates = b.verifyAll(ctx, suggestions)
	} else if b.source != nil {
		for _, c := range b.source.Discover(ctx, prof, excl, b.cfg.BatchSize) {
			candidates = append(candidates, &c)
		}
	}

	for _, c := range candidates {
		switch {
		case c == nil:
			metrics.SuggestionsTotal.WithLabelValues("unverified").Inc()
		case !matchesFilter(c, f):
			metrics.SuggestionsTotal.WithLabelValues("filtered").Inc()
		case excl.Contains(c.MediaRef):
			metrics.SuggestionsTotal.WithLabelValues("excluded").Inc()
		default:
			excl.Add(c.MediaRef)
			buf = append(buf, *c)
			metrics.SuggestionsTotal.WithLabelValues("accepted").Inc()
		}
	}
	return buf
}

// verifyAll verifies suggestions concurrently and returns the outcomes in
// suggestion order.
func (b *BufferManager) verifyAll(ctx context.Context, suggestions []Suggestion) []*models.Candidate {
	out := make([]*models.Candidate, len(suggestions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupParallel)
	for i := range suggestions {
		g.Go(func() error {
			out[i] = b.verifier.Verify(gctx, suggestions[i])
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func matchesFilter(c *models.Candidate, f Filter) bool {
	if f.MediaType != "" && c.MediaType != f.MediaType {
		return false
	}
	return c.HasGenre(f.Genre)
}
