// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package recommend

import (
	"context"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/marquee/internal/cache"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/normalize"
)

// Suggestion is a loosely specified title, usually produced by the LLM.
// Year and MediaType are optional hints; when present they must match
// exactly.
type Suggestion struct {
	Title     string
	Year      string
	MediaType models.MediaType
	Reason    string
}

// negativeOutcome is the cached value of a suggestion that matched nothing.
var negativeOutcome = []byte("null")

// Verifier promotes suggestions to canonical candidates.
type Verifier struct {
	catalog  Catalog
	requests RequestManager
	store    cache.Store
	ttl      time.Duration
	fallback bool
}

// NewVerifier creates a verifier. store holds positive and negative
// outcomes for ttl; requests is consulted when the catalog has no match and
// fallback is enabled.
func NewVerifier(catalog Catalog, requests RequestManager, store cache.Store, ttl time.Duration, fallback bool) *Verifier {
	return &Verifier{
		catalog:  catalog,
		requests: requests,
		store:    store,
		ttl:      ttl,
		fallback: fallback,
	}
}

func verifyKey(s Suggestion) string {
	return "verify:" + string(s.MediaType) + ":" + normalize.TitleKey(s.Title) + ":" + normalize.Year(s.Year)
}

// Verify returns the best canonical match for s, or nil. Upstream failures
// also yield nil but are not cached, so the next request tries again.
func (v *Verifier) Verify(ctx context.Context, s Suggestion) *models.Candidate {
	s.Title = strings.TrimSpace(s.Title)
	s.Year = normalize.Year(s.Year)
	if normalize.TitleKey(s.Title) == "" {
		return nil
	}

	key := verifyKey(s)
	if c, ok := v.cached(ctx, key); ok {
		recordVerification(c, "cache")
		return withReason(c, s.Reason)
	}

	c, source, err := v.resolve(ctx, s)
	if err != nil {
		logging.Ctx(ctx).Debug().Err(err).Str("title", s.Title).Msg("Verification lookup failed")
		metrics.VerificationsTotal.WithLabelValues("error", source).Inc()
		return nil
	}
	v.remember(ctx, key, c)
	recordVerification(c, source)
	return withReason(c, s.Reason)
}

func recordVerification(c *models.Candidate, source string) {
	result := "match"
	if c == nil {
		result = "no_match"
	}
	metrics.VerificationsTotal.WithLabelValues(result, source).Inc()
}

// resolve searches the catalog, then the request manager. err is set only
// when no source could answer at all.
func (v *Verifier) resolve(ctx context.Context, s Suggestion) (*models.Candidate, string, error) {
	results, err := v.catalog.Search(ctx, s.Title)
	if err == nil {
		if c := bestMatch(s, results); c != nil {
			return c, "tmdb", nil
		}
	}

	if !v.fallback || v.requests == nil || !v.requests.Enabled() {
		return nil, "tmdb", err
	}
	fallbackResults, fbErr := v.requests.Search(ctx, s.Title)
	if fbErr != nil {
		if err != nil {
			return nil, "jellyseerr", err
		}
		// The catalog answered with no match; that outcome stands.
		return nil, "tmdb", nil
	}
	return bestMatch(s, fallbackResults), "jellyseerr", nil
}

// bestMatch applies the verification rules: titles only, exact media type
// and exact year when hinted, and the first result whose normalised title
// contains or is contained by the query.
func bestMatch(s Suggestion, results []models.Candidate) *models.Candidate {
	for i := range results {
		r := &results[i]
		if !r.Valid() {
			continue
		}
		if s.MediaType != "" && r.MediaType != s.MediaType {
			continue
		}
		if s.Year != "" && normalize.Year(r.ReleaseYear) != s.Year {
			continue
		}
		if !normalize.TitlesMatch(s.Title, r.Title) {
			continue
		}
		c := *r
		return &c
	}
	return nil
}

func (v *Verifier) cached(ctx context.Context, key string) (*models.Candidate, bool) {
	if v.store == nil {
		return nil, false
	}
	raw, ok, err := v.store.Get(key)
	if err != nil || !ok {
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("Verification cache read failed")
		}
		return nil, false
	}
	var c *models.Candidate
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, false
	}
	return c, true
}

func (v *Verifier) remember(ctx context.Context, key string, c *models.Candidate) {
	if v.store == nil {
		return
	}
	raw := negativeOutcome
	if c != nil {
		var err error
		if raw, err = json.Marshal(c); err != nil {
			return
		}
	}
	if err := v.store.Set(key, raw, v.ttl); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Verification cache write failed")
	}
}

func withReason(c *models.Candidate, reason string) *models.Candidate {
	if c == nil {
		return nil
	}
	out := *c
	if reason != "" {
		out.Reason = reason
	}
	return &out
}
