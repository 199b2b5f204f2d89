// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package recommend

import (
	"context"
	"errors"
	"math"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/database"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/normalize"
	"github.com/tomtom215/marquee/internal/upstream"
)

const (
	// discoverPageSize is the number of results TMDB returns per page.
	discoverPageSize = 20
	maxDiscoverPages = 3
	maxKeywords      = 6
	ratingRelaxation = 1.5
	lookupParallel   = 5
)

// CandidateSource produces verified candidates straight from the catalog,
// either by taste facets or by similarity to titles the user liked.
type CandidateSource struct {
	deps Deps
	cfg  config.RecommendConfig
}

// NewCandidateSource creates a source.
func NewCandidateSource(cfg config.RecommendConfig, deps Deps) *CandidateSource {
	return &CandidateSource{deps: deps, cfg: cfg}
}

// Discover pages through TMDB discovery using the profile's genres, rating
// floor and year range. Keywords are queried in pairs and the pools are
// unioned by ID. When the union is smaller than the discovery floor a
// relaxed query without keywords and with a lower rating floor tops it up.
// At most limit candidates are returned, none of them excluded, with
// animated titles capped at the configured ratio.
func (s *CandidateSource) Discover(ctx context.Context, prof models.TasteProfile, excl *ExclusionSet, limit int) []models.Candidate {
	mt := prof.MediaType
	base := upstream.DiscoverQuery{
		GenreIDs:  s.genreIDs(ctx, mt, prof.Genres),
		MinRating: prof.MinRating,
		MinVotes:  s.cfg.MinVoteCount,
		YearRange: prof.YearRange,
	}

	pages := pagesFor(limit)
	pool := s.runQueries(ctx, mt, keywordQueries(base, s.keywordIDs(ctx, prof.Keywords)), pages, excl)

	if len(pool) < s.cfg.DiscoveryFloor {
		relaxed := base
		relaxed.KeywordIDs = nil
		relaxed.MinRating = math.Max(0, base.MinRating-ratingRelaxation)
		extra := s.runQueries(ctx, mt, []upstream.DiscoverQuery{relaxed}, pages, excl)
		logging.Ctx(ctx).Debug().Int("pool", len(pool)).Int("relaxed", len(extra)).
			Msg("Discovery pool below floor, relaxed filters")
		pool = mergeCandidates(pool, extra)
	}

	return capAnimationRatio(pool, s.cfg.AnimationRatio, limit)
}

func pagesFor(limit int) int {
	if limit <= 0 {
		return 1
	}
	p := (limit + discoverPageSize - 1) / discoverPageSize
	if p > maxDiscoverPages {
		p = maxDiscoverPages
	}
	return p
}

// keywordQueries splits keyword IDs into OR-ed pairs, one query each.
func keywordQueries(base upstream.DiscoverQuery, keywordIDs []int) []upstream.DiscoverQuery {
	if len(keywordIDs) == 0 {
		return []upstream.DiscoverQuery{base}
	}
	var out []upstream.DiscoverQuery
	for i := 0; i < len(keywordIDs); i += 2 {
		q := base
		end := i + 2
		if end > len(keywordIDs) {
			end = len(keywordIDs)
		}
		q.KeywordIDs = keywordIDs[i:end]
		out = append(out, q)
	}
	return out
}

// runQueries issues every query and page concurrently and unions the
// results in query order.
func (s *CandidateSource) runQueries(ctx context.Context, mt models.MediaType, queries []upstream.DiscoverQuery, pages int, excl *ExclusionSet) []models.Candidate {
	type task struct {
		q    upstream.DiscoverQuery
		page int
	}
	var tasks []task
	for _, q := range queries {
		for p := 1; p <= pages; p++ {
			q.Page = p
			tasks = append(tasks, task{q: q, page: p})
		}
	}

	results := make([][]models.Candidate, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupParallel)
	for i, t := range tasks {
		g.Go(func() error {
			found, err := s.deps.Catalog.Discover(gctx, mt, t.q)
			if err != nil {
				logging.Ctx(ctx).Warn().Err(err).Int("page", t.page).Msg("Discovery query failed")
				return nil
			}
			results[i] = found
			return nil
		})
	}
	_ = g.Wait()

	var pool []models.Candidate
	for _, r := range results {
		pool = mergeCandidates(pool, r)
	}
	return filterCandidates(pool, mt, excl)
}

// genreIDs maps profile genre names onto TMDB genre IDs. Names are matched
// exactly first, then by containment so "Sci-Fi" finds "Sci-Fi & Fantasy".
func (s *CandidateSource) genreIDs(ctx context.Context, mt models.MediaType, names []string) []int {
	if len(names) == 0 {
		return nil
	}
	table, err := s.deps.Catalog.GenreIDs(ctx, mt)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Genre list unavailable, discovering without genres")
		return nil
	}

	var ids []int
	seen := map[int]bool{}
	for _, name := range names {
		want := strings.ToLower(strings.TrimSpace(name))
		id, ok := table[want]
		if !ok {
			for have, hid := range table {
				if normalize.TitlesMatch(have, want) {
					id, ok = hid, true
					break
				}
			}
		}
		if ok && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *CandidateSource) keywordIDs(ctx context.Context, names []string) []int {
	if len(names) > maxKeywords {
		names = names[:maxKeywords]
	}
	var ids []int
	for _, name := range names {
		id, err := s.deps.Catalog.KeywordID(ctx, name)
		if err != nil {
			if !upstream.IsNotFound(err) {
				logging.Ctx(ctx).Debug().Err(err).Str("keyword", name).Msg("Keyword lookup failed")
			}
			continue
		}
		if id > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// FromAnchors recommends titles similar to the user's most recent watched
// and watchlisted items, using the similar and recommendation lists stored
// by the enrichment pass. Anchors without stored enrichment are queued
// for it and skipped. Results are interleaved across anchors, capped at
// the configured number of animated titles per ten.
func (s *CandidateSource) FromAnchors(ctx context.Context, userID string, mt models.MediaType, excl *ExclusionSet, limit int) []models.Candidate {
	anchors, err := s.deps.Statuses.ListMediaStatus(ctx, userID, database.StatusFilter{
		Statuses:  []models.ListStatus{models.StatusWatched, models.StatusWatchlist},
		MediaType: mt,
		Limit:     s.cfg.AnchorCount,
	})
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Anchor titles unavailable")
		return nil
	}

	var lists [][]int
	for i := range anchors {
		ref := anchors[i].Media
		d, err := s.deps.Details.GetMediaDetails(ctx, ref.MediaType, ref.ExternalID)
		if errors.Is(err, database.ErrNotFound) {
			queueEnrichment(ctx, s.deps.Jobs, ref)
			continue
		}
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Int("external_id", ref.ExternalID).Msg("Anchor details unavailable")
			continue
		}
		lists = append(lists, interleave(d.Recommendations, d.Similar))
	}

	want := limit
	if want <= 0 {
		want = s.cfg.PageSize
	}
	var ids []int
	seen := map[int]bool{}
	for _, id := range interleave(lists...) {
		if seen[id] || excl.ContainsID(id) {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
		if len(ids) >= 2*want {
			break
		}
	}

	details := make([]*models.Candidate, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupParallel)
	for i, id := range ids {
		g.Go(func() error {
			t, err := s.deps.Catalog.Details(gctx, mt, id)
			if err != nil {
				logging.Ctx(ctx).Debug().Err(err).Int("external_id", id).Msg("Anchor candidate lookup failed")
				return nil
			}
			c := t.Candidate
			details[i] = &c
			return nil
		})
	}
	_ = g.Wait()

	var out []models.Candidate
	for _, c := range details {
		if c != nil {
			out = append(out, *c)
		}
	}
	out = capAnimationPerTen(filterCandidates(out, mt, excl), s.cfg.AnchorAnimationCap)
	if len(out) > want {
		out = out[:want]
	}
	return out
}

// interleave merges lists round-robin, preserving each list's order.
func interleave(lists ...[]int) []int {
	var out []int
	for rank := 0; ; rank++ {
		added := false
		for _, l := range lists {
			if rank < len(l) {
				out = append(out, l[rank])
				added = true
			}
		}
		if !added {
			return out
		}
	}
}

// mergeCandidates appends the candidates of b not already in a, by ID.
func mergeCandidates(a, b []models.Candidate) []models.Candidate {
	if len(b) == 0 {
		return a
	}
	seen := make(map[int]bool, len(a))
	for i := range a {
		seen[a[i].ExternalID] = true
	}
	for i := range b {
		if !seen[b[i].ExternalID] {
			seen[b[i].ExternalID] = true
			a = append(a, b[i])
		}
	}
	return a
}

// filterCandidates drops invalid, mistyped and excluded candidates.
func filterCandidates(in []models.Candidate, mt models.MediaType, excl *ExclusionSet) []models.Candidate {
	out := in[:0:0]
	for i := range in {
		c := &in[i]
		if !c.Valid() || c.MediaType != mt || (excl != nil && excl.Contains(c.MediaRef)) {
			continue
		}
		out = append(out, *c)
	}
	return out
}

// capAnimationRatio selects at most limit candidates, in order, keeping
// animated titles at or below ratio of the returned slice. Non-animated
// titles fill the remaining slots. A limit <= 0 means no limit.
func capAnimationRatio(in []models.Candidate, ratio float64, limit int) []models.Candidate {
	if limit <= 0 || limit > len(in) {
		limit = len(in)
	}
	if ratio >= 1 {
		return in[:limit]
	}
	plain, anim := 0, 0
	for i := range in {
		if in[i].IsAnimated() {
			anim++
		} else {
			plain++
		}
	}

	// Largest animated count a whose page of min(plain+a, limit) titles
	// still holds the ratio. The epsilon keeps 0.3*10 from flooring to 2.
	allowed := 0
	for a := 1; a <= anim && ratio > 0; a++ {
		n := min(plain+a, limit)
		if a <= n && float64(a) <= ratio*float64(n)+1e-9 {
			allowed = a
		}
	}
	plainQuota := min(plain, limit-allowed)

	out := make([]models.Candidate, 0, allowed+plainQuota)
	animated, kept := 0, 0
	for i := range in {
		if in[i].IsAnimated() {
			if animated >= allowed {
				continue
			}
			animated++
		} else {
			if kept >= plainQuota {
				continue
			}
			kept++
		}
		out = append(out, in[i])
	}
	return out
}

// capAnimationPerTen allows at most perTen animated candidates in each
// block of ten results.
func capAnimationPerTen(in []models.Candidate, perTen int) []models.Candidate {
	if perTen >= 10 {
		return in
	}
	out := make([]models.Candidate, 0, len(in))
	inBlock := 0
	for i := range in {
		if len(out)%10 == 0 {
			inBlock = 0
		}
		if in[i].IsAnimated() {
			if inBlock >= perTen {
				continue
			}
			inBlock++
		}
		out = append(out, in[i])
	}
	return out
}
