// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package recommend

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/marquee/internal/cache"
	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/database"
	"github.com/tomtom215/marquee/internal/jobs"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/normalize"
	"github.com/tomtom215/marquee/internal/upstream"
)

// sparseRetry is how long a low-signal profile is kept before another
// background refresh is attempted.
const sparseRetry = 15 * time.Minute

// TasteRefreshJob is the payload of jobs.TopicTasteRefresh.
type TasteRefreshJob struct {
	UserID    string           `json:"user_id"`
	MediaType models.MediaType `json:"media_type"`
}

// tasteItem is one history entry fed to the profile prompt.
type tasteItem struct {
	ref    models.MediaRef
	genres []string
	rating float64
}

// TasteProvider serves taste profiles without blocking on the LLM.
type TasteProvider struct {
	deps    Deps
	cfg     config.RecommendConfig
	cache   *cache.Cache[models.TasteProfile]
	pending sync.Map

	rngMu sync.Mutex
	rng   *rand.Rand
	now   func() time.Time
}

// NewTasteProvider creates a provider. Profiles are kept for four times
// the freshness window so a stale profile can still be served while it is
// recomputed.
func NewTasteProvider(cfg config.RecommendConfig, deps Deps) *TasteProvider {
	return &TasteProvider{
		deps:  deps,
		cfg:   cfg,
		cache: cache.New[models.TasteProfile]("taste_profiles", 4*cfg.ProfileTTL),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // sampling only
		now:   time.Now,
	}
}

// Close stops the profile cache's cleanup loop.
func (p *TasteProvider) Close() {
	p.cache.Close()
}

func tasteKey(userID string, mt models.MediaType) string {
	return userID + "|" + string(mt)
}

// Get returns the cached profile for v, or the neutral profile when none
// exists. A missing, stale or sparse profile schedules a background
// refresh; the caller sees the improvement on a later request.
func (p *TasteProvider) Get(ctx context.Context, v Viewer, mt models.MediaType) models.TasteProfile {
	if prof, ok := p.cache.Get(tasteKey(v.UserID, mt)); ok {
		if p.needsRefresh(&prof) {
			p.Refresh(ctx, v.UserID, mt)
		}
		return prof
	}
	p.Refresh(ctx, v.UserID, mt)
	return models.NeutralProfile(mt)
}

// Cached returns the cached profile without scheduling anything.
func (p *TasteProvider) Cached(userID string, mt models.MediaType) (models.TasteProfile, bool) {
	return p.cache.Get(tasteKey(userID, mt))
}

func (p *TasteProvider) needsRefresh(prof *models.TasteProfile) bool {
	age := p.now().Sub(prof.GeneratedAt)
	if age > p.cfg.ProfileTTL {
		return true
	}
	return prof.SourceCount < p.cfg.SparseThreshold && age > sparseRetry
}

// Refresh enqueues a recomputation. At most one refresh per user and media
// type is queued at a time.
func (p *TasteProvider) Refresh(ctx context.Context, userID string, mt models.MediaType) {
	key := tasteKey(userID, mt)
	if _, loaded := p.pending.LoadOrStore(key, struct{}{}); loaded {
		return
	}
	if p.deps.Jobs == nil {
		p.pending.Delete(key)
		return
	}
	err := p.deps.Jobs.Publish(ctx, jobs.TopicTasteRefresh, TasteRefreshJob{UserID: userID, MediaType: mt})
	if err != nil {
		p.pending.Delete(key)
		logging.Ctx(ctx).Warn().Err(err).Str("user_id", userID).Msg("Could not queue taste refresh")
	}
}

// HandleRefresh is the jobs.TopicTasteRefresh handler.
func (p *TasteProvider) HandleRefresh(ctx context.Context, payload []byte) error {
	job, err := jobs.Decode[TasteRefreshJob](payload)
	if err != nil {
		return err
	}
	defer p.pending.Delete(tasteKey(job.UserID, job.MediaType))

	if !job.MediaType.Valid() {
		return fmt.Errorf("taste refresh: invalid media type %q", job.MediaType)
	}
	_, err = p.Compute(ctx, p.deps.viewerFor(ctx, job.UserID), job.MediaType)
	return err
}

// Compute builds a fresh profile from a random sample of the user's
// watched and watchlisted titles and caches it. LLM failures and
// unparseable output yield the neutral profile; only a failure to read the
// stored lists is returned.
func (p *TasteProvider) Compute(ctx context.Context, v Viewer, mt models.MediaType) (models.TasteProfile, error) {
	log := logging.Ctx(ctx).With().Str("component", "taste").Str("user_id", v.UserID).
		Str("media_type", string(mt)).Logger()

	items, err := p.collect(ctx, v, mt)
	if err != nil {
		return models.NeutralProfile(mt), err
	}

	sample := p.sample(items, p.cfg.ProfileSampleSize)
	p.fillGenres(ctx, sample)

	prof := models.NeutralProfile(mt)
	if len(sample) > 0 {
		text, genErr := p.deps.LLM.Generate(ctx, tastePrompt(mt, sample))
		if genErr != nil {
			log.Warn().Err(genErr).Msg("Taste profile generation failed, using neutral profile")
		} else if parsed, parseErr := parseTasteProfile(text, mt); parseErr != nil {
			log.Warn().Err(parseErr).Msg("Unparseable taste profile, using neutral profile")
		} else {
			prof = parsed
		}
	}
	prof.SourceCount = len(items)
	prof.GeneratedAt = p.now().UTC()

	p.cache.Set(tasteKey(v.UserID, mt), prof)
	log.Debug().Int("sources", len(items)).Int("sampled", len(sample)).
		Bool("neutral", prof.IsNeutral()).Msg("Taste profile computed")
	return prof, nil
}

// collect merges stored WATCHED and WATCHLIST rows with Jellyfin play
// history, deduplicated by ID or title key.
func (p *TasteProvider) collect(ctx context.Context, v Viewer, mt models.MediaType) ([]tasteItem, error) {
	stored, err := p.deps.Statuses.ListMediaStatus(ctx, v.UserID, database.StatusFilter{
		Statuses:  []models.ListStatus{models.StatusWatched, models.StatusWatchlist},
		MediaType: mt,
	})
	if err != nil {
		return nil, fmt.Errorf("load watched titles: %w", err)
	}

	seen := NewExclusionSet()
	items := make([]tasteItem, 0, len(stored))
	add := func(it tasteItem) {
		if seen.Contains(it.ref) {
			return
		}
		seen.Add(it.ref)
		items = append(items, it)
	}

	for i := range stored {
		add(tasteItem{ref: stored[i].Media})
	}

	if v.hasSession() && p.deps.Media != nil {
		history, err := p.deps.Media.UserHistory(ctx, v.Session, p.cfg.HistoryLimit)
		switch {
		case errors.Is(err, upstream.ErrAuthExpired):
			logging.Ctx(ctx).Info().Str("user_id", v.UserID).Msg("Jellyfin session expired, profiling stored titles only")
		case err != nil:
			logging.Ctx(ctx).Warn().Err(err).Str("user_id", v.UserID).Msg("Play history unavailable for taste profile")
		}
		for i := range history {
			if history[i].Ref.MediaType != mt {
				continue
			}
			add(tasteItem{ref: history[i].Ref, genres: history[i].Genres, rating: history[i].CommunityRating})
		}
	}
	return items, nil
}

// sample returns up to n items chosen uniformly at random using a partial
// Fisher-Yates shuffle. items is not modified.
func (p *TasteProvider) sample(items []tasteItem, n int) []tasteItem {
	out := make([]tasteItem, len(items))
	copy(out, items)
	if n <= 0 || n >= len(out) {
		return out
	}

	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	for i := 0; i < n; i++ {
		j := i + p.rng.Intn(len(out)-i)
		out[i], out[j] = out[j], out[i]
	}
	return out[:n]
}

// fillGenres copies stored enrichment onto sampled items that lack genres.
func (p *TasteProvider) fillGenres(ctx context.Context, items []tasteItem) {
	if p.deps.Details == nil {
		return
	}
	for i := range items {
		if len(items[i].genres) > 0 || items[i].ref.ExternalID == 0 {
			continue
		}
		d, err := p.deps.Details.GetMediaDetails(ctx, items[i].ref.MediaType, items[i].ref.ExternalID)
		if err != nil {
			continue
		}
		items[i].genres = d.Genres
	}
}

func tastePrompt(mt models.MediaType, items []tasteItem) string {
	kind := "movies"
	if mt == models.MediaTypeTV {
		kind = "TV shows"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are analysing a viewer's taste in %s.\n", kind)
	b.WriteString("Here is a sample of titles they watched or want to watch:\n")
	for _, it := range items {
		b.WriteString("- ")
		b.WriteString(it.ref.Title)
		if it.ref.ReleaseYear != "" {
			fmt.Fprintf(&b, " (%s)", it.ref.ReleaseYear)
		}
		if len(it.genres) > 0 {
			fmt.Fprintf(&b, " | genres: %s", strings.Join(it.genres, ", "))
		}
		if it.rating > 0 {
			fmt.Fprintf(&b, " | rating: %.1f", it.rating)
		}
		b.WriteString("\n")
	}
	b.WriteString(`
Respond with a single JSON object and nothing else:
{"genres": ["up to 4 dominant genres"],
 "keywords": ["up to 6 recurring themes"],
 "year_range": [earliest, latest],
 "min_rating": number between 0 and 10,
 "narrative_summary": "two sentences describing what they enjoy"}
`)
	return b.String()
}

// parseTasteProfile decodes the LLM's profile object. year_range may be a
// two element array or an object with from/to.
func parseTasteProfile(text string, mt models.MediaType) (models.TasteProfile, error) {
	raw := upstream.ExtractJSON(text)
	if raw == "" {
		return models.TasteProfile{}, errors.New("no JSON object in response")
	}
	var rec normalize.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return models.TasteProfile{}, fmt.Errorf("decode taste profile: %w", err)
	}

	prof := models.TasteProfile{
		MediaType:        mt,
		Genres:           rec.Strings("genres"),
		Keywords:         rec.Strings("keywords"),
		MinRating:        clampRating(rec.Float("min_rating", "minRating")),
		NarrativeSummary: strings.TrimSpace(rec.String("narrative_summary", "summary")),
	}

	var from, to int
	if years := rec.Ints("year_range"); len(years) == 2 {
		from, to = years[0], years[1]
	} else if obj, ok := rec["year_range"].(map[string]any); ok {
		yr := normalize.Record(obj)
		from, to = yr.Int("from", "start"), yr.Int("to", "end")
	}
	if from > 0 && to >= from {
		prof.YearRange = &models.YearRange{From: from, To: to}
	}
	return prof, nil
}

func clampRating(r float64) float64 {
	switch {
	case r < 0:
		return 0
	case r > 10:
		return 10
	}
	return r
}
