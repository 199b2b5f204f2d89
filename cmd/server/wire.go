// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package main

import (
	"fmt"

	"github.com/tomtom215/marquee/internal/api"
	"github.com/tomtom215/marquee/internal/auth"
	"github.com/tomtom215/marquee/internal/cache"
	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/database"
	"github.com/tomtom215/marquee/internal/jobs"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/recommend"
	"github.com/tomtom215/marquee/internal/scheduler"
	"github.com/tomtom215/marquee/internal/upstream"
	ws "github.com/tomtom215/marquee/internal/websocket"
)

// openVerifyCache opens the verification cache. A non-persistent cache
// keeps outcomes in memory and loses them on restart.
func openVerifyCache(cfg config.CacheConfig) (cache.Store, error) {
	if !cfg.Persistent {
		logging.Info().Msg("Verification cache is in memory (CACHE_PERSISTENT=false)")
		return cache.NewMemoryStore("verify"), nil
	}
	store, err := cache.OpenBadgerStore("verify", cache.BadgerOptions{
		Path:       cfg.Path,
		GCInterval: cfg.GCInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("open verification cache: %w", err)
	}
	logging.Info().Str("path", cfg.Path).Msg("Verification cache opened")
	return store, nil
}

// upstreamClients holds one client per external service.
type upstreamClients struct {
	jellyfin   *upstream.JellyfinClient
	jellyseerr *upstream.JellyseerrClient
	tmdb       *upstream.TMDBClient
	gemini     *upstream.GeminiClient
}

func newClients(cfg *config.Config) *upstreamClients {
	c := &upstreamClients{
		jellyfin:   upstream.NewJellyfinClient(cfg.Jellyfin),
		jellyseerr: upstream.NewJellyseerrClient(cfg.Jellyseerr, cfg.TMDB.ImageBaseURL),
		tmdb:       upstream.NewTMDBClient(cfg.TMDB),
		gemini:     upstream.NewGeminiClient(cfg.LLM),
	}
	if c.jellyseerr.Enabled() {
		logging.Info().Str("url", cfg.Jellyseerr.URL).Msg("Jellyseerr integration enabled")
	} else {
		logging.Info().Msg("Jellyseerr integration disabled; request status filtering is skipped")
	}
	return c
}

// Breakers lists every circuit breaker for the health endpoint. The
// Jellyseerr breaker is reported only when the client is enabled.
func (c *upstreamClients) Breakers() []api.BreakerStatus {
	out := []api.BreakerStatus{c.jellyfin.Breaker(), c.tmdb.Breaker(), c.gemini.Breaker()}
	if c.jellyseerr.Enabled() {
		out = append(out, c.jellyseerr.Breaker())
	}
	return out
}

func (c *upstreamClients) Close() {
	c.tmdb.Close()
}

// engine is the recommendation side of the server: the on-demand buffer
// pipeline plus the batch features that share its stages.
type engine struct {
	taste      *recommend.TasteProvider
	buffers    *recommend.BufferManager
	verifier   *recommend.Verifier
	store      *recommend.MemoryBuffers
	weekly     *recommend.WeeklyPicks
	redemption *recommend.RedemptionAdvisor
	enricher   *recommend.Enricher
}

func newEngine(cfg *config.Config, db *database.DB, clients *upstreamClients, verified cache.Store, sessions *auth.Sessions, queue *jobs.Queue, hub *ws.Hub) *engine {
	deps := recommend.Deps{
		Statuses:   db,
		Details:    db,
		Users:      db,
		Weekly:     db,
		Redemption: db,
		Media:      clients.jellyfin,
		Catalog:    clients.tmdb,
		Requests:   clients.jellyseerr,
		LLM:        clients.gemini,
		Jobs:       queue,
		Notifier:   hub,
		Sessions:   sessions,
	}

	exclusions := recommend.NewExclusionBuilder(db, clients.jellyfin, cfg.Recommend.HistoryLimit)
	taste := recommend.NewTasteProvider(cfg.Recommend, deps)
	source := recommend.NewCandidateSource(cfg.Recommend, deps)
	store := recommend.NewMemoryBuffers(cfg.Recommend.BufferTTL)

	verifier := recommend.NewVerifier(clients.tmdb, clients.jellyseerr, verified, cfg.Recommend.VerifyCacheTTL, cfg.Recommend.JellyseerrFallback)
	buffers := recommend.NewBufferManager(cfg.Recommend, exclusions, taste, recommend.NewSuggester(clients.gemini), verifier, source, store)

	e := &engine{
		taste:      taste,
		buffers:    buffers,
		verifier:   verifier,
		store:      store,
		weekly:     recommend.NewWeeklyPicks(cfg.Weekly, deps, taste, source, exclusions),
		redemption: recommend.NewRedemptionAdvisor(cfg.Redemption, deps),
		enricher:   recommend.NewEnricher(deps),
	}

	queue.Handle(jobs.TopicTasteRefresh, taste.HandleRefresh)
	queue.Handle(jobs.TopicMediaEnrich, e.enricher.HandleEnrich)
	queue.Handle(jobs.TopicWeeklyGenerate, e.weekly.HandleGenerate)
	return e
}

// schedule registers the enabled batch runs.
func (e *engine) schedule(cfg *config.Config) (*scheduler.Scheduler, error) {
	s := scheduler.New()
	if cfg.Weekly.Enabled {
		if err := s.Add("weekly-picks", cfg.Weekly.Schedule, cfg.Weekly.Timezone, e.weekly.RunAll); err != nil {
			return nil, fmt.Errorf("schedule weekly picks: %w", err)
		}
	}
	if cfg.Redemption.Enabled {
		if err := s.Add("redemption", cfg.Redemption.Schedule, cfg.Redemption.Timezone, e.redemption.RunAll); err != nil {
			return nil, fmt.Errorf("schedule redemption: %w", err)
		}
	}
	return s, nil
}

func (e *engine) Close() {
	e.taste.Close()
	e.store.Close()
}
