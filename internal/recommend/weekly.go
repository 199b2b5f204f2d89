// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package recommend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/database"
	"github.com/tomtom215/marquee/internal/jobs"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/upstream"
)

// Notification events.
const (
	EventWeeklyReady     = "weekly_ready"
	EventRedemptionReady = "redemption_ready"
)

// WeeklyJob is the payload of jobs.TopicWeeklyGenerate.
type WeeklyJob struct {
	UserID string `json:"user_id"`
}

// WeeklyPicks produces one watchlist per user per ISO week.
//
// A user's record moves NONE -> GENERATING -> READY, becomes STALE after
// the configured maximum age and is generated again on the next read or
// scheduled run. Concurrent generations for one user are collapsed into
// one.
type WeeklyPicks struct {
	cfg        config.WeeklyConfig
	deps       Deps
	taste      *TasteProvider
	source     *CandidateSource
	exclusions *ExclusionBuilder
	curator    Stage
	critic     Stage

	flight singleflight.Group
	now    func() time.Time
}

// NewWeeklyPicks creates the weekly recommender with the default curator
// and critic stages.
func NewWeeklyPicks(cfg config.WeeklyConfig, deps Deps, taste *TasteProvider, source *CandidateSource, exclusions *ExclusionBuilder) *WeeklyPicks {
	return &WeeklyPicks{
		cfg:        cfg,
		deps:       deps,
		taste:      taste,
		source:     source,
		exclusions: exclusions,
		curator:    NewCuratorStage(deps.LLM, cfg.CuratorSize),
		critic:     NewCriticStage(deps.LLM, cfg.CriticSize),
		now:        time.Now,
	}
}

// SetStages replaces the selection stages.
func (w *WeeklyPicks) SetStages(curator, critic Stage) {
	w.curator = curator
	w.critic = critic
}

// Get returns the user's current record, generating it first when it is
// missing or older than the maximum age.
func (w *WeeklyPicks) Get(ctx context.Context, userID string) (*models.WeeklyWatchlistRecord, error) {
	rec, err := w.deps.Weekly.LatestWeeklyRecord(ctx, userID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("load weekly picks: %w", err)
	}
	if !rec.Stale(w.now(), w.cfg.MaxAge) {
		return rec, nil
	}
	return w.Generate(ctx, userID)
}

// Generate builds and stores a fresh record for userID.
func (w *WeeklyPicks) Generate(ctx context.Context, userID string) (*models.WeeklyWatchlistRecord, error) {
	v, err, _ := w.flight.Do(userID, func() (any, error) {
		return w.generate(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.WeeklyWatchlistRecord), nil
}

func (w *WeeklyPicks) generate(ctx context.Context, userID string) (*models.WeeklyWatchlistRecord, error) {
	start := w.now()
	log := logging.Ctx(ctx).With().Str("component", "weekly").Str("user_id", userID).Logger()

	v := w.deps.viewerFor(ctx, userID)
	excl, err := w.exclusions.Build(ctx, v)
	if errors.Is(err, upstream.ErrAuthExpired) {
		log.Info().Msg("Jellyfin session expired, generating from stored lists")
		v = Viewer{UserID: userID}
		excl, err = w.exclusions.Build(ctx, v)
	}
	if err != nil {
		return nil, err
	}

	blocked, err := w.deps.Statuses.ListMediaStatus(ctx, userID, database.StatusFilter{
		Statuses: []models.ListStatus{models.StatusBlocked},
	})
	if err != nil {
		log.Warn().Err(err).Msg("Blocked titles unavailable for critic stage")
	}
	blockedRefs := make([]models.MediaRef, 0, len(blocked))
	for i := range blocked {
		blockedRefs = append(blockedRefs, blocked[i].Media)
	}

	movies, movieProfile := w.picks(ctx, v, models.MediaTypeMovie, excl, blockedRefs)
	shows, showProfile := w.picks(ctx, v, models.MediaTypeTV, excl, blockedRefs)

	now := w.now().UTC()
	rec := &models.WeeklyWatchlistRecord{
		UserID:       userID,
		WeekStart:    models.WeekStart(now),
		Movies:       movies,
		Shows:        shows,
		TasteProfile: "Movies: " + movieProfile.Describe() + "\n\nTV: " + showProfile.Describe(),
		GeneratedAt:  now,
	}
	if err := w.deps.Weekly.SaveWeeklyRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("save weekly picks: %w", err)
	}

	w.deps.notifier().Notify(userID, EventWeeklyReady, map[string]any{
		"week_start": rec.WeekStart,
		"movies":     len(movies),
		"shows":      len(shows),
	})
	log.Info().Int("movies", len(movies)).Int("shows", len(shows)).
		Dur("duration", w.now().Sub(start)).Msg("Weekly picks generated")
	return rec, nil
}

// picks runs discovery and both selection stages for one media type.
func (w *WeeklyPicks) picks(ctx context.Context, v Viewer, mt models.MediaType, excl *ExclusionSet, blocked []models.MediaRef) ([]models.Candidate, models.TasteProfile) {
	prof, err := w.taste.Compute(ctx, v, mt)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("media_type", string(mt)).Msg("Taste profile unavailable, using neutral profile")
	}

	pool := w.source.Discover(ctx, prof, excl, w.cfg.PoolSize)
	pool = mergeCandidates(pool, w.source.FromAnchors(ctx, v.UserID, mt, excl, w.cfg.CuratorSize))
	pool = w.dropHandled(ctx, pool)

	in := StageInput{MediaType: mt, Profile: prof, Candidates: toRanked(pool), Blocked: blocked}
	in.Candidates = w.curator.Select(ctx, in)
	final := w.critic.Select(ctx, in)
	return fromRanked(final), prof
}

// dropHandled removes candidates the request manager already knows as
// pending, processing or (partially) available. Lookups run concurrently;
// a failed lookup keeps the candidate.
func (w *WeeklyPicks) dropHandled(ctx context.Context, pool []models.Candidate) []models.Candidate {
	if w.deps.Requests == nil || !w.deps.Requests.Enabled() || len(pool) == 0 {
		return pool
	}

	handled := make([]bool, len(pool))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupParallel)
	for i := range pool {
		g.Go(func() error {
			st, err := w.deps.Requests.Status(gctx, pool[i].MediaType, pool[i].ExternalID)
			if err != nil {
				logging.Ctx(ctx).Debug().Err(err).Int("external_id", pool[i].ExternalID).Msg("Request status lookup failed")
				return nil
			}
			handled[i] = st.AlreadyHandled()
			return nil
		})
	}
	_ = g.Wait()

	out := pool[:0:0]
	for i := range pool {
		if !handled[i] {
			out = append(out, pool[i])
		}
	}
	return out
}

// RunAll regenerates every user's picks, one user at a time. A failing
// user is logged and counted; the batch continues.
func (w *WeeklyPicks) RunAll(ctx context.Context) error {
	return runForUsers(ctx, w.deps.Users, "weekly", func(ctx context.Context, userID string) error {
		_, err := w.Generate(ctx, userID)
		return err
	})
}

// QueueAll enqueues a generation job per user and returns how many were
// queued.
func (w *WeeklyPicks) QueueAll(ctx context.Context) (int, error) {
	users, err := w.deps.Users.ListUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}
	queued := 0
	for i := range users {
		if err := w.deps.Jobs.Publish(ctx, jobs.TopicWeeklyGenerate, WeeklyJob{UserID: users[i].ID}); err != nil {
			return queued, err
		}
		queued++
	}
	return queued, nil
}

// HandleGenerate is the jobs.TopicWeeklyGenerate handler.
func (w *WeeklyPicks) HandleGenerate(ctx context.Context, payload []byte) error {
	job, err := jobs.Decode[WeeklyJob](payload)
	if err != nil {
		return err
	}
	_, err = w.Generate(ctx, job.UserID)
	return err
}

// runForUsers calls fn for every user sequentially, isolating failures.
func runForUsers(ctx context.Context, users UserLister, job string, fn func(ctx context.Context, userID string) error) error {
	list, err := users.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	failed := 0
	for i := range list {
		if err := ctx.Err(); err != nil {
			return err
		}
		userCtx := logging.ContextWithNewCorrelationID(ctx)
		if err := fn(userCtx, list[i].ID); err != nil {
			failed++
			metrics.BatchUserFailures.WithLabelValues(job).Inc()
			logging.Ctx(userCtx).Error().Err(err).Str("job", job).Str("user_id", list[i].ID).
				Msg("Batch run failed for user, continuing")
		}
	}
	logging.Ctx(ctx).Info().Str("job", job).Int("users", len(list)).Int("failed", failed).Msg("Batch run complete")
	return nil
}
