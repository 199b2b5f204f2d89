// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package scheduler runs recurring batch jobs on cron schedules.
//
// The scheduler sleeps until the earliest next firing time across its
// jobs, starts every due job on its own goroutine, and skips a firing
// when the previous run of the same job is still in progress. It
// implements suture.Service through Serve.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/metrics"
)

// JobFunc is one scheduled batch run.
type JobFunc func(ctx context.Context) error

type job struct {
	name    string
	cron    *Cron
	loc     *time.Location
	fn      JobFunc
	next    time.Time
	running atomic.Bool
}

// Scheduler owns a set of cron jobs.
type Scheduler struct {
	logger zerolog.Logger
	now    func() time.Time

	mu   sync.Mutex
	jobs []*job
	wg   sync.WaitGroup
}

// New creates an empty scheduler.
func New() *Scheduler {
	return &Scheduler{
		logger: logging.WithComponent("scheduler"),
		now:    time.Now,
	}
}

// Add registers fn under name. timezone may be empty for UTC.
func (s *Scheduler) Add(name, schedule, timezone string, fn JobFunc) error {
	expr, err := ParseCron(schedule)
	if err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}
	loc := time.UTC
	if timezone != "" {
		if loc, err = time.LoadLocation(timezone); err != nil {
			return fmt.Errorf("job %s: invalid timezone %q: %w", name, timezone, err)
		}
	}

	j := &job{name: name, cron: expr, loc: loc, fn: fn}
	j.next = expr.NextRun(s.now(), loc)
	if j.next.IsZero() {
		return fmt.Errorf("job %s: schedule %q never fires", name, schedule)
	}

	s.mu.Lock()
	s.jobs = append(s.jobs, j)
	s.mu.Unlock()

	s.logger.Info().Str("job", name).Str("schedule", schedule).
		Time("next_run", j.next).Msg("Scheduled job registered")
	return nil
}

// NextRun returns the next firing time of the named job.
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.name == name {
			return j.next, true
		}
	}
	return time.Time{}, false
}

// Serve blocks until ctx is cancelled, then waits for running jobs.
func (s *Scheduler) Serve(ctx context.Context) error {
	defer s.wg.Wait()

	for {
		wake, ok := s.earliest()
		if !ok {
			<-ctx.Done()
			return ctx.Err()
		}

		timer := time.NewTimer(time.Until(wake))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			s.runDue(ctx, s.now())
		}
	}
}

func (s *Scheduler) earliest() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first time.Time
	for _, j := range s.jobs {
		if first.IsZero() || j.next.Before(first) {
			first = j.next
		}
	}
	return first, !first.IsZero()
}

// runDue starts every job whose next firing is at or before now and
// advances its schedule.
func (s *Scheduler) runDue(ctx context.Context, now time.Time) {
	s.mu.Lock()
	var due []*job
	for _, j := range s.jobs {
		if !j.next.After(now) {
			due = append(due, j)
			j.next = j.cron.NextRun(now, j.loc)
		}
	}
	s.mu.Unlock()

	for _, j := range due {
		if !j.running.CompareAndSwap(false, true) {
			s.logger.Warn().Str("job", j.name).Msg("Previous run still in progress, skipping")
			continue
		}
		s.wg.Add(1)
		go s.execute(ctx, j)
	}
}

func (s *Scheduler) execute(ctx context.Context, j *job) {
	defer s.wg.Done()
	defer j.running.Store(false)

	ctx = logging.ContextWithNewCorrelationID(ctx)
	log := s.logger.With().Str("job", j.name).
		Str("correlation_id", logging.CorrelationIDFromContext(ctx)).Logger()

	metrics.ScheduledRuns.WithLabelValues(j.name).Inc()
	start := time.Now()
	log.Info().Msg("Scheduled job started")

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("scheduled job panicked: %v", r)
			}
		}()
		return j.fn(ctx)
	}()

	switch {
	case err == nil:
		log.Info().Dur("duration", time.Since(start)).Msg("Scheduled job finished")
	case errors.Is(err, context.Canceled):
		log.Info().Msg("Scheduled job cancelled")
	default:
		log.Error().Err(err).Dur("duration", time.Since(start)).Msg("Scheduled job failed")
	}
}

// String implements fmt.Stringer for supervisor logs.
func (s *Scheduler) String() string {
	return "scheduler"
}
