// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package services

import (
	"context"
	"fmt"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/marquee/internal/logging"
)

// RunFunc is a blocking loop that returns when ctx is cancelled.
type RunFunc func(ctx context.Context) error

// RunnerService supervises a RunFunc such as websocket.Hub.Run or
// jobs.Queue.Run.
//
// Some loops cannot be started twice (a watermill router is single use).
// For those, set OneShot: an unexpected return then terminates the tree
// instead of restarting into a permanent failure loop.
type RunnerService struct {
	name    string
	run     RunFunc
	oneShot bool
}

// NewRunnerService wraps run under name.
func NewRunnerService(name string, run RunFunc) *RunnerService {
	return &RunnerService{name: name, run: run}
}

// OneShot marks the loop as not restartable.
func (s *RunnerService) OneShot() *RunnerService {
	s.oneShot = true
	return s
}

// Serve implements suture.Service.
func (s *RunnerService) Serve(ctx context.Context) error {
	err := s.run(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if s.oneShot {
		// suture compares the sentinel directly, so it is returned unwrapped.
		logging.Error().Err(err).Str("service", s.name).Msg("Service cannot restart, stopping")
		return suture.ErrTerminateSupervisorTree
	}
	if err == nil {
		return fmt.Errorf("%s stopped unexpectedly", s.name)
	}
	return err
}

func (s *RunnerService) String() string {
	return s.name
}
