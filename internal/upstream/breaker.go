// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package upstream

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/metrics"
)

const (
	breakerHalfOpenProbes = 3
	breakerWindow         = time.Minute
	breakerCooldown       = 2 * time.Minute
	breakerMinRequests    = 10
	breakerTripRatio      = 0.6
)

// Breaker guards one upstream service. It opens when at least 60% of ten or
// more calls inside a one minute window fail, and probes again after two
// minutes. Expired sessions, bad credentials, 404s and caller cancellation
// are not failures of the service and never count against it.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker[struct{}]
}

// NewBreaker creates the breaker for service name.
func NewBreaker(name string) *Breaker {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)

	return &Breaker{
		name: name,
		cb: gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:          name,
			MaxRequests:   breakerHalfOpenProbes,
			Interval:      breakerWindow,
			Timeout:       breakerCooldown,
			ReadyToTrip:   tripper(name),
			OnStateChange: recordTransition,
			IsSuccessful:  healthyOutcome,
		}),
	}
}

func tripper(name string) func(gobreaker.Counts) bool {
	return func(c gobreaker.Counts) bool {
		if c.Requests < breakerMinRequests {
			return false
		}
		ratio := float64(c.TotalFailures) / float64(c.Requests)
		if ratio < breakerTripRatio {
			return false
		}
		logging.Warn().Str("breaker", name).Uint32("failures", c.TotalFailures).
			Uint32("requests", c.Requests).Msg("Upstream failing, opening circuit")
		return true
	}
}

func recordTransition(name string, from, to gobreaker.State) {
	logging.Info().Str("breaker", name).Str("from", stateToString(from)).Str("to", stateToString(to)).
		Msg("Circuit breaker state changed")
	metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
	metrics.CircuitBreakerTransitions.WithLabelValues(name, stateToString(from), stateToString(to)).Inc()
	if to == gobreaker.StateClosed {
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
	}
}

func healthyOutcome(err error) bool {
	switch {
	case err == nil, IsNotFound(err):
		return true
	case errors.Is(err, ErrAuthExpired), errors.Is(err, ErrInvalidCredentials):
		return true
	}
	return errors.Is(err, context.Canceled)
}

func (b *Breaker) Name() string { return b.name }

// State is "closed", "half-open" or "open".
func (b *Breaker) State() string { return stateToString(b.cb.State()) }

// IsUnavailable reports whether err came from a breaker refusing the call.
func IsUnavailable(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// run calls fn unless the circuit is open.
func (b *Breaker) run(fn func() error) error {
	_, err := b.cb.Execute(func() (struct{}, error) { return struct{}{}, fn() })

	outcome := "success"
	switch {
	case err == nil:
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(b.name).Set(0)
	case IsUnavailable(err):
		outcome = "rejected"
		logging.Debug().Err(err).Str("breaker", b.name).Msg("Call rejected by open circuit")
	default:
		outcome = "failure"
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(b.name).Set(float64(b.cb.Counts().ConsecutiveFailures))
	}
	metrics.CircuitBreakerRequests.WithLabelValues(b.name, outcome).Inc()
	return err
}

var (
	stateNames  = map[gobreaker.State]string{gobreaker.StateClosed: "closed", gobreaker.StateHalfOpen: "half-open", gobreaker.StateOpen: "open"}
	stateValues = map[gobreaker.State]float64{gobreaker.StateClosed: 0, gobreaker.StateHalfOpen: 1, gobreaker.StateOpen: 2}
)

func stateToString(s gobreaker.State) string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// stateToFloat is the gauge value; -1 marks an unknown state.
func stateToFloat(s gobreaker.State) float64 {
	if v, ok := stateValues[s]; ok {
		return v
	}
	return -1
}
