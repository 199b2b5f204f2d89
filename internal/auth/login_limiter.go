// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package auth

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LoginLimiter throttles login attempts per username so a client cannot
// hammer Jellyfin's authentication endpoint. Each username gets a token
// bucket of burst attempts refilled at one per interval.
type LoginLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	every    rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLoginLimiter allows burst attempts per username, refilled one per
// interval. Entries idle for longer than burst intervals are dropped by
// Cleanup.
func NewLoginLimiter(burst int, interval time.Duration) *LoginLimiter {
	if burst < 1 {
		burst = 1
	}
	return &LoginLimiter{
		limiters: make(map[string]*limiterEntry),
		every:    rate.Every(interval),
		burst:    burst,
		idle:     time.Duration(burst) * interval,
		now:      time.Now,
	}
}

// Allow reports whether another login attempt for username may proceed.
func (l *LoginLimiter) Allow(username string) bool {
	key := strings.ToLower(strings.TrimSpace(username))
	now := l.now()

	l.mu.Lock()
	e, ok := l.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.every, l.burst)}
		l.limiters[key] = e
	}
	e.lastSeen = now
	l.mu.Unlock()

	return e.limiter.AllowN(now, 1)
}

// Reset forgets username, typically after a successful login.
func (l *LoginLimiter) Reset(username string) {
	l.mu.Lock()
	delete(l.limiters, strings.ToLower(strings.TrimSpace(username)))
	l.mu.Unlock()
}

// Cleanup drops idle entries and returns how many were removed.
func (l *LoginLimiter) Cleanup() int {
	cutoff := l.now().Add(-l.idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for k, e := range l.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(l.limiters, k)
			removed++
		}
	}
	return removed
}
