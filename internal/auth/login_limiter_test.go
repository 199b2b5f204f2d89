// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package auth

import (
	"testing"
	"time"
)

func TestLoginLimiter(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	l := NewLoginLimiter(3, time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !l.Allow("Alice") {
			t.Fatalf("attempt %d rejected", i+1)
		}
	}
	if l.Allow(" alice ") {
		t.Error("fourth attempt allowed; usernames should be case-insensitive")
	}
	if !l.Allow("bob") {
		t.Error("other users must not be affected")
	}

	now = now.Add(time.Minute)
	if !l.Allow("alice") {
		t.Error("bucket did not refill")
	}

	l.Reset("ALICE")
	if !l.Allow("alice") || !l.Allow("alice") {
		t.Error("Reset did not clear the bucket")
	}
}

func TestLoginLimiterCleanup(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	l := NewLoginLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	l.Allow("old")
	now = now.Add(90 * time.Second)
	l.Allow("recent")
	now = now.Add(time.Minute)

	if removed := l.Cleanup(); removed != 1 {
		t.Errorf("Cleanup() removed %d, want 1", removed)
	}
}
