// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package database

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/tomtom215/marquee/internal/logging"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// DuckDB reports optimistic concurrency failures only through the message.
var conflictMarkers = []string{
	"Transaction conflict",
	"Conflict on update",
	"Conflict on tuple deletion",
}

func closeWithLog(c io.Closer, what string) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		logging.Warn().Err(err).Str("type", what).Msg("Close failed")
	}
}

// closeQuietly is for error paths that already return a more useful error.
func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

func isTransactionConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, m := range conflictMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// withConflictRetry reruns fn while it fails with a write-write conflict,
// waiting attempt*conflictDelay before each retry. Two requests upserting
// the same status row at once hit this.
func (db *DB) withConflictRetry(ctx context.Context, fn func() error) error {
	err := fn()
	for attempt := 1; attempt <= db.maxConflictRetries && isTransactionConflict(err); attempt++ {
		t := time.NewTimer(time.Duration(attempt) * db.conflictDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		err = fn()
	}
	return err
}
