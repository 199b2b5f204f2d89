// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package database

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithConflictRetry(t *testing.T) {
	conflict := errors.New("TransactionContext Error: Transaction conflict: cannot update a table that has been altered")
	other := errors.New("constraint violated")

	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   error
	}{
		{"success first try", []error{nil}, 1, nil},
		{"conflict then success", []error{conflict, nil}, 2, nil},
		{"other error is not retried", []error{other}, 1, other},
		{"gives up after retries", []error{conflict, conflict, conflict, conflict, conflict}, 4, conflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &DB{maxConflictRetries: 3, conflictDelay: time.Millisecond}
			calls := 0
			err := db.withConflictRetry(context.Background(), func() error {
				e := tt.errs[calls]
				calls++
				return e
			})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestWithConflictRetryCancelled(t *testing.T) {
	db := &DB{maxConflictRetries: 3, conflictDelay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := db.withConflictRetry(ctx, func() error { return errors.New("Conflict on update") })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
