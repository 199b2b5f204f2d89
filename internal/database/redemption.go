// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/marquee/internal/models"
)

// SaveRedemptionCandidates replaces the user's cached redemption results.
func (db *DB) SaveRedemptionCandidates(ctx context.Context, userID string, candidates []models.RedemptionCandidate) error {
	start := time.Now()
	if candidates == nil {
		candidates = []models.RedemptionCandidate{}
	}
	cols, err := marshalColumns(candidates)
	if err != nil {
		return err
	}

	err = db.withConflictRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx,
			`INSERT INTO redemption_cache (user_id, candidates, generated_at) VALUES (?, ?, ?)
			ON CONFLICT (user_id) DO UPDATE SET
				candidates = excluded.candidates,
				generated_at = excluded.generated_at`,
			userID, cols[0], start.UTC())
		return err
	})
	observe("upsert", "redemption_cache", start, err)
	if err != nil {
		return fmt.Errorf("failed to save redemption candidates: %w", err)
	}
	return nil
}

// GetRedemptionCandidates returns the cached results and when they were
// generated. ErrNotFound means the advisor has not run for this user.
func (db *DB) GetRedemptionCandidates(ctx context.Context, userID string) ([]models.RedemptionCandidate, time.Time, error) {
	start := time.Now()
	var (
		raw         string
		generatedAt time.Time
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT candidates, generated_at FROM redemption_cache WHERE user_id = ?`, userID,
	).Scan(&raw, &generatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		observe("select", "redemption_cache", start, nil)
		return nil, time.Time{}, ErrNotFound
	}
	observe("select", "redemption_cache", start, err)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to load redemption candidates: %w", err)
	}

	var out []models.RedemptionCandidate
	if err := unmarshalColumns([]string{raw}, &out); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to decode redemption candidates: %w", err)
	}
	return out, generatedAt, nil
}
