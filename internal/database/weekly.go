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

// SaveWeeklyRecord stores the weekly picks for a user's ISO week,
// replacing an earlier run for the same week.
func (db *DB) SaveWeeklyRecord(ctx context.Context, rec *models.WeeklyWatchlistRecord) error {
	start := time.Now()
	if rec.WeekStart.IsZero() {
		rec.WeekStart = models.WeekStart(start)
	}
	if rec.GeneratedAt.IsZero() {
		rec.GeneratedAt = start.UTC()
	}

	cols, err := marshalColumns(rec.Movies, rec.Shows)
	if err != nil {
		return err
	}

	err = db.withConflictRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx,
			`INSERT INTO weekly_watchlists (user_id, week_start, movies, shows, taste_profile, generated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id, week_start) DO UPDATE SET
				movies = excluded.movies,
				shows = excluded.shows,
				taste_profile = excluded.taste_profile,
				generated_at = excluded.generated_at`,
			rec.UserID, rec.WeekStart.UTC(), cols[0], cols[1], rec.TasteProfile, rec.GeneratedAt.UTC())
		return err
	})
	observe("upsert", "weekly_watchlists", start, err)
	if err != nil {
		return fmt.Errorf("failed to save weekly record: %w", err)
	}
	return nil
}

// LatestWeeklyRecord returns the most recently generated weekly picks.
func (db *DB) LatestWeeklyRecord(ctx context.Context, userID string) (*models.WeeklyWatchlistRecord, error) {
	start := time.Now()
	var (
		rec           models.WeeklyWatchlistRecord
		movies, shows string
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT user_id, week_start, movies, shows, taste_profile, generated_at
		FROM weekly_watchlists WHERE user_id = ?
		ORDER BY generated_at DESC LIMIT 1`, userID,
	).Scan(&rec.UserID, &rec.WeekStart, &movies, &shows, &rec.TasteProfile, &rec.GeneratedAt)
	if errors.Is(err, sql.ErrNoRows) {
		observe("select", "weekly_watchlists", start, nil)
		return nil, ErrNotFound
	}
	observe("select", "weekly_watchlists", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to load weekly record: %w", err)
	}
	if err := unmarshalColumns([]string{movies, shows}, &rec.Movies, &rec.Shows); err != nil {
		return nil, fmt.Errorf("failed to decode weekly record: %w", err)
	}
	return &rec, nil
}
