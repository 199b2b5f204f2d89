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

	"github.com/tomtom215/marquee/internal/database/query"
	"github.com/tomtom215/marquee/internal/models"
)

const statusColumns = `user_id, external_id, media_type, title, release_year, status,
	permanent_block, soft_block_until, redemption_attempts, updated_at`

// StatusFilter narrows ListMediaStatus. Zero values match everything.
type StatusFilter struct {
	Statuses  []models.ListStatus
	MediaType models.MediaType
	Limit     int
}

// SetMediaStatus stores the status of one item for a user. A row for the
// same (user, item) is replaced, so repeating the call is idempotent and a
// status transition never leaves two rows behind. Redemption attempts
// survive a re-write of the same status and reset on a transition.
func (db *DB) SetMediaStatus(ctx context.Context, s *models.UserMediaStatus) error {
	if s.Media.ExternalID <= 0 || !s.Media.MediaType.Valid() {
		return fmt.Errorf("invalid media reference %d/%s", s.Media.ExternalID, s.Media.MediaType)
	}
	start := time.Now()
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = start.UTC()
	}

	q := `INSERT INTO user_media_status (` + statusColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, external_id, media_type) DO UPDATE SET
			title = excluded.title,
			release_year = excluded.release_year,
			status = excluded.status,
			permanent_block = excluded.permanent_block,
			soft_block_until = excluded.soft_block_until,
			redemption_attempts = CASE
				WHEN status = excluded.status THEN redemption_attempts
				ELSE excluded.redemption_attempts
			END,
			updated_at = excluded.updated_at`

	err := db.withConflictRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx, q,
			s.UserID, s.Media.ExternalID, string(s.Media.MediaType), s.Media.Title, s.Media.ReleaseYear,
			string(s.Status), s.PermanentBlock, nullTime(s.SoftBlockUntil), s.RedemptionAttempts, s.UpdatedAt,
		)
		return err
	})
	observe("upsert", "user_media_status", start, err)
	if err != nil {
		return fmt.Errorf("failed to set media status: %w", err)
	}
	return nil
}

// GetMediaStatus returns the status row for one item.
func (db *DB) GetMediaStatus(ctx context.Context, userID string, mediaType models.MediaType, externalID int) (*models.UserMediaStatus, error) {
	start := time.Now()
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+statusColumns+` FROM user_media_status WHERE user_id = ? AND external_id = ? AND media_type = ?`,
		userID, externalID, string(mediaType))
	s, err := scanStatus(row)
	if errors.Is(err, sql.ErrNoRows) {
		observe("select", "user_media_status", start, nil)
		return nil, ErrNotFound
	}
	observe("select", "user_media_status", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get media status: %w", err)
	}
	return s, nil
}

// RemoveMediaStatus deletes the status row for one item.
func (db *DB) RemoveMediaStatus(ctx context.Context, userID string, mediaType models.MediaType, externalID int) error {
	start := time.Now()
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM user_media_status WHERE user_id = ? AND external_id = ? AND media_type = ?`,
		userID, externalID, string(mediaType))
	observe("delete", "user_media_status", start, err)
	if err != nil {
		return fmt.Errorf("failed to remove media status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMediaStatus returns a user's rows, most recently updated first.
func (db *DB) ListMediaStatus(ctx context.Context, userID string, filter StatusFilter) ([]models.UserMediaStatus, error) {
	start := time.Now()
	wb := query.NewWhereBuilder().AddEquals("user_id", userID)
	query.AddIn(wb, "status", statusStrings(filter.Statuses))
	wb.AddEquals("media_type", string(filter.MediaType))
	where, args := wb.BuildWithPrefix()

	q := query.Limit(`SELECT `+statusColumns+` FROM user_media_status `+where+` ORDER BY updated_at DESC, external_id`, filter.Limit)
	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		observe("select", "user_media_status", start, err)
		return nil, fmt.Errorf("failed to list media status: %w", err)
	}
	defer closeWithLog(rows, "rows")

	var out []models.UserMediaStatus
	for rows.Next() {
		s, err := scanStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan media status: %w", err)
		}
		out = append(out, *s)
	}
	err = rows.Err()
	observe("select", "user_media_status", start, err)
	return out, err
}

// StatusIDs returns the external IDs of every item the user has marked with
// any status, mapped to that status.
func (db *DB) StatusIDs(ctx context.Context, userID string) (map[int]models.ListStatus, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx,
		`SELECT external_id, status FROM user_media_status WHERE user_id = ?`, userID)
	if err != nil {
		observe("select", "user_media_status", start, err)
		return nil, fmt.Errorf("failed to load status ids: %w", err)
	}
	defer closeWithLog(rows, "rows")

	ids := make(map[int]models.ListStatus)
	for rows.Next() {
		var id int
		var status string
		if err := rows.Scan(&id, &status); err != nil {
			return nil, fmt.Errorf("failed to scan status id: %w", err)
		}
		ids[id] = models.ListStatus(status)
	}
	err = rows.Err()
	observe("select", "user_media_status", start, err)
	return ids, err
}

// IncrementRedemptionAttempts bumps the redemption counter of a blocked item.
func (db *DB) IncrementRedemptionAttempts(ctx context.Context, userID string, mediaType models.MediaType, externalID int) error {
	start := time.Now()
	err := db.withConflictRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx,
			`UPDATE user_media_status SET redemption_attempts = redemption_attempts + 1
			WHERE user_id = ? AND external_id = ? AND media_type = ?`,
			userID, externalID, string(mediaType))
		return err
	})
	observe("update", "user_media_status", start, err)
	if err != nil {
		return fmt.Errorf("failed to increment redemption attempts: %w", err)
	}
	return nil
}

func scanStatus(row rowScanner) (*models.UserMediaStatus, error) {
	var (
		s         models.UserMediaStatus
		mediaType string
		status    string
		softUntil sql.NullTime
	)
	if err := row.Scan(&s.UserID, &s.Media.ExternalID, &mediaType, &s.Media.Title, &s.Media.ReleaseYear,
		&status, &s.PermanentBlock, &softUntil, &s.RedemptionAttempts, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Media.MediaType = models.MediaType(mediaType)
	s.Status = models.ListStatus(status)
	if softUntil.Valid {
		t := softUntil.Time
		s.SoftBlockUntil = &t
	}
	return &s, nil
}

func statusStrings(statuses []models.ListStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
