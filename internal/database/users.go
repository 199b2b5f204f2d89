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

	"github.com/google/uuid"

	"github.com/tomtom215/marquee/internal/models"
)

const userColumns = `id, jellyfin_user_id, username, access_token, is_admin, created_at, last_login_at`

// UpsertUser inserts a user keyed by Jellyfin user ID or refreshes the
// username, token, admin flag and login time of an existing one. u.ID is
// set to the stored local ID. The access token must already be encrypted.
func (db *DB) UpsertUser(ctx context.Context, u *models.User) error {
	start := time.Now()
	now := start.UTC()
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.LastLoginAt = now

	query := `INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (jellyfin_user_id) DO UPDATE SET
			username = excluded.username,
			access_token = excluded.access_token,
			is_admin = excluded.is_admin,
			last_login_at = excluded.last_login_at
		RETURNING id, created_at`

	err := db.withConflictRetry(ctx, func() error {
		return db.conn.QueryRowContext(ctx, query,
			u.ID, u.JellyfinUserID, u.Username, u.AccessToken, u.IsAdmin, u.CreatedAt, u.LastLoginAt,
		).Scan(&u.ID, &u.CreatedAt)
	})
	observe("upsert", "users", start, err)
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", u.Username, err)
	}
	return nil
}

// GetUser returns a user by local ID.
func (db *DB) GetUser(ctx context.Context, id string) (*models.User, error) {
	start := time.Now()
	row := db.conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		observe("select", "users", start, nil)
		return nil, ErrNotFound
	}
	observe("select", "users", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	return u, nil
}

// ListUsers returns every known user ordered by username.
func (db *DB) ListUsers(ctx context.Context) ([]models.User, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		observe("select", "users", start, err)
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer closeWithLog(rows, "rows")

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *u)
	}
	err = rows.Err()
	observe("select", "users", start, err)
	return users, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.JellyfinUserID, &u.Username, &u.AccessToken, &u.IsAdmin, &u.CreatedAt, &u.LastLoginAt); err != nil {
		return nil, err
	}
	return &u, nil
}
