// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates every table if absent. There is no migration step;
// columns are defined in the initial statements. Tables carry no secondary
// indexes because DuckDB rewrites ON CONFLICT updates of indexed columns as
// delete plus insert.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}

var tableCreationQueries = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR PRIMARY KEY,
		jellyfin_user_id VARCHAR NOT NULL UNIQUE,
		username VARCHAR NOT NULL,
		access_token VARCHAR NOT NULL DEFAULT '',
		is_admin BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL,
		last_login_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS user_media_status (
		user_id VARCHAR NOT NULL,
		external_id INTEGER NOT NULL,
		media_type VARCHAR NOT NULL,
		title VARCHAR NOT NULL DEFAULT '',
		release_year VARCHAR NOT NULL DEFAULT '',
		status VARCHAR NOT NULL,
		permanent_block BOOLEAN NOT NULL DEFAULT FALSE,
		soft_block_until TIMESTAMP,
		redemption_attempts INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, external_id, media_type)
	)`,

	`CREATE TABLE IF NOT EXISTS media_details (
		external_id INTEGER NOT NULL,
		media_type VARCHAR NOT NULL,
		title VARCHAR NOT NULL DEFAULT '',
		genres VARCHAR NOT NULL DEFAULT '[]',
		keywords VARCHAR NOT NULL DEFAULT '[]',
		cast_names VARCHAR NOT NULL DEFAULT '[]',
		similar_ids VARCHAR NOT NULL DEFAULT '[]',
		recommendation_ids VARCHAR NOT NULL DEFAULT '[]',
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (external_id, media_type)
	)`,

	`CREATE TABLE IF NOT EXISTS weekly_watchlists (
		user_id VARCHAR NOT NULL,
		week_start DATE NOT NULL,
		movies VARCHAR NOT NULL DEFAULT '[]',
		shows VARCHAR NOT NULL DEFAULT '[]',
		taste_profile VARCHAR NOT NULL DEFAULT '',
		generated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, week_start)
	)`,

	`CREATE TABLE IF NOT EXISTS redemption_cache (
		user_id VARCHAR PRIMARY KEY,
		candidates VARCHAR NOT NULL DEFAULT '[]',
		generated_at TIMESTAMP NOT NULL
	)`,
}
