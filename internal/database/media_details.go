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

	"github.com/goccy/go-json"

	"github.com/tomtom215/marquee/internal/models"
)

// SaveMediaDetails stores the enrichment captured for one title. The
// similar and recommendation ID lists feed anchor discovery.
func (db *DB) SaveMediaDetails(ctx context.Context, d *models.MediaDetails) error {
	start := time.Now()
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = start.UTC()
	}

	cols, err := marshalColumns(d.Genres, d.Keywords, d.Cast, d.Similar, d.Recommendations)
	if err != nil {
		return err
	}

	q := `INSERT INTO media_details (external_id, media_type, title, genres, keywords, cast_names,
			similar_ids, recommendation_ids, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_id, media_type) DO UPDATE SET
			title = excluded.title,
			genres = excluded.genres,
			keywords = excluded.keywords,
			cast_names = excluded.cast_names,
			similar_ids = excluded.similar_ids,
			recommendation_ids = excluded.recommendation_ids,
			updated_at = excluded.updated_at`

	err = db.withConflictRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx, q,
			d.ExternalID, string(d.MediaType), d.Title, cols[0], cols[1], cols[2], cols[3], cols[4], d.UpdatedAt)
		return err
	})
	observe("upsert", "media_details", start, err)
	if err != nil {
		return fmt.Errorf("failed to save media details %d: %w", d.ExternalID, err)
	}
	return nil
}

// GetMediaDetails returns stored enrichment for one title.
func (db *DB) GetMediaDetails(ctx context.Context, mediaType models.MediaType, externalID int) (*models.MediaDetails, error) {
	start := time.Now()
	var (
		d                                            models.MediaDetails
		mt                                           string
		genres, keywords, castNames, similar, recIDs string
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT external_id, media_type, title, genres, keywords, cast_names, similar_ids, recommendation_ids, updated_at
		FROM media_details WHERE external_id = ? AND media_type = ?`,
		externalID, string(mediaType),
	).Scan(&d.ExternalID, &mt, &d.Title, &genres, &keywords, &castNames, &similar, &recIDs, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		observe("select", "media_details", start, nil)
		return nil, ErrNotFound
	}
	observe("select", "media_details", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get media details %d: %w", externalID, err)
	}

	d.MediaType = models.MediaType(mt)
	if err := unmarshalColumns(
		[]string{genres, keywords, castNames, similar, recIDs},
		&d.Genres, &d.Keywords, &d.Cast, &d.Similar, &d.Recommendations,
	); err != nil {
		return nil, fmt.Errorf("failed to decode media details %d: %w", externalID, err)
	}
	return &d, nil
}

func marshalColumns(values ...any) ([]string, error) {
	out := make([]string, len(values))
	for i, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode column: %w", err)
		}
		out[i] = string(b)
	}
	return out, nil
}

func unmarshalColumns(raw []string, dest ...any) error {
	for i, s := range raw {
		if s == "" || s == "null" {
			continue
		}
		if err := json.Unmarshal([]byte(s), dest[i]); err != nil {
			return err
		}
	}
	return nil
}
