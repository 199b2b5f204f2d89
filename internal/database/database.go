// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package database stores users, list statuses, enrichment data, weekly
// picks and redemption results in DuckDB.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/metrics"
)

const (
	inMemory         = ":memory:"
	defaultMaxMemory = "512MB"
	closeCheckpoint  = 30 * time.Second
)

// DB is Marquee's store. All methods are safe for concurrent use.
type DB struct {
	conn *sql.DB

	// Write-write conflicts are retried this many times, backing off by
	// conflictDelay per attempt.
	maxConflictRetries int
	conflictDelay      time.Duration
}

// New opens (creating if needed) the database at cfg.Path and ensures the
// schema exists.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	if err := ensureDir(cfg.Path); err != nil {
		return nil, err
	}

	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	conn, err := sql.Open("duckdb", dsn(cfg.Path, threads, cfg.MaxMemory))
	if err != nil {
		return nil, fmt.Errorf("open duckdb %s: %w", cfg.Path, err)
	}
	conn.SetMaxOpenConns(runtime.NumCPU())
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxIdleTime(5 * time.Minute)
	conn.SetConnMaxLifetime(time.Hour)

	db := &DB{conn: conn, maxConflictRetries: 3, conflictDelay: 25 * time.Millisecond}
	if err := db.createTables(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("create schema: %w", err)
	}

	logging.Info().Str("path", cfg.Path).Int("threads", threads).Msg("Database ready")
	return db, nil
}

func ensureDir(path string) error {
	if path == inMemory {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create database directory %s: %w", dir, err)
	}
	return nil
}

func dsn(path string, threads int, maxMemory string) string {
	if maxMemory == "" {
		maxMemory = defaultMaxMemory
	}
	q := url.Values{}
	q.Set("access_mode", "read_write")
	q.Set("threads", strconv.Itoa(threads))
	q.Set("max_memory", maxMemory)
	return path + "?" + q.Encode()
}

// Conn exposes the pool for packages that build their own queries.
func (db *DB) Conn() *sql.DB { return db.conn }

// Ping is used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	if db.conn == nil {
		return errors.New("database is closed")
	}
	return db.conn.PingContext(ctx)
}

// Checkpoint writes the DuckDB WAL into the main file.
func (db *DB) Checkpoint(ctx context.Context) error {
	start := time.Now()
	_, err := db.conn.ExecContext(ctx, "CHECKPOINT")
	observe("checkpoint", "", start, err)
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}

// Close runs a last checkpoint, then closes the pool. A failed checkpoint
// is logged and does not prevent the close.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeCheckpoint)
	defer cancel()
	if err := db.Checkpoint(ctx); err != nil {
		logging.Warn().Err(err).Msg("Checkpoint before close failed")
	}
	err := db.conn.Close()
	db.conn = nil
	return err
}

func observe(operation, table string, start time.Time, err error) {
	metrics.RecordDBQuery(operation, table, time.Since(start), err)
}
