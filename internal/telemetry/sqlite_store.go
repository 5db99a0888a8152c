// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cost_records (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	ts       TEXT NOT NULL,
	cost_usd REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cost_records_ts ON cost_records(ts);
`

// =============================================================================
// SQLITE STORE
// =============================================================================

// SQLiteStore keeps records in a cost_records table. Timestamps use
// TimestampLayout so lexical order matches time order.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Append inserts rec.
func (s *SQLiteStore) Append(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO cost_records (ts, cost_usd) VALUES (?, ?)",
		rec.Timestamp.UTC().Format(TimestampLayout), rec.CostUSD)
	return err
}

// Since returns the records at or after t in insertion order. Rows whose
// timestamp does not parse are skipped.
func (s *SQLiteStore) Since(ctx context.Context, t time.Time) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT ts, cost_usd FROM cost_records WHERE ts >= ? ORDER BY id",
		t.UTC().Format(TimestampLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var ts string
		var cost float64
		if err := rows.Scan(&ts, &cost); err != nil {
			continue
		}
		parsed, err := parseTimestamp(ts)
		if err != nil {
			continue
		}
		out = append(out, Record{Timestamp: parsed, CostUSD: cost})
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
