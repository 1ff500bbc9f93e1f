// Package testutil provides shared test fixtures: an in-memory journal
// database, a controllable clock, and a scripted catalog client.
package testutil

import (
	"database/sql"

	_ "modernc.org/sqlite" // Register pure-Go SQLite driver for database/sql
)

// NewTestDB opens a fresh in-memory journal database with the crawler's
// schema applied. Each call returns an isolated database; callers own the
// Close.
func NewTestDB() (*sql.DB, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, err
	}
	// In-memory databases vanish when their last connection closes, so the
	// pool must never grow past one connection.
	db.SetMaxOpenConns(1)

	statements := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			aggregate_type TEXT NOT NULL,
			aggregate_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			event_data JSON NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS scan_cycles (
			id TEXT PRIMARY KEY,
			started_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP,
			status TEXT NOT NULL DEFAULT 'running',
			fetched INTEGER NOT NULL DEFAULT 0,
			scanned INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			error TEXT
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}
