// Package db owns the local scan journal: a SQLite record of crawl cycles
// and events kept purely for operator diagnostics. The catalog remains the
// sole owner of scan state; nothing in here feeds back into scan decisions.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Register pure-Go SQLite driver for database/sql

	"github.com/lsst-dm/imgcrawl/internal/logger"
)

// MaxRetries is the number of times to retry a journal write on SQLITE_BUSY.
const MaxRetries = 5

// RetryDelay is the base delay between retries (increases exponentially).
const RetryDelay = 100 * time.Millisecond

// Repository provides access to the scan journal database.
type Repository struct {
	DB *sql.DB
}

// NewRepository opens (creating if needed) the journal at the given path.
func NewRepository(dbPath string) (*Repository, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode allows concurrent readers alongside the single writer; a
	// small pool keeps lock contention down.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := configureSQLite(db); err != nil {
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	repo := &Repository{DB: db}
	if err := repo.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

// configureSQLite sets pragmas for reliability under a long-running daemon.
func configureSQLite(db *sql.DB) error {
	criticalPragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=30000",
	}
	for _, pragma := range criticalPragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	optionalPragmas := []string{
		"PRAGMA synchronous=NORMAL",
		"PRAGMA auto_vacuum=INCREMENTAL",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range optionalPragmas {
		if _, err := db.Exec(pragma); err != nil {
			logger.Warnf("Failed to set optional pragma %s: %v", pragma, err)
		}
	}
	return nil
}

// initSchema creates the journal tables if they do not exist.
func (r *Repository) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			aggregate_type TEXT NOT NULL,
			aggregate_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			event_data JSON NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_aggregate ON events(aggregate_type, aggregate_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type)`,
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
		`CREATE INDEX IF NOT EXISTS idx_cycles_started ON scan_cycles(started_at)`,
	}
	for _, stmt := range statements {
		if _, err := r.DB.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.DB.Close()
}

// CycleRecord is one row of the scan_cycles table.
type CycleRecord struct {
	ID          string     `json:"id"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Status      string     `json:"status"`
	Fetched     int        `json:"fetched"`
	Scanned     int        `json:"scanned"`
	Failed      int        `json:"failed"`
	Error       string     `json:"error,omitempty"`
}

// Cycle statuses recorded in the journal.
const (
	CycleStatusRunning   = "running"
	CycleStatusCompleted = "completed"
	CycleStatusFailed    = "failed"
)

// RecordCycleStart inserts a running cycle row.
func (r *Repository) RecordCycleStart(cycleID string, startedAt time.Time) error {
	_, err := ExecWithRetry(r.DB,
		"INSERT INTO scan_cycles (id, started_at, status) VALUES (?, ?, ?)",
		cycleID, startedAt.UTC(), CycleStatusRunning)
	return err
}

// RecordCycleEnd finalizes a cycle row with its outcome and tallies.
func (r *Repository) RecordCycleEnd(cycleID, status string, completedAt time.Time, fetched, scanned, failed int, errMsg string) error {
	_, err := ExecWithRetry(r.DB,
		"UPDATE scan_cycles SET status = ?, completed_at = ?, fetched = ?, scanned = ?, failed = ?, error = ? WHERE id = ?",
		status, completedAt.UTC(), fetched, scanned, failed, errMsg, cycleID)
	return err
}

// RecentCycles returns the most recent cycle records, newest first.
func (r *Repository) RecentCycles(limit int) ([]CycleRecord, error) {
	rows, err := QueryWithRetry(r.DB,
		"SELECT id, started_at, completed_at, status, fetched, scanned, failed, COALESCE(error, '') FROM scan_cycles ORDER BY started_at DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cycles []CycleRecord
	for rows.Next() {
		var c CycleRecord
		var completed sql.NullTime
		if err := rows.Scan(&c.ID, &c.StartedAt, &completed, &c.Status, &c.Fetched, &c.Scanned, &c.Failed, &c.Error); err != nil {
			return nil, err
		}
		if completed.Valid {
			t := completed.Time
			c.CompletedAt = &t
		}
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}

// RunMaintenance prunes journal rows older than the retention window and
// compacts the database. retentionDays <= 0 disables pruning.
func (r *Repository) RunMaintenance(retentionDays int) error {
	logger.Infof("Starting journal maintenance...")

	if retentionDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -retentionDays).UTC()

		if res, err := ExecWithRetry(r.DB, "DELETE FROM events WHERE created_at < ?", cutoff); err != nil {
			logger.Errorf("Failed to prune old events: %v", err)
		} else if n, _ := res.RowsAffected(); n > 0 {
			logger.Infof("Pruned %d old journal events", n)
		}

		if res, err := ExecWithRetry(r.DB, "DELETE FROM scan_cycles WHERE status != ? AND started_at < ?", CycleStatusRunning, cutoff); err != nil {
			logger.Errorf("Failed to prune old cycles: %v", err)
		} else if n, _ := res.RowsAffected(); n > 0 {
			logger.Infof("Pruned %d old cycle records", n)
		}
	}

	for _, stmt := range []string{"PRAGMA incremental_vacuum", "PRAGMA wal_checkpoint(TRUNCATE)"} {
		if _, err := r.DB.Exec(stmt); err != nil {
			logger.Warnf("Maintenance command %q failed: %v", stmt, err)
		}
	}

	logger.Infof("Journal maintenance completed")
	return nil
}
