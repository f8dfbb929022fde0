// Package store implements the metadata store (C1): a sqlite-backed record
// of per-package fetch/access counters, TTLs, and an RPC response cache.
package store

import (
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Store wraps the metadata database connection.
type Store struct {
	conn *sql.DB
	now  func() time.Time
}

// Config configures the metadata store.
type Config struct {
	// DatabasePath is the path to the sqlite file, normally
	// <cache-root>/packages.db.
	DatabasePath string
}

// Open opens the metadata store, creating relations if absent, and runs
// fix_zero_counts. Per spec.md §4.1, initialization errors are fatal.
func Open(cfg Config) (*Store, error) {
	connString := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=30000&_foreign_keys=on", cfg.DatabasePath)

	conn, err := sql.Open("sqlite3", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(4)
	conn.SetConnMaxIdleTime(15 * time.Minute)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping metadata store: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 30000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", p, err)
		}
	}

	if err := runMigrations(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	s := &Store{conn: conn, now: time.Now}

	if err := s.fixZeroCounts(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to repair zero counts: %w", err)
	}

	return s, nil
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// SetClockForTesting overrides the clock used for fetched_at/last_accessed
// timestamps. Tests use this to exercise TTL boundaries deterministically.
func (s *Store) SetClockForTesting(now func() time.Time) {
	s.now = now
}
