// Package diagnostics persists an append-only log of bridge events
// (the CLI records decode errors and captured bridge errors, keyed by
// URI) to a local sqlite database, for post-hoc debugging of a decode
// session.
// Adapted from the teacher's internal/storage.Database: same
// sql.Open("sqlite", ...)+pragma+migration shape via modernc.org/sqlite,
// narrowed from a full music-library cache down to one append-only
// events table.
package diagnostics

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store is a small sqlite-backed event log.
type Store struct {
	db *sql.DB
}

// Open creates (or reuses) the sqlite database at path, enabling WAL
// mode when requested.
func Open(path string, enableWAL bool) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("diagnostics: create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("diagnostics: open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=memory",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=30000",
	}
	if enableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("diagnostics: pragma %s: %w", p, err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("diagnostics: ping: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	occurred_at TEXT NOT NULL,
	uri TEXT NOT NULL,
	kind TEXT NOT NULL,
	detail TEXT NOT NULL
)`)
	return err
}

// Record appends one event. Errors from Record are deliberately
// swallowed by callers on the hot path (a diagnostics write must never
// stall decode); Record itself still returns the error for callers
// that do want to surface it (e.g. a CLI flag dumping events).
func (s *Store) Record(ctx context.Context, uri, kind, detail string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (occurred_at, uri, kind, detail) VALUES (?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano), uri, kind, detail)
	return err
}

// Event is one row read back from the store.
type Event struct {
	ID         int64
	OccurredAt string
	URI        string
	Kind       string
	Detail     string
}

// Recent returns the most recent n events, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, occurred_at, uri, kind, detail FROM events ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.OccurredAt, &e.URI, &e.Kind, &e.Detail); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
