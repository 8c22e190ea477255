// Package storage persists researcher configuration and the ledger of
// publication versions already written to AT Protocol.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no configuration exists for a researcher.
var ErrNotFound = errors.New("not found")

// DB wraps a SQLite database connection.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

// OpenDB opens or creates a SQLite database at the given path.
// Use ":memory:" for a throwaway database.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &DB{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// createSchema creates the database schema if it doesn't exist.
// Timestamps are stored as unix milliseconds so they compare numerically.
func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			orcid TEXT PRIMARY KEY,
			bsky_handle TEXT NOT NULL,
			bsky_did TEXT,
			encrypted_app_password TEXT NOT NULL,
			octopus_user_id TEXT,
			active INTEGER NOT NULL DEFAULT 1,
			last_sync INTEGER,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		-- Append-only ledger of written publication versions
		CREATE TABLE IF NOT EXISTS synced_publications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			orcid TEXT NOT NULL,
			octopus_pub_id TEXT NOT NULL,
			octopus_version_id TEXT NOT NULL,
			at_uri TEXT NOT NULL,
			synced_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_synced_orcid ON synced_publications(orcid);
	`

	_, err := db.Exec(schema)
	return err
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// nullableString converts a string to sql.NullString, treating empty as NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
