// Package state manages the SQLite database that mirrors remote collections
// and items locally.
//
// Only this package may open or query the database. All other packages receive
// a [*Store] and call its methods. Every method is a single short statement or
// transaction; no call holds the database across a network round-trip.
package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// migrations are applied in order; schema_migrations records the highest
// applied version so re-opening an existing database is a no-op.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS collections (
	    id            TEXT PRIMARY KEY,
	    remote_name   TEXT UNIQUE,
	    title         TEXT NOT NULL,
	    directory_path TEXT,
	    sync_status   TEXT NOT NULL DEFAULT 'pending',
	    error_message TEXT,
	    remote_create_time TEXT,
	    remote_update_time TEXT,
	    active_items_count  INTEGER NOT NULL DEFAULT 0,
	    pending_items_count INTEGER NOT NULL DEFAULT 0,
	    failed_items_count  INTEGER NOT NULL DEFAULT 0,
	    size_bytes    INTEGER NOT NULL DEFAULT 0,
	    deleted_at    TEXT,
	    created_at    TEXT NOT NULL,
	    updated_at    TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS items (
	    id             TEXT PRIMARY KEY,
	    collection_id  TEXT NOT NULL,
	    remote_name    TEXT UNIQUE,
	    operation_name TEXT,
	    name           TEXT NOT NULL,
	    path           TEXT NOT NULL,
	    content_type   TEXT,
	    mime_type      TEXT,
	    size           INTEGER NOT NULL DEFAULT 0,
	    hash           TEXT,
	    status         TEXT NOT NULL DEFAULT 'pending',
	    sync_status    TEXT NOT NULL DEFAULT 'pending',
	    error_message  TEXT,
	    deleted_at     TEXT,
	    created_at     TEXT NOT NULL,
	    updated_at     TEXT NOT NULL,
	    FOREIGN KEY (collection_id) REFERENCES collections(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_items_collection ON items(collection_id)`,
	`CREATE INDEX IF NOT EXISTS idx_items_status ON items(status)`,
	`CREATE INDEX IF NOT EXISTS idx_items_operation ON items(operation_name)`,
	`CREATE INDEX IF NOT EXISTS idx_items_deleted ON items(deleted_at)`,
	`CREATE INDEX IF NOT EXISTS idx_collections_deleted ON collections(deleted_at)`,
	`CREATE INDEX IF NOT EXISTS idx_items_name ON items(name)`,
}

// Store is the SQLite-backed persistent store for collections and items.
type Store struct {
	db *sql.DB
}

// DefaultDBPath returns the default path for the mirror database:
// ~/.local/share/docmirror/mirror.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "docmirror", "mirror.db"), nil
}

// Open opens (or creates) the SQLite database at path, applies pending
// migrations, and configures WAL mode for better concurrent read performance.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", path, err)
	}

	// Single writer to avoid SQLITE_BUSY under WAL.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies any migration versions newer than the recorded maximum.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
	    version    INTEGER PRIMARY KEY,
	    applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}

	var current int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for i, stmt := range migrations {
		version := i + 1
		if version <= current {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("running migration %d: %w", version, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
			version, formatTime(time.Now().UTC())); err != nil {
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
	}
	return nil
}

// --- helpers -----------------------------------------------------------------

// scanner matches both *sql.Row and *sql.Rows so row mappers can be reused.
type scanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// nullTime converts a nullable TEXT column to *time.Time.
func nullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil
	}
	return &t
}
