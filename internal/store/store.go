// Package store persists the card metadata index, ruleset documents, and
// runtime settings in a single SQLite database. The in-memory Record Index
// (internal/index) is rebuilt from the cards table; rulesets are stored as
// JSON documents keyed by id.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}

// Store wraps the SQLite handle.
type Store struct {
	db *sql.DB
}

// Open initializes the database at dataDir/st-manager.db and runs migrations.
// The dataDir parameter lets tests use t.TempDir().
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "st-manager.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping() error {
	return s.db.Ping()
}

func migrate(db *sql.DB) error {
	version, err := userVersion(db)
	if err != nil {
		return err
	}

	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS cards (
		  id            TEXT PRIMARY KEY,
		  category      TEXT NOT NULL DEFAULT '',
		  char_name     TEXT NOT NULL DEFAULT '',
		  char_version  TEXT NOT NULL DEFAULT '',
		  tags_json     TEXT NOT NULL DEFAULT '[]',
		  favorite      INTEGER NOT NULL DEFAULT 0,
		  token_count   INTEGER NOT NULL DEFAULT 0,
		  file_size     INTEGER NOT NULL DEFAULT 0,
		  created_at    INTEGER NOT NULL DEFAULT 0,
		  last_modified INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_cards_category ON cards(category);

		CREATE TABLE IF NOT EXISTS rulesets (
		  id         TEXT PRIMARY KEY,
		  name       TEXT NOT NULL DEFAULT '',
		  doc        TEXT NOT NULL,
		  updated_at INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS settings (
		  key   TEXT PRIMARY KEY,
		  value TEXT NOT NULL
		);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("apply schema v1: %w", err)
		}
		if err := setUserVersion(db, 1); err != nil {
			return err
		}
	}

	return nil
}

func userVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return v, nil
}

func setUserVersion(db *sql.DB, v int) error {
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", v)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}
