// Package settings persists the small amount of user configuration that
// must survive restarts, currently the enabled flag and the widget theme.
// Backed by SQLite with the usual production pragmas.
package settings

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);`

const (
	keyEnabled = "enabled"
	keyTheme   = "theme"
)

// Store is the settings database. One per process.
type Store struct {
	db *sql.DB
}

// Open opens (and bootstraps) the settings database at path. Parent
// directories are created as needed.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("settings: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("settings: open: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("settings: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("settings: schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("settings: ping: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Enabled reads the feature flag. A store with no row defaults to true:
// a fresh install starts active.
func (s *Store) Enabled() (bool, error) {
	v, ok, err := s.get(keyEnabled)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	enabled, err := strconv.ParseBool(v)
	if err != nil {
		return true, nil
	}
	return enabled, nil
}

// SetEnabled persists the feature flag.
func (s *Store) SetEnabled(enabled bool) error {
	return s.set(keyEnabled, strconv.FormatBool(enabled))
}

// Theme reads the widget theme name, empty when unset.
func (s *Store) Theme() (string, error) {
	v, _, err := s.get(keyTheme)
	return v, err
}

// SetTheme persists the widget theme name.
func (s *Store) SetTheme(theme string) error {
	return s.set(keyTheme, theme)
}

func (s *Store) get(key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("settings: get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *Store) set(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("settings: set %s: %w", key, err)
	}
	return nil
}
