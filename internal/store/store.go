// Package store persists agent state as a key → JSON-value table backed by
// SQLite. Every durable piece of the agent (identity, configuration knobs,
// authorized hubs, tracked shortcuts, UI event slots) lives under a
// well-known key.
//
// Operations are synchronous. The database is a local file and every call
// touches a single row, so there is no cancellation surface worth plumbing
// a context through.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// Well-known setting keys.
const (
	KeyAgentID           = "agent_id"
	KeyAgentName         = "agent_name"
	KeyAcceptConnections = "accept_connections"
	KeyInstallPath       = "install_path"
	KeyEnabled           = "enabled"
	KeyAuthorizedHubs    = "authorized_hubs"
	KeyTrackedShortcuts  = "tracked_shortcuts"
)

// Store is the settings store. Safe for concurrent use; database/sql
// serializes access per connection.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the settings database and runs migrations.
func Open(dsn string) (*Store, error) {
	// For in-memory databases, use shared cache so all connections in the
	// pool see the same data. Without this, each pooled connection gets a
	// separate empty database.
	if dsn == ":memory:" {
		dsn = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL keeps readers (status queries) from blocking the writer.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n  SQL: %s", err, m)
		}
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the raw JSON stored at key, or nil when the key is absent.
func (s *Store) Get(key string) (json.RawMessage, error) {
	var value string
	err := s.db.QueryRow(
		"SELECT value FROM settings WHERE key = ?", key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(value), nil
}

// Set stores v at key, JSON-encoded. A nil v stores JSON null, which Get
// still reports as present; use Delete to remove a key entirely.
func (s *Store) Set(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode setting %q: %w", key, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, string(data),
	)
	return err
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	_, err := s.db.Exec("DELETE FROM settings WHERE key = ?", key)
	return err
}

// GetJSON decodes the value at key into out. Returns false when the key is
// absent or holds JSON null.
func (s *Store) GetJSON(key string, out any) (bool, error) {
	raw, err := s.Get(key)
	if err != nil {
		return false, err
	}
	if raw == nil || string(raw) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode setting %q: %w", key, err)
	}
	return true, nil
}

// GetString returns the string stored at key, or def when absent.
func (s *Store) GetString(key, def string) (string, error) {
	var v string
	ok, err := s.GetJSON(key, &v)
	if err != nil || !ok {
		return def, err
	}
	return v, nil
}

// GetBool returns the bool stored at key, or def when absent.
func (s *Store) GetBool(key string, def bool) (bool, error) {
	var v bool
	ok, err := s.GetJSON(key, &v)
	if err != nil || !ok {
		return def, err
	}
	return v, nil
}

// Keys returns all keys with the given prefix, sorted.
func (s *Store) Keys(prefix string) ([]string, error) {
	rows, err := s.db.Query(
		"SELECT key FROM settings WHERE key LIKE ? || '%' ORDER BY key", prefix,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
