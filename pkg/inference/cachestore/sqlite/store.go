// Package sqlite implements a SQLite-backed cache store. Unlike the
// flat-file store it supports counting and clearing entries without
// loading the whole table, which suits long-lived processes whose
// caches grow without bound.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const createTable = `
CREATE TABLE IF NOT EXISTS inference_cache (
	cache_key TEXT PRIMARY KEY,
	response BLOB NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Store persists cache entries in a SQLite database.
type Store struct {
	db *sql.DB
}

// New opens (creating if necessary) the database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Load() (map[string]json.RawMessage, error) {
	rows, err := s.db.Query(`SELECT cache_key, response FROM inference_cache`)
	if err != nil {
		return nil, fmt.Errorf("load cache: %w", err)
	}
	defer rows.Close()

	entries := map[string]json.RawMessage{}
	for rows.Next() {
		var key string
		var response []byte
		if err := rows.Scan(&key, &response); err != nil {
			return nil, fmt.Errorf("scan cache row: %w", err)
		}
		entries[key] = json.RawMessage(response)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load cache: %w", err)
	}
	return entries, nil
}

func (s *Store) Save(entries map[string]json.RawMessage) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("cache save: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for key, response := range entries {
		if _, err := tx.Exec(
			`INSERT INTO inference_cache (cache_key, response, created_at) VALUES (?, ?, ?)
			 ON CONFLICT(cache_key) DO UPDATE SET response = excluded.response`,
			key, []byte(response), now,
		); err != nil {
			return fmt.Errorf("cache save: %w", err)
		}
	}
	return tx.Commit()
}

// Entries returns the number of stored responses.
func (s *Store) Entries() (int64, error) {
	var count int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM inference_cache`).Scan(&count); err != nil {
		return 0, fmt.Errorf("cache stats: %w", err)
	}
	return count, nil
}

// Clear removes all stored responses.
func (s *Store) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM inference_cache`); err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }
