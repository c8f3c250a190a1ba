// Package cachestore provides durable backing stores for the inference
// response cache. The default store is a flat JSON file rewritten in
// full on save; a SQLite-backed store lives in the sqlite subpackage.
package cachestore

import "encoding/json"

// Store persists the cache's key→response table. Keys are the
// serialized form of a cache key; values are serialized responses.
// Implementations must be safe for use from a single cache instance;
// the cache serializes its own access.
type Store interface {
	// Load reads the full table. A store whose backing location does
	// not exist yet returns an empty table and no error; an unreadable
	// or corrupt location returns an error (the cache recovers by
	// starting empty).
	Load() (map[string]json.RawMessage, error)

	// Save writes the full table. The cache never removes entries, so
	// a store may merge into existing data rather than replace it.
	Save(entries map[string]json.RawMessage) error

	// Close releases any resources held by the store.
	Close() error
}
