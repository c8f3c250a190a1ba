package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/parleylabs/parley/internal/logger"
	"github.com/parleylabs/parley/pkg/inference/cachestore"
)

// CacheKey is the structural identity of a request: the exact message
// sequence plus every parameter field. Two keys are equal iff both
// serialize identically.
type CacheKey struct {
	Prompt Prompt `json:"prompt"`
	Params Params `json:"params"`
}

// Encode returns the canonical serialized form of the key, used as the
// lookup key in the cache table. encoding/json emits struct fields in
// declaration order and map keys sorted, so equal values always encode
// to the same string.
func (k CacheKey) Encode() (string, error) {
	data, err := json.Marshal(k)
	if err != nil {
		return "", fmt.Errorf("encode cache key: %w", err)
	}
	return string(data), nil
}

// CachedClient memoizes responses keyed by (prompt, params). A hit
// returns the stored response without touching the wrapped client: no
// network call, no rate-limit consumption, no retry attempts. The table
// is loaded from the store at construction and written back only on an
// explicit Flush.
//
// Entries are never evicted; for long-lived processes pair this with a
// store that can report and clear its size.
type CachedClient struct {
	next  Client
	store cachestore.Store

	mu      sync.Mutex
	entries map[string]*Response
}

// NewCachedClient wraps next with a response cache backed by store.
// An unreadable or corrupt store is logged and treated as empty rather
// than surfaced; losing a cache must never fail a run.
func NewCachedClient(next Client, store cachestore.Store) *CachedClient {
	c := &CachedClient{
		next:    next,
		store:   store,
		entries: map[string]*Response{},
	}

	raw, err := store.Load()
	if err != nil {
		logger.Warn("response cache unreadable, starting empty", "error", err)
		return c
	}
	for key, data := range raw {
		var resp Response
		if err := json.Unmarshal(data, &resp); err != nil {
			logger.Warn("dropping undecodable cache entry", "error", err)
			continue
		}
		c.entries[key] = &resp
	}
	return c
}

func (c *CachedClient) Complete(ctx context.Context, model string, prompt Prompt, params Params) (*Response, error) {
	key, err := CacheKey{Prompt: prompt, Params: params}.Encode()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	cached, ok := c.entries[key]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	// Miss: the wrapped call happens outside the lock so one slow
	// request does not serialize the whole cache.
	resp, err := c.next.Complete(ctx, model, prompt, params)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = resp
	c.mu.Unlock()
	return resp, nil
}

// Flush writes the full table to the backing store. Callers invoke it
// explicitly, typically at the end of a batch run.
func (c *CachedClient) Flush() error {
	c.mu.Lock()
	raw := make(map[string]json.RawMessage, len(c.entries))
	for key, resp := range c.entries {
		data, err := json.Marshal(resp)
		if err != nil {
			c.mu.Unlock()
			return fmt.Errorf("encode cached response: %w", err)
		}
		raw[key] = data
	}
	c.mu.Unlock()

	return c.store.Save(raw)
}

// Len returns the number of cached responses.
func (c *CachedClient) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close flushes the table and releases the backing store.
func (c *CachedClient) Close() error {
	if err := c.Flush(); err != nil {
		return err
	}
	return c.store.Close()
}
