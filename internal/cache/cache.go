// Package cache provides a small in-memory TTL cache. It is used to avoid
// re-embedding identical retrieval queries within a processing window.
package cache

import (
	"sync"
	"time"
)

type item[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a concurrency-safe in-memory cache with per-entry expiration.
type Cache[V any] struct {
	mu    sync.Mutex
	items map[string]item[V]
}

// New creates an empty cache.
func New[V any]() *Cache[V] {
	return &Cache[V]{items: make(map[string]item[V])}
}

// Get retrieves a value; the second return is false when the key is missing
// or expired. Expired entries are removed on access.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, exists := c.items[key]
	if !exists {
		var zero V
		return zero, false
	}
	if time.Now().After(it.expiresAt) {
		delete(c.items, key)
		var zero V
		return zero, false
	}
	return it.value, true
}

// Set stores a value with the given TTL.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = item[V]{value: value, expiresAt: time.Now().Add(ttl)}
}

// Delete removes a key.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Clear removes all entries.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]item[V])
}
