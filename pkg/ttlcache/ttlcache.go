// Package ttlcache provides a bounded, TTL-aware concurrent cache.
// Entries older than the TTL are never served; when the entry bound is
// reached the oldest entry is evicted.
package ttlcache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// Cache is a concurrency-safe map with per-cache TTL and a size bound.
// The clock is injectable for deterministic tests.
type Cache[V any] struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]entry[V]
	now        func() time.Time
}

// New creates a cache. maxEntries <= 0 means unbounded; now may be nil
// to use wall-clock time.
func New[V any](ttl time.Duration, maxEntries int, now func() time.Time) *Cache[V] {
	if now == nil {
		now = time.Now
	}
	return &Cache[V]{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]entry[V]),
		now:        now,
	}
}

// Get returns the cached value if present and unexpired. An expired
// entry is removed and reported as a miss, so a served entry's age
// never exceeds the TTL.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.expired(e, c.now()) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores a value with a fresh timestamp, evicting the oldest entry
// if the bound is reached.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.entries[key] = entry[V]{value: value, storedAt: c.now()}
}

// Delete removes an entry.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Purge removes all expired entries and returns how many were dropped.
// Intended for background eviction tickers.
func (c *Cache[V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	dropped := 0
	for k, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, k)
			dropped++
		}
	}
	return dropped
}

// Len returns the current entry count, expired entries included.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear removes all entries (for testing).
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V])
}

func (c *Cache[V]) expired(e entry[V], now time.Time) bool {
	return c.ttl > 0 && now.Sub(e.storedAt) >= c.ttl
}

func (c *Cache[V]) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for k, e := range c.entries {
		if first || e.storedAt.Before(oldestAt) {
			oldestKey, oldestAt = k, e.storedAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}
