// Package cache implements a generic, thread-safe TTL cache.
//
// Time complexity: O(1) for Get, Peek, Set, Delete, Len.
// Entries are not evicted by a background janitor; expired entries are
// dropped on access and by explicit Sweep calls.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	val      V
	storedAt time.Time
}

// Cache is a generic, thread-safe TTL cache.
// K must be comparable (map key constraint), V can be any type.
type Cache[K comparable, V any] struct {
	mu    sync.RWMutex
	ttl   time.Duration
	items map[K]entry[V]
	now   func() time.Time
}

// New creates a TTL cache. Panics if ttl <= 0.
func New[K comparable, V any](ttl time.Duration) *Cache[K, V] {
	if ttl <= 0 {
		panic("cache: ttl must be positive")
	}
	return &Cache[K, V]{
		ttl:   ttl,
		items: make(map[K]entry[V]),
		now:   time.Now,
	}
}

// Get retrieves a value by key if it is still within the TTL. Returns the
// zero value and false for missing or expired entries.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()

	if !ok || c.now().Sub(e.storedAt) > c.ttl {
		var zero V
		return zero, false
	}
	return e.val, true
}

// Peek retrieves a value regardless of expiry, along with its age. Callers
// that accept stale values within a grace window use this.
func (c *Cache[K, V]) Peek(key K) (V, time.Duration, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		var zero V
		return zero, 0, false
	}
	return e.val, c.now().Sub(e.storedAt), true
}

// Set inserts or replaces a value, resetting its age.
func (c *Cache[K, V]) Set(key K, val V) {
	c.mu.Lock()
	c.items[key] = entry[V]{val: val, storedAt: c.now()}
	c.mu.Unlock()
}

// Delete removes a key. Returns true if the key existed.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	delete(c.items, key)
	return ok
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Sweep removes entries older than maxAge and returns how many were dropped.
func (c *Cache[K, V]) Sweep(maxAge time.Duration) int {
	cutoff := c.now().Add(-maxAge)
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0
	for k, e := range c.items {
		if e.storedAt.Before(cutoff) {
			delete(c.items, k)
			dropped++
		}
	}
	return dropped
}
