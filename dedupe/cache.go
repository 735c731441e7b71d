// Package dedupe implements the Dedupe Cache (§4.3): a bounded LRU of
// recently observed dedupe keys, used by the coordinator to make fire
// idempotent. Single-writer per actor — no internal locking is needed, and
// none is added, matching the single-threaded actor discipline of §5.
package dedupe

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity is MaxDedupeKeysInMemory's default (§3, §4.2).
const DefaultCapacity = 1000

// Cache is a bounded LRU membership set over dedupe key strings. It wraps
// hashicorp/golang-lru/v2 rather than hand-rolling a ring buffer + map,
// since that is exactly the shape of bounded-recency cache the ecosystem
// already solves well.
type Cache struct {
	lru *lru.Cache[string, struct{}]
	cap int
}

// New creates a Cache bounded to capacity keys. capacity <= 0 uses
// DefaultCapacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c, err := lru.New[string, struct{}](capacity)
	if err != nil {
		// Only returned by golang-lru when capacity <= 0, which cannot
		// happen here given the guard above.
		panic(err)
	}
	return &Cache{lru: c, cap: capacity}
}

// Contains reports whether key was previously added, without affecting its
// recency (a pure membership test, as §4.3 specifies).
func (c *Cache) Contains(key string) bool {
	return c.lru.Contains(key)
}

// Add inserts key, evicting the least-recently-added entry if the cache is
// at capacity. Returns true if an eviction occurred.
func (c *Cache) Add(key string) (evicted bool) {
	return c.lru.Add(key, struct{}{})
}

// Len returns the current number of keys held.
func (c *Cache) Len() int { return c.lru.Len() }

// Cap returns the configured capacity.
func (c *Cache) Cap() int { return c.cap }

// Keys returns the held keys, oldest first — the order snapshots are
// written in (§4.3: "Preserved in snapshots as a bounded list").
func (c *Cache) Keys() []string {
	return c.lru.Keys()
}

// Restore replaces the cache contents with keys, oldest first, as loaded
// from a Snapshot. Used only during actor activation, before any Fire.
func Restore(capacity int, keys []string) *Cache {
	c := New(capacity)
	for _, k := range keys {
		c.Add(k)
	}
	return c
}
