// Package cache provides TTL caching for tenant-scoped data. The in-memory
// Cache is the default backend; a redis-backed Backend is available for
// multi-instance deployments. The TenantCache facade namespaces keys per
// tenant and owns the per-kind TTL policy.
package cache

import (
	"sync"
	"time"
)

// entry is a stored value with its expiry bookkeeping.
type entry struct {
	value     interface{}
	createdAt time.Time
	expiresAt time.Time
}

// expired reports whether the entry has passed its expiry at the given time.
// Entries without an expiry never expire.
func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Stats describes the cache population at a point in time.
type Stats struct {
	Total   int `json:"total_entries"`
	Active  int `json:"active_entries"`
	Expired int `json:"expired_entries"`
}

// Cache is an in-memory key/value store with per-entry TTLs. Expired entries
// are evicted lazily on access or by CleanupExpired; writes never trigger
// eviction. A single mutex serializes all operations.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	defaultTTL time.Duration

	now func() time.Time // test hook
}

// New creates a Cache. defaultTTL applies to Set calls with a non-positive
// ttl; a non-positive defaultTTL makes such entries live forever.
func New(defaultTTL time.Duration) *Cache {
	return &Cache{
		entries:    make(map[string]*entry),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// Get returns the value for key. Expired entries are treated as absent and
// removed on access.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if e.expired(c.now()) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key, overwriting any previous entry. A non-positive
// ttl falls back to the cache default.
func (c *Cache) Set(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := c.now()
	e := &entry{value: value, createdAt: now}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	c.entries[key] = e
}

// GetOrSet returns the value for key if present, otherwise stores and
// returns the result of fill.
func (c *Cache) GetOrSet(key string, ttl time.Duration, fill func() interface{}) interface{} {
	if v, ok := c.Get(key); ok {
		return v
	}
	v := fill()
	c.Set(key, v, ttl)
	return v
}

// Delete removes key. Removing an absent key is a no-op.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// CleanupExpired removes every expired entry and returns how many were
// removed.
func (c *Cache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// GetStats counts total, active and expired entries without evicting.
func (c *Cache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	stats := Stats{Total: len(c.entries)}
	for _, e := range c.entries {
		if e.expired(now) {
			stats.Expired++
		} else {
			stats.Active++
		}
	}
	return stats
}
