package cache

import (
	"context"
	"time"
)

// Backend is the storage contract the TenantCache and the Sweeper operate
// on. Values are serialized strings so remote backends can hold them.
type Backend interface {
	// Get returns the value for key, or false when absent or expired.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key with the given ttl. A non-positive ttl
	// falls back to the backend default.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key. Absent keys are a no-op.
	Delete(ctx context.Context, key string) error

	// Clear removes all entries owned by this backend.
	Clear(ctx context.Context) error

	// CleanupExpired removes expired entries and returns how many were
	// removed. Backends with native expiry may return 0.
	CleanupExpired(ctx context.Context) (int, error)

	// Stats reports the backend population.
	Stats(ctx context.Context) (Stats, error)
}

// MemoryBackend adapts a Cache to the Backend contract.
type MemoryBackend struct {
	cache *Cache
}

// NewMemoryBackend wraps an in-memory Cache.
func NewMemoryBackend(c *Cache) *MemoryBackend {
	return &MemoryBackend{cache: c}
}

var _ Backend = (*MemoryBackend)(nil)

func (b *MemoryBackend) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := b.cache.Get(key)
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, nil
	}
	return s, true, nil
}

func (b *MemoryBackend) Set(_ context.Context, key, value string, ttl time.Duration) error {
	b.cache.Set(key, value, ttl)
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.cache.Delete(key)
	return nil
}

func (b *MemoryBackend) Clear(_ context.Context) error {
	b.cache.Clear()
	return nil
}

func (b *MemoryBackend) CleanupExpired(_ context.Context) (int, error) {
	return b.cache.CleanupExpired(), nil
}

func (b *MemoryBackend) Stats(_ context.Context) (Stats, error) {
	return b.cache.GetStats(), nil
}
