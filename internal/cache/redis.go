package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisOptions configures a RedisBackend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int

	// KeyPrefix namespaces every key so several deployments can share a
	// database. Defaults to "squadbot:".
	KeyPrefix string

	// DefaultTTL applies to Set calls with a non-positive ttl. A
	// non-positive DefaultTTL stores such entries without expiry.
	DefaultTTL time.Duration
}

// RedisBackend stores cache entries in redis. Expiry is native, so
// CleanupExpired is a no-op and Stats never reports expired entries.
type RedisBackend struct {
	client     *redis.Client
	keyPrefix  string
	defaultTTL time.Duration
}

var _ Backend = (*RedisBackend)(nil)

// NewRedisBackend connects a redis-backed cache. The connection is verified
// lazily; call Ping to check it eagerly at startup.
func NewRedisBackend(opts RedisOptions) *RedisBackend {
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "squadbot:"
	}
	return &RedisBackend{
		client: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		keyPrefix:  prefix,
		defaultTTL: opts.DefaultTTL,
	}
}

// Ping verifies the connection.
func (b *RedisBackend) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close releases the client connections.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}

func (b *RedisBackend) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := b.client.Get(ctx, b.keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = b.defaultTTL
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := b.client.Set(ctx, b.keyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, b.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Clear removes every key under the backend prefix.
func (b *RedisBackend) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := b.client.Scan(ctx, cursor, b.keyPrefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := b.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// CleanupExpired is a no-op: redis evicts expired keys itself.
func (b *RedisBackend) CleanupExpired(_ context.Context) (int, error) {
	return 0, nil
}

// Stats counts the keys under the backend prefix. Redis has already dropped
// expired keys, so every counted entry is active.
func (b *RedisBackend) Stats(ctx context.Context) (Stats, error) {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := b.client.Scan(ctx, cursor, b.keyPrefix+"*", 100).Result()
		if err != nil {
			return Stats{}, fmt.Errorf("redis scan: %w", err)
		}
		total += len(keys)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return Stats{Total: total, Active: total}, nil
}
