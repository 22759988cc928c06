package domain

import (
	"context"
	"time"
)

// CacheStore is the backing key-value store behind the cache manager. It is
// shaped after the Redis command set the manager is designed against
// (GET / SET EX / DEL / KEYS) so any store exposing that shape can back it.
// Keys passed here are already tenant-scoped; scoping is the manager's job.
type CacheStore interface {
	// Get retrieves a raw value. Returns nil, nil on miss or expired entry.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a raw value. A ttl <= 0 means the entry never expires.
	// Overwrites any prior TTL for the key.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes keys and returns how many existed.
	Delete(ctx context.Context, keys ...string) (int64, error)

	// Keys returns all keys matching a glob pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// DefaultTTL applies when a caller does not specify one.
	DefaultTTL time.Duration

	// CleanupInterval enables a periodic sweep of expired in-memory entries
	// when > 0. Zero keeps lazy expiry only.
	CleanupInterval time.Duration

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}
