package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/dentalstack/aegis/internal/domain"
)

// DefaultTTL applies when a caller does not specify a TTL.
const DefaultTTL = 5 * time.Minute

// Manager implements the cache-aside pattern over a backing store. Every key
// is tenant-scoped before touching the store, and every store failure is
// swallowed and logged: cache unavailability must never surface as a request
// failure, callers get a freshly computed value instead.
//
// The manager takes no locks. Concurrent misses for the same key may compute
// twice; last write wins. Compute functions must therefore be safe to invoke
// more than once per logical miss.
type Manager struct {
	store      domain.CacheStore
	defaultTTL time.Duration
}

// NewManager creates a cache-aside manager. A defaultTTL <= 0 falls back to
// DefaultTTL.
func NewManager(store domain.CacheStore, defaultTTL time.Duration) *Manager {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Manager{
		store:      store,
		defaultTTL: defaultTTL,
	}
}

// Get retrieves the raw cached bytes for a tenant-scoped key.
// Returns nil on miss and on any store error.
func (m *Manager) Get(ctx context.Context, t *domain.TenantContext, key string) []byte {
	scoped := domain.ScopeKey(key, t)
	val, err := m.store.Get(ctx, scoped)
	if err != nil {
		slog.Warn("cache get failed", "key", scoped, "error", err)
		return nil
	}
	return val
}

// Set stores a JSON-serialized value under a tenant-scoped key. A ttl <= 0
// uses the manager default. Serialization and store errors are logged, never
// returned.
func (m *Manager) Set(ctx context.Context, t *domain.TenantContext, key string, value any, ttl time.Duration) {
	scoped := domain.ScopeKey(key, t)

	data, err := json.Marshal(value)
	if err != nil {
		slog.Warn("cache set skipped, value not serializable", "key", scoped, "error", err)
		return
	}

	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	if err := m.store.Set(ctx, scoped, data, ttl); err != nil {
		slog.Warn("cache set failed", "key", scoped, "error", err)
	}
}

// Delete removes a tenant-scoped key. Store errors are logged, never returned.
func (m *Manager) Delete(ctx context.Context, t *domain.TenantContext, key string) {
	scoped := domain.ScopeKey(key, t)
	if _, err := m.store.Delete(ctx, scoped); err != nil {
		slog.Warn("cache delete failed", "key", scoped, "error", err)
	}
}

// DeletePattern removes every tenant-scoped key matching a glob pattern.
func (m *Manager) DeletePattern(ctx context.Context, t *domain.TenantContext, pattern string) {
	scoped := domain.ScopeKey(pattern, t)

	keys, err := m.store.Keys(ctx, scoped)
	if err != nil {
		slog.Warn("cache pattern scan failed", "pattern", scoped, "error", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if _, err := m.store.Delete(ctx, keys...); err != nil {
		slog.Warn("cache pattern delete failed", "pattern", scoped, "error", err)
	}
}

// InvalidateTenant removes every key under a tenant's prefix. Keys under other
// tenants and under the global prefix are untouched.
func (m *Manager) InvalidateTenant(ctx context.Context, t *domain.TenantContext) {
	prefix := domain.ScopePrefix(t)

	keys, err := m.store.Keys(ctx, prefix+"*")
	if err != nil {
		slog.Warn("cache tenant scan failed", "prefix", prefix, "error", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if _, err := m.store.Delete(ctx, keys...); err != nil {
		slog.Warn("cache tenant invalidation failed", "prefix", prefix, "error", err)
	}
}

// Ping checks backing store health.
func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}

// GetOrSet returns the cached value for key, or computes, caches and returns a
// fresh one. On a hit the compute function is never invoked. A corrupt cached
// entry or a failing store degrades to a plain compute; only the compute
// function's own error propagates.
func GetOrSet[T any](ctx context.Context, m *Manager, t *domain.TenantContext, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	if raw := m.Get(ctx, t, key); raw != nil {
		var cached T
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
		slog.Warn("cache entry malformed, recomputing", "key", domain.ScopeKey(key, t), "error", "unmarshal failed")
	}

	value, err := compute(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	// Best effort: the computed value is returned whether or not it stuck.
	m.Set(ctx, t, key, value, ttl)
	return value, nil
}

// Memoize wraps a function so its result is cached per derived key via
// GetOrSet. The key builder receives the call argument.
func Memoize[A, R any](m *Manager, keyFn func(A) string, ttl time.Duration, fn func(context.Context, *domain.TenantContext, A) (R, error)) func(context.Context, *domain.TenantContext, A) (R, error) {
	return func(ctx context.Context, t *domain.TenantContext, arg A) (R, error) {
		return GetOrSet(ctx, m, t, keyFn(arg), ttl, func(ctx context.Context) (R, error) {
			return fn(ctx, t, arg)
		})
	}
}
