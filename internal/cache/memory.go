// Package cache provides caching implementations for Aegis.
package cache

import (
	"context"
	"path"
	"sync"
	"time"
)

// MemoryStore is a thread-safe in-memory key-value store with per-key TTL.
// Expiry is lazy: an expired entry behaves as a miss on read and is evicted as
// a side effect. An optional janitor sweeps expired entries periodically to
// bound memory held by entries that are never read again.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]memoryEntry

	done chan struct{}
}

type memoryEntry struct {
	value []byte
	// expiresAt is zero for entries without expiration.
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// NewMemoryStore creates a new in-memory store. When cleanupInterval > 0 a
// background sweep removes expired entries on that interval; zero keeps lazy
// expiry only.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		items: make(map[string]memoryEntry),
		done:  make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go s.janitor(cleanupInterval)
	}
	return s
}

// Get retrieves a value. Returns nil, nil on miss or expired entry.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.items[key]
	if !ok {
		return nil, nil
	}
	if entry.expired(time.Now()) {
		delete(s.items, key)
		return nil, nil
	}
	return entry.value, nil
}

// Set stores a value. A ttl <= 0 means no expiration. Overwrites any prior
// value and TTL for the key.
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}

	s.mu.Lock()
	s.items[key] = entry
	s.mu.Unlock()
	return nil
}

// Delete removes keys and returns how many existed.
func (s *MemoryStore) Delete(ctx context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	now := time.Now()
	for _, key := range keys {
		entry, ok := s.items[key]
		if !ok {
			continue
		}
		delete(s.items, key)
		if !entry.expired(now) {
			removed++
		}
	}
	return removed, nil
}

// Keys returns all live keys matching a glob pattern. Expired entries are
// evicted during the scan and never listed.
func (s *MemoryStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var keys []string
	for key, entry := range s.items {
		if entry.expired(now) {
			delete(s.items, key)
			continue
		}
		if ok, err := path.Match(pattern, key); err != nil {
			return nil, err
		} else if ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Len returns the number of stored entries, expired ones included until they
// are evicted.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Ping checks store health.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close stops the janitor and clears the store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done:
	default:
		close(s.done)
	}
	s.items = make(map[string]memoryEntry)
	return nil
}

func (s *MemoryStore) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *MemoryStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, entry := range s.items {
		if entry.expired(now) {
			delete(s.items, key)
		}
	}
}
