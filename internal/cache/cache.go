package cache

import (
	"fmt"

	"github.com/dentalstack/aegis/internal/domain"
)

// NewStore creates a backing store based on configuration.
// Single node: in-memory store. Cluster: Redis.
func NewStore(cfg domain.CacheConfig) (domain.CacheStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(cfg.CleanupInterval), nil

	case "redis":
		return NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}
