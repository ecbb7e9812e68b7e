// Package cache provides the co-officer lookup cache implementations.
package cache

import (
	"fmt"

	"github.com/sstransco/carrierwatch/internal/domain"
)

// New creates a cache based on configuration.
// Single-node runs use the in-process LRU; shared-store runs use Redis so
// repeated resolver batches across nodes hit the same memo.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}
