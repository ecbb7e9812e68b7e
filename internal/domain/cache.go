package domain

import (
	"context"
	"time"
)

// Cache is the byte-value cache the identity resolver uses to memoize
// co-officer name sets across officer batches. A miss returns (nil, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}
