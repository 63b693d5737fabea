// Package cache defines the port interface for byte-value caching.
package cache

import (
	"context"
	"time"
)

// Cache is a best-effort key-value cache. A miss is reported with ok=false
// and a nil error; errors are reserved for backend failures.
type Cache interface {
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
