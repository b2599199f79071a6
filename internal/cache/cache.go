// Package cache defines the cache-aside interface used by the ingestion
// service; rediscache carries the redis-backed implementation.
package cache

import (
	"context"
	"time"
)

// BytesCache is a byte-oriented cache-aside interface: callers marshal
// their own values, so the cache itself stays storage-format-agnostic.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
