// Package cache provides the key/value cache shared by the category resolver
// and request throttling. Memory is the single-instance default; Redis is
// used when several API instances must agree.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque byte values with an optional TTL. A zero TTL means the
// entry never expires.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// SetNX stores data only when key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, data []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	Close() error
}
