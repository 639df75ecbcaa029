// Package cache defines the key-value port the phase result cache tiers
// implement.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque byte values. Get reports a miss via the bool, not an
// error; implementations may ignore ttl when expiry is configured on the
// backing store itself.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
