// Package tiered layers the in-process result cache over the shared NATS
// KV one, so repeated idempotent phases hit memory before the network.
package tiered

import (
	"context"
	"time"

	"github.com/Strob0t/FlowForge/internal/port/cache"
)

// Cache is a read-through pair of cache levels. Lookups try the local
// level first and promote remote hits into it; writes and deletes go to
// both levels so the local copy never outlives the shared one.
type Cache struct {
	local      cache.Cache
	shared     cache.Cache
	promoteTTL time.Duration
}

// New creates a tiered cache. promoteTTL bounds how long a value promoted
// from the shared level stays in the local one.
func New(local, shared cache.Cache, promoteTTL time.Duration) *Cache {
	return &Cache{local: local, shared: shared, promoteTTL: promoteTTL}
}

// Get returns the value for key from the first level that has it.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	val, found, err := c.local.Get(ctx, key)
	if err != nil || found {
		return val, found, err
	}

	val, found, err = c.shared.Get(ctx, key)
	if err != nil || !found {
		return nil, false, err
	}

	// Promote so the next lookup is local. Failure only costs the
	// promotion, not the hit.
	_ = c.local.Set(ctx, key, val, c.promoteTTL)
	return val, true, nil
}

// Set writes value to both levels.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.local.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return c.shared.Set(ctx, key, value, ttl)
}

// Delete removes key from both levels.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.local.Delete(ctx, key); err != nil {
		return err
	}
	return c.shared.Delete(ctx, key)
}
