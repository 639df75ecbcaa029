// Package natskv backs the shared L2 result cache and the session blob
// store with NATS JetStream KeyValue buckets.
package natskv

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Cache adapts a KV bucket to the cache port. Expiry is the bucket's TTL,
// configured at bucket creation, so the per-call ttl is ignored.
type Cache struct {
	kv jetstream.KeyValue
}

// New creates a cache over an existing KV bucket.
func New(kv jetstream.KeyValue) *Cache {
	return &Cache{kv: kv}
}

// Get returns the value for key. A missing key is not an error.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	entry, err := c.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return entry.Value(), true, nil
}

// Set writes value under key. The bucket TTL governs expiry.
func (c *Cache) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	_, err := c.kv.Put(ctx, key, value)
	return err
}

// Delete removes key; deleting an absent key is a no-op.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.kv.Delete(ctx, key); !errors.Is(err, jetstream.ErrKeyNotFound) {
		return err
	}
	return nil
}
