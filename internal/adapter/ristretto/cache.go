// Package ristretto provides the in-process L1 tier of the phase result
// cache, backed by dgraph-io/ristretto.
package ristretto

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// bufferItems is ristretto's recommended Get-buffer size.
const bufferItems = 64

// Cache holds serialized phase results keyed by result fingerprint. Cost is
// the byte length of the stored value, so maxCost bounds total memory.
type Cache struct {
	inner *ristretto.Cache[string, []byte]
}

// New creates an L1 cache bounded to maxCostBytes of stored values.
func New(maxCostBytes int64) (*Cache, error) {
	// Counter space sized for roughly 10x the item count at ~100 bytes
	// per cached result.
	inner, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxCostBytes / 100 * 10,
		MaxCost:     maxCostBytes,
		BufferItems: bufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{inner: inner}, nil
}

// Get returns the cached value for key, if present. Ristretto admission is
// probabilistic, so a recent Set is not guaranteed to be found.
func (c *Cache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	val, found := c.inner.Get(key)
	if !found {
		return nil, false, nil
	}
	return val, true, nil
}

// Set stores value under key for at most ttl.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.inner.SetWithTTL(key, value, int64(len(value)), ttl)
	return nil
}

// Delete evicts key.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.inner.Del(key)
	return nil
}

// Close stops the cache's background goroutines.
func (c *Cache) Close() {
	c.inner.Close()
}
