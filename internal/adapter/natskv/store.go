package natskv

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/FlowForge/internal/domain"
)

// Store wraps a NATS JetStream KeyValue bucket as a blob store for
// serialized session context and run summaries.
type Store struct {
	kv jetstream.KeyValue
}

// NewStore creates a NATS KV-backed blob store.
func NewStore(kv jetstream.KeyValue) *Store {
	return &Store{kv: kv}
}

// Save stores blob under key, overwriting any prior value.
func (s *Store) Save(ctx context.Context, key string, blob []byte) error {
	if _, err := s.kv.Put(ctx, key, blob); err != nil {
		return fmt.Errorf("kv put %s: %w", key, err)
	}
	return nil
}

// Load returns the blob stored under key, or domain.ErrNotFound.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, fmt.Errorf("kv key %s: %w", key, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("kv get %s: %w", key, err)
	}
	return entry.Value(), nil
}
