// Package blobstore defines the port for best-effort durable storage of
// serialized context and run summaries. The in-memory state is authoritative
// for the duration of a run; a failed save is logged, never fatal.
package blobstore

import "context"

// Store persists opaque blobs by key.
type Store interface {
	// Save durably stores blob under key, overwriting any prior value.
	Save(ctx context.Context, key string, blob []byte) error

	// Load returns the blob stored under key.
	// Implementations return domain.ErrNotFound for missing keys.
	Load(ctx context.Context, key string) ([]byte, error)
}
