package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("storage: not found")

// Store is a small persistent key/value store. It stands in for the
// browser's localStorage: the token cache and the provider's sealed session
// record both live here. Drivers (sqlite, file, memory) implement it.
type Store interface {
	// Get returns ErrNotFound for a missing key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set creates or overwrites key.
	Set(ctx context.Context, key string, value []byte) error

	// Delete is idempotent: deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Ping verifies the backing store is usable.
	Ping(ctx context.Context) error

	Close() error
}
