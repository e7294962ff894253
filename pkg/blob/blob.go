// Package blob provides durable object storage for checkpoint snapshots and
// archive bundles.
//
// Keys are slash-separated paths (for example
// "checkpoints/tenant-a/2026-01-02T15:04:05.000000000Z.json"). Objects are
// immutable once written: callers write new keys rather than mutating
// existing ones, so readers never observe a partial object.
package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the requested object does not exist.
var ErrNotFound = errors.New("blob not found")

// Store is the blob storage interface.
type Store interface {
	// Put writes data under key, overwriting any existing object.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the full object. Returns ErrNotFound (possibly wrapped)
	// when the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Exists reports whether the key exists without downloading it.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns all keys under prefix, lexicographically ordered.
	List(ctx context.Context, prefix string) ([]string, error)

	// Close releases underlying resources.
	Close() error
}
