package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("store: key not found")
	ErrClosed   = errors.New("store: closed")
)

// Store is the remote key/value contract room state is kept in.
type Store interface {
	// Get returns the string stored at key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value at key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// HSet stores value under field in the hash at key.
	HSet(ctx context.Context, key, field, value string) error

	// HDel removes field from the hash at key and reports whether it existed.
	HDel(ctx context.Context, key, field string) (bool, error)

	// HGetAll returns every field of the hash at key. A missing hash is empty.
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// HKeys returns the field names of the hash at key.
	HKeys(ctx context.Context, key string) ([]string, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error
}
