// Package storage holds uploaded source files as objects; the parse stage
// re-fetches bytes by key instead of trusting anything embedded in a message.
package storage

import (
	"context"
	"io"
)

// Storage is the object store boundary.
type Storage interface {
	// Store writes the object and returns its key.
	Store(ctx context.Context, reader io.Reader, key string, size int64, contentType string) (string, error)
	// Get opens the object for reading.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object.
	Delete(ctx context.Context, key string) error
}
