// Package storage defines the blob store abstraction used for the raw crawl corpus.
// Implementations live in subpackages (local filesystem, in-memory).
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("object not found")

// BlobStore persists and retrieves named objects.
type BlobStore interface {
	// PutObject writes data under path and returns a URI for the stored object.
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	// GetObject returns the bytes stored under path, or ErrNotFound.
	GetObject(ctx context.Context, path string) ([]byte, error)
	// List returns the sorted object paths that live directly under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
