// Package storage defines the blob interfaces used to persist checkpoint
// artifacts. The local filesystem store is authoritative; any number of
// mirrors (such as GCS) may receive copies.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is wrapped by every Store when an object does not exist.
var ErrNotFound = errors.New("object not found")

// Writer saves an object and returns its URI.
type Writer interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Store is a readable, writable blob store.
type Store interface {
	Writer
	// GetObject returns the object's bytes or an error wrapping ErrNotFound.
	GetObject(ctx context.Context, path string) ([]byte, error)
	// DeleteObject removes the object; removing a missing object succeeds.
	DeleteObject(ctx context.Context, path string) error
}

// Mirror is a best-effort secondary destination for artifacts.
type Mirror interface {
	Writer
	Name() string
}
