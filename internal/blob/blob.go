// Package blob stores submitted documents between upload and
// processing. Objects are short-lived: they are written on submission
// and removed once the owning job reaches a terminal status or expires.
package blob

import (
	"context"
	"errors"
)

// ErrObjectNotFound is returned when the requested object does not exist.
var ErrObjectNotFound = errors.New("blob object not found")

// Store is the minimal object storage surface the pipeline needs.
type Store interface {
	// Put writes the document bytes under the given key.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get reads the full object stored under the given key. Returns
	// ErrObjectNotFound when no such object exists.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
}
