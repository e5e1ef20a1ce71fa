package evidence

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned when a stored object does not exist
var ErrObjectNotFound = errors.New("object not found")

// PutResult describes a stored object
type PutResult struct {
	// SHA256 is the hex-encoded checksum of the stored bytes
	SHA256 string

	// SizeBytes is the number of bytes stored
	SizeBytes int64
}

// ObjectStore stores raw evidence bytes. Metadata (filename, uploader,
// case association) lives in the case store; the object store only sees
// opaque keys.
type ObjectStore interface {
	// Put stores the content under key and returns its checksum and size
	Put(ctx context.Context, key string, content io.Reader, contentType string) (*PutResult, error)

	// Get retrieves the content stored under key
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the content stored under key
	Delete(ctx context.Context, key string) error

	// Exists reports whether an object is stored under key
	Exists(ctx context.Context, key string) (bool, error)
}
