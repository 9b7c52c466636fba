package storage

import (
	"context"
	"io"
	"time"
)

// ObjectInfo represents metadata about a stored object.
type ObjectInfo struct {
	Key          string    // Object key/path
	Size         int64     // Object size in bytes
	LastModified time.Time // Last modification time
	ETag         string    // Entity tag for versioning
	ContentType  string    // Content type
}

// Storage is the read side of an object store.
type Storage interface {
	// Get retrieves an object from the specified bucket.
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, *ObjectInfo, error)

	// Exists checks if an object exists in the specified bucket.
	Exists(ctx context.Context, bucket, key string) (bool, error)

	io.Closer
}
