package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies
// `errors.Is(err, ErrNotFound)`. The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// Store is an abstraction for accessing line-delimited entry and metadata
// blobs under a common prefix. Implementations must be safe for concurrent
// use.
type Store interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)

	// Create creates a new writable blob. The blob becomes visible to
	// readers once closed.
	Create(ctx context.Context, name string) (WritableBlob, error)

	// Put writes a blob atomically.
	Put(ctx context.Context, name string, data []byte) error

	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error

	// List returns the names of all blobs under the prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a data blob.
type Blob interface {
	// ReadAt reads len(p) bytes starting at off, with io.ReaderAt
	// semantics for short reads at the end of the blob.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)

	// ReadRange returns a reader over [off, off+length). Ranges past the
	// end of the blob are truncated, not an error.
	ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error)

	// Size returns the size of the blob in bytes.
	Size() int64

	// Close releases the handle.
	Close() error
}

// WritableBlob is a write-once handle to a new blob. Writes stream to the
// backing store; Close finalizes the blob and makes it visible.
type WritableBlob interface {
	io.Writer
	io.Closer

	// Sync forces buffered data to durable storage where the backend
	// supports it; otherwise it is a no-op.
	Sync() error
}

// Mappable is an optional interface for Blobs that support zero-copy access
// to their full contents. The slice is valid until the Blob is closed.
type Mappable interface {
	Bytes() ([]byte, error)
}

// OpenReader opens a streaming reader over a whole blob. The returned
// ReadCloser also closes the underlying blob handle.
func OpenReader(ctx context.Context, store Store, name string) (io.ReadCloser, error) {
	blob, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}

	rc, err := blob.ReadRange(ctx, 0, blob.Size())
	if err != nil {
		blob.Close()
		return nil, err
	}

	return &blobReader{rc: rc, blob: blob}, nil
}

// ReadAll reads a whole blob into memory.
func ReadAll(ctx context.Context, store Store, name string) ([]byte, error) {
	rc, err := OpenReader(ctx, store, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

type blobReader struct {
	rc   io.ReadCloser
	blob Blob
}

func (r *blobReader) Read(p []byte) (int, error) {
	return r.rc.Read(p)
}

func (r *blobReader) Close() error {
	err := r.rc.Close()
	if cerr := r.blob.Close(); err == nil {
		err = cerr
	}
	return err
}
