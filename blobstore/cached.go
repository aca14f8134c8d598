package blobstore

import (
	"context"

	"github.com/vecpipe/vecpipe/cache"
)

// CachedStore keeps recently read blob payloads in a size-bounded LRU. Part
// and metadata blobs are written once under unique names, so a cached
// payload only goes stale through Put or Delete on the same name, and both
// invalidate it.
//
// Open returns a memory-backed Blob on a hit. On a miss the whole inner
// blob is read and admitted; that suits the scan-heavy read path, where
// blobs are consumed in full anyway.
type CachedStore struct {
	inner Store
	cache *cache.LRU
}

var _ Store = (*CachedStore)(nil)

// NewCachedStore wraps inner with an LRU payload cache.
func NewCachedStore(inner Store, c *cache.LRU) *CachedStore {
	return &CachedStore{inner: inner, cache: c}
}

// Open opens a blob for reading, serving the payload from cache when
// present.
func (s *CachedStore) Open(ctx context.Context, name string) (Blob, error) {
	if data, ok := s.cache.Get(name); ok {
		return &memoryBlob{data: data}, nil
	}

	data, err := ReadAll(ctx, s.inner, name)
	if err != nil {
		return nil, err
	}

	s.cache.Set(name, data)
	return &memoryBlob{data: data}, nil
}

// Create creates a new writable blob on the inner store. Any cached payload
// under the same name is dropped so readers never see the old content.
func (s *CachedStore) Create(ctx context.Context, name string) (WritableBlob, error) {
	s.cache.Delete(name)
	return s.inner.Create(ctx, name)
}

// Put writes a blob and invalidates its cached payload.
func (s *CachedStore) Put(ctx context.Context, name string, data []byte) error {
	if err := s.inner.Put(ctx, name, data); err != nil {
		return err
	}

	s.cache.Delete(name)
	return nil
}

// Delete removes a blob and its cached payload.
func (s *CachedStore) Delete(ctx context.Context, name string) error {
	if err := s.inner.Delete(ctx, name); err != nil {
		return err
	}

	s.cache.Delete(name)
	return nil
}

// List passes through to the inner store.
func (s *CachedStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}
