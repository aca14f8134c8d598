// Package cache provides a size-bounded LRU cache for immutable blob
// payloads.
//
// Accounting is by payload length, so the limit bounds resident bytes rather
// than entry count. Returned slices are shared with the cache and must be
// treated as read-only.
package cache

import (
	"container/list"
	"sync"
)

// LRU is a size-bounded least-recently-used byte cache. Safe for concurrent
// use.
type LRU struct {
	mu      sync.Mutex
	limit   int64
	size    int64
	order   *list.List // front = most recently used
	entries map[string]*list.Element
}

type lruEntry struct {
	key  string
	data []byte
}

// NewLRU creates a cache holding at most limit bytes. A non-positive limit
// disables admission entirely.
func NewLRU(limit int64) *LRU {
	return &LRU{
		limit:   limit,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

// Get returns the cached payload for key and marks it recently used.
func (c *LRU) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	c.order.MoveToFront(el)
	return el.Value.(*lruEntry).data, true
}

// Set caches payload under key, evicting least-recently-used entries until
// the cache fits its limit. Payloads larger than the limit are not admitted.
// Overwriting a key replaces its accounted size.
func (c *LRU) Set(key string, data []byte) {
	if c.limit <= 0 || int64(len(data)) > c.limit {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		e := el.Value.(*lruEntry)
		c.size += int64(len(data)) - int64(len(e.data))
		e.data = data
		c.order.MoveToFront(el)
	} else {
		c.entries[key] = c.order.PushFront(&lruEntry{key: key, data: data})
		c.size += int64(len(data))
	}

	for c.size > c.limit {
		c.evictOldestLocked()
	}
}

// Delete drops key from the cache if present.
func (c *LRU) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
}

// Size returns the resident payload bytes.
func (c *LRU) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Len returns the number of cached payloads.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *LRU) evictOldestLocked() {
	el := c.order.Back()
	if el == nil {
		return
	}
	c.removeLocked(el)
}

func (c *LRU) removeLocked(el *list.Element) {
	e := el.Value.(*lruEntry)
	c.order.Remove(el)
	delete(c.entries, e.key)
	c.size -= int64(len(e.data))
}
