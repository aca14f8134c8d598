package engine

import (
	"maps"
	"sync"
)

// MapStore is an in-memory key-value store over entry identifiers. It backs
// the local index and the metadata cache; both key by the string id that
// entries carry on the wire.
type MapStore[T any] struct {
	mu   sync.RWMutex
	data map[string]T
}

// NewMapStore creates a new in-memory map-based store.
func NewMapStore[T any]() *MapStore[T] {
	return &MapStore[T]{
		data: make(map[string]T),
	}
}

// Get retrieves the value associated with the given id.
func (m *MapStore[T]) Get(id string) (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[id]
	return v, ok
}

// Set stores a value under the given id, replacing any previous value.
func (m *MapStore[T]) Set(id string, value T) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[id] = value
}

// Delete removes the value associated with the given id.
func (m *MapStore[T]) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data[id]; !ok {
		return ErrNotFound
	}

	delete(m.data, id)
	return nil
}

// BatchGet retrieves values for multiple ids in a single operation. Missing
// ids are absent from the result, not an error.
func (m *MapStore[T]) BatchGet(ids []string) map[string]T {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]T, len(ids))
	for _, id := range ids {
		if v, ok := m.data[id]; ok {
			result[id] = v
		}
	}

	return result
}

// BatchSet stores multiple id to value pairs in a single operation.
func (m *MapStore[T]) BatchSet(items map[string]T) {
	m.mu.Lock()
	defer m.mu.Unlock()

	maps.Copy(m.data, items)
}

// BatchDelete removes values for multiple ids in a single operation.
// Ids with no stored value are ignored.
func (m *MapStore[T]) BatchDelete(ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		delete(m.data, id)
	}
}

// Len returns the number of values currently stored.
func (m *MapStore[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.data)
}

// Clear removes all values from the store.
func (m *MapStore[T]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = make(map[string]T)
}

// ToMap returns a copy of the stored values.
func (m *MapStore[T]) ToMap() map[string]T {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]T, len(m.data))
	maps.Copy(result, m.data)

	return result
}

// Range calls fn for each stored id and value until fn returns false.
// The callback runs under the read lock and must not call back into the
// store.
func (m *MapStore[T]) Range(fn func(id string, value T) bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for id, v := range m.data {
		if !fn(id, v) {
			return
		}
	}
}
