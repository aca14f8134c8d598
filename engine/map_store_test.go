package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapStoreBasicOperations(t *testing.T) {
	store := NewMapStore[string]()

	_, ok := store.Get("a")
	assert.False(t, ok)

	store.Set("a", "one")
	v, ok := store.Get("a")
	require.True(t, ok)
	assert.Equal(t, "one", v)

	// Last write wins.
	store.Set("a", "two")
	v, _ = store.Get("a")
	assert.Equal(t, "two", v)

	require.NoError(t, store.Delete("a"))
	_, ok = store.Get("a")
	assert.False(t, ok)
}

func TestMapStoreDeleteMissing(t *testing.T) {
	store := NewMapStore[int]()
	require.ErrorIs(t, store.Delete("missing"), ErrNotFound)
}

func TestMapStoreBatchOperations(t *testing.T) {
	store := NewMapStore[int]()

	store.BatchSet(map[string]int{"a": 1, "b": 2, "c": 3})
	assert.Equal(t, 3, store.Len())

	got := store.BatchGet([]string{"a", "c", "missing"})
	assert.Equal(t, map[string]int{"a": 1, "c": 3}, got)

	store.BatchDelete([]string{"a", "missing"})
	assert.Equal(t, 2, store.Len())
}

func TestMapStoreToMapReturnsCopy(t *testing.T) {
	store := NewMapStore[int]()
	store.Set("a", 1)

	snapshot := store.ToMap()
	snapshot["b"] = 2

	assert.Equal(t, 1, store.Len())
	_, ok := store.Get("b")
	assert.False(t, ok)
}

func TestMapStoreClear(t *testing.T) {
	store := NewMapStore[int]()
	store.BatchSet(map[string]int{"a": 1, "b": 2})

	store.Clear()
	assert.Zero(t, store.Len())
}

func TestMapStoreRange(t *testing.T) {
	store := NewMapStore[int]()
	store.BatchSet(map[string]int{"a": 1, "b": 2, "c": 3})

	seen := make(map[string]int)
	store.Range(func(id string, v int) bool {
		seen[id] = v
		return true
	})
	assert.Equal(t, store.ToMap(), seen)

	var visits int
	store.Range(func(string, int) bool {
		visits++
		return false
	})
	assert.Equal(t, 1, visits)
}

func TestMapStoreConcurrentAccess(t *testing.T) {
	store := NewMapStore[int]()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 100 {
				id := string(rune('a' + i))
				store.Set(id, j)
				store.Get(id)
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, 8, store.Len())
}
