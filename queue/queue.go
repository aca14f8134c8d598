// Package queue provides bounded priority selection for scored search
// candidates.
package queue

import "container/heap"

// TopK retains the best limit items of a scored stream. The backing heap
// keeps the worst retained item at its root, so deciding on a new candidate
// costs one comparison and an eviction costs O(log limit).
//
// worse reports whether a ranks strictly below b. Break ties on a secondary
// key so the retained set stays deterministic.
type TopK[T any] struct {
	limit int
	h     candidateHeap[T]
}

// NewTopK creates a selector retaining at most limit items. A non-positive
// limit retains nothing.
func NewTopK[T any](limit int, worse func(a, b T) bool) *TopK[T] {
	return &TopK[T]{
		limit: limit,
		h:     candidateHeap[T]{worse: worse},
	}
}

// Push offers an item. Once the selector is full the item either evicts the
// current worst or is dropped.
func (t *TopK[T]) Push(item T) {
	if t.limit <= 0 {
		return
	}

	if t.h.Len() < t.limit {
		heap.Push(&t.h, item)
		return
	}

	if t.h.worse(item, t.h.items[0]) {
		return
	}

	t.h.items[0] = item
	heap.Fix(&t.h, 0)
}

// Len returns the number of retained items.
func (t *TopK[T]) Len() int {
	return t.h.Len()
}

// Drain removes and returns the retained items, best first. The selector is
// empty afterwards.
func (t *TopK[T]) Drain() []T {
	out := make([]T, t.h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&t.h).(T)
	}
	return out
}

// Compile time check to ensure candidateHeap satisfies the heap interface.
var _ heap.Interface = (*candidateHeap[struct{}])(nil)

// candidateHeap keeps the worst item at the root.
type candidateHeap[T any] struct {
	items []T
	worse func(a, b T) bool
}

func (h *candidateHeap[T]) Len() int { return len(h.items) }

func (h *candidateHeap[T]) Less(i, j int) bool {
	return h.worse(h.items[i], h.items[j])
}

func (h *candidateHeap[T]) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
}

func (h *candidateHeap[T]) Push(x any) {
	h.items = append(h.items, x.(T))
}

func (h *candidateHeap[T]) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	var zero T
	old[n-1] = zero // Avoid retaining evicted values.
	h.items = old[:n-1]
	return item
}
