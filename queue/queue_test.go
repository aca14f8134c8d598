package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type scored struct {
	id    string
	score float64
}

// higherIsBetter ranks by score descending, ties by id ascending.
func higherIsBetter(a, b scored) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	return a.id > b.id
}

func TestTopKKeepsBest(t *testing.T) {
	top := NewTopK(3, higherIsBetter)

	for _, s := range []scored{
		{"a", 3}, {"b", 1}, {"c", 5}, {"d", 2}, {"e", 4},
	} {
		top.Push(s)
	}

	assert.Equal(t, 3, top.Len())

	got := top.Drain()
	assert.Equal(t, []scored{{"c", 5}, {"e", 4}, {"a", 3}}, got)
	assert.Equal(t, 0, top.Len())
}

func TestTopKFewerThanLimit(t *testing.T) {
	top := NewTopK(10, higherIsBetter)

	top.Push(scored{"a", 2})
	top.Push(scored{"b", 1})

	got := top.Drain()
	assert.Equal(t, []scored{{"a", 2}, {"b", 1}}, got)
}

func TestTopKTieBreak(t *testing.T) {
	top := NewTopK(2, higherIsBetter)

	top.Push(scored{"c", 1})
	top.Push(scored{"a", 1})
	top.Push(scored{"b", 1})

	got := top.Drain()
	assert.Equal(t, []scored{{"a", 1}, {"b", 1}}, got)
}

func TestTopKNonPositiveLimit(t *testing.T) {
	top := NewTopK(0, higherIsBetter)

	top.Push(scored{"a", 1})

	assert.Equal(t, 0, top.Len())
	assert.Empty(t, top.Drain())
}

func TestTopKLowerIsBetter(t *testing.T) {
	top := NewTopK(2, func(a, b scored) bool {
		if a.score != b.score {
			return a.score > b.score
		}
		return a.id > b.id
	})

	for _, s := range []scored{{"far", 9}, {"near", 1}, {"mid", 4}} {
		top.Push(s)
	}

	got := top.Drain()
	assert.Equal(t, []scored{{"near", 1}, {"mid", 4}}, got)
}
