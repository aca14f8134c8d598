package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vecpipe/vecpipe/distance"
	"github.com/vecpipe/vecpipe/model"
)

func TestRNGDeterminism(t *testing.T) {
	a := RandomVectors(NewRNG(7), 5, 8)
	b := RandomVectors(NewRNG(7), 5, 8)
	assert.Equal(t, a, b)

	rng := NewRNG(7)
	first := RandomVectors(rng, 5, 8)
	rng.Reset()
	assert.Equal(t, first, RandomVectors(rng, 5, 8))
}

func TestEntries(t *testing.T) {
	entries := Entries([][]float32{{1, 0}, {0, 1}})
	require.Len(t, entries, 2)
	assert.Equal(t, "v0", entries[0].ID)
	assert.Equal(t, []float32{0, 1}, entries[1].Dense)
}

func TestExactTopK(t *testing.T) {
	entries := []model.IndexEntry{
		{ID: "a", Dense: []float32{1, 0}},
		{ID: "b", Dense: []float32{0.5, 0.5}},
		{ID: "c", Dense: []float32{0, 1}},
	}

	got := ExactTopK([]float32{1, 0}, entries, 2, distance.Dot)
	assert.Equal(t, []string{"a", "b"}, got)

	// Equal scores fall back to id order; k clamps to the entry count.
	tied := []model.IndexEntry{
		{ID: "z", Dense: []float32{1, 0}},
		{ID: "a", Dense: []float32{1, 0}},
	}
	assert.Equal(t, []string{"a", "z"}, ExactTopK([]float32{1, 0}, tied, 5, distance.Dot))
}

func TestCorpusDeterministic(t *testing.T) {
	records := Corpus(3)
	require.Len(t, records, 3)
	assert.Equal(t, Corpus(3), records)

	assert.Equal(t, "book-000", records[0]["id"])
	assert.Equal(t, "the silent whale", records[0]["title"])
	assert.Equal(t, "classic", records[0]["genre"])
	assert.Equal(t, 1950, records[0]["year"])
}
