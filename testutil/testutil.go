// Package testutil provides deterministic data generators shared by tests
// and benchmarks across the module.
//
// # Random Vectors
//
// RNG wraps math/rand behind a mutex with a remembered seed, so a failing
// test reproduces from its seed alone:
//
//	rng := testutil.NewRNG(42)
//	vecs := testutil.RandomVectors(rng, 1000, 64)
//
// # Synthetic Records
//
// Corpus builds raw records shaped like real ingest input, with enough
// word overlap between titles that lexical scoring has terms to share.
//
// # Ground Truth
//
// ExactTopK ranks entries by exhaustive scoring, independent of any index
// implementation, for recall checks against the real search path.
package testutil

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/vecpipe/vecpipe/model"
)

// RNG is a seeded pseudo-random source, safe for concurrent use.
type RNG struct {
	mu   sync.Mutex
	rand *rand.Rand
	seed int64
}

// NewRNG creates a generator with the given seed.
func NewRNG(seed int64) *RNG {
	return &RNG{rand: rand.New(rand.NewSource(seed)), seed: seed}
}

// Reset rewinds the generator to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand = rand.New(rand.NewSource(r.seed))
}

// Intn returns a pseudo-random number in [0, n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float32 returns a pseudo-random number in [0, 1).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

// FillUniform fills dst with values in [0, 1), locking once per call.
func (r *RNG) FillUniform(dst []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = r.rand.Float32()
	}
}

// RandomVectors returns n vectors of the given dimensionality with
// components drawn uniformly from [0, 1).
func RandomVectors(rng *RNG, n, dims int) [][]float32 {
	vecs := make([][]float32, n)
	for i := range vecs {
		vecs[i] = make([]float32, dims)
		rng.FillUniform(vecs[i])
	}
	return vecs
}

// Entries wraps dense vectors into index entries with ids "v0", "v1", ...
func Entries(vectors [][]float32) []model.IndexEntry {
	entries := make([]model.IndexEntry, len(vectors))
	for i, v := range vectors {
		entries[i] = model.IndexEntry{ID: fmt.Sprintf("v%d", i), Dense: v}
	}
	return entries
}

// ExactTopK returns the ids of the k best entries for query by exhaustive
// scoring, higher score winning. Ties break on id ascending, matching the
// ordering the index promises. k larger than the entry count clamps.
func ExactTopK(query []float32, entries []model.IndexEntry, k int, score func(a, b []float32) float32) []string {
	type scored struct {
		id    string
		score float32
	}

	ranked := make([]scored, 0, len(entries))
	for _, e := range entries {
		ranked = append(ranked, scored{id: e.ID, score: score(query, e.Dense)})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].id < ranked[j].id
	})

	k = min(k, len(ranked))
	ids := make([]string, k)
	for i := range ids {
		ids[i] = ranked[i].id
	}
	return ids
}

var (
	corpusSubjects  = []string{"whale", "desert", "castle", "river", "storm", "harbor", "meadow", "lantern"}
	corpusModifiers = []string{"silent", "crimson", "forgotten", "winter", "distant", "hollow"}
	corpusGenres    = []string{"classic", "scifi", "fantasy", "poetry"}
)

// Corpus returns n deterministic records shaped like ingest input, each
// with id, title, genre and year fields. Ids run "book-000", "book-001", ...
func Corpus(n int) []model.Record {
	records := make([]model.Record, n)
	for i := range records {
		records[i] = model.Record{
			"id":    fmt.Sprintf("book-%03d", i),
			"title": fmt.Sprintf("the %s %s", corpusModifiers[i%len(corpusModifiers)], corpusSubjects[i%len(corpusSubjects)]),
			"genre": corpusGenres[i%len(corpusGenres)],
			"year":  1950 + i%70,
		}
	}
	return records
}
