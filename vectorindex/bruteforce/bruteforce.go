// Package bruteforce implements vectorindex.Index with exhaustive scoring
// over an in-memory entry set. It exists for tests and small deployments
// where a hosted vector-search service is unavailable; results come back in
// the same nested neighbor shape the hosted service produces, so the merge
// stage treats both identically.
//
// Restrict filtering uses one roaring bitmap per (namespace, token) pair.
// Only allow tokens are indexed: the ingest projector emits allow-only
// clauses, and query-side deny tokens subtract the matching postings at
// search time.
package bruteforce

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/vecpipe/vecpipe/distance"
	"github.com/vecpipe/vecpipe/engine"
	"github.com/vecpipe/vecpipe/model"
	"github.com/vecpipe/vecpipe/queue"
	"github.com/vecpipe/vecpipe/vectorindex"
)

// DefaultTopK is the neighbor count used when a query does not set one.
const DefaultTopK = 10

// ErrDimensionMismatch is a named error type for dimension mismatch
// between the index and an entry or query vector.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

// Error returns the error message for dimension mismatch
func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Options configures an Index.
type Options struct {
	// Metric is the distance measure used for scoring.
	Metric distance.Metric

	// ReturnMetadata controls whether neighbors carry the stored
	// embedding metadata. Off by default, matching a service deployment
	// that stores metadata out of band.
	ReturnMetadata bool
}

// DefaultOptions are the options used when none are given.
var DefaultOptions = Options{
	Metric: distance.MetricDot,
}

// Index is an exhaustive in-memory vector index with bitmap-backed
// restrict filtering. Safe for concurrent use.
//
// Row ids are assigned in insertion order and never reused; a removed
// row simply leaves the live set.
type Index struct {
	mu       sync.RWMutex
	opts     Options
	distFn   distance.Func
	higher   bool
	dims     int
	entries  *engine.MapStore[model.IndexEntry]
	rows     []string
	rowOf    map[string]uint32
	live     *roaring.Bitmap
	inverted map[string]map[string]*roaring.Bitmap
}

var _ vectorindex.Index = (*Index)(nil)

// New creates an empty Index.
func New(optFns ...func(o *Options)) (*Index, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	distFn, err := distance.Provider(opts.Metric)
	if err != nil {
		return nil, err
	}

	return &Index{
		opts:     opts,
		distFn:   distFn,
		higher:   distance.HigherIsBetter(opts.Metric),
		entries:  engine.NewMapStore[model.IndexEntry](),
		rowOf:    make(map[string]uint32),
		live:     roaring.New(),
		inverted: make(map[string]map[string]*roaring.Bitmap),
	}, nil
}

// Len returns the number of live entries.
func (idx *Index) Len() int {
	return idx.entries.Len()
}

// Upsert inserts or overwrites entries by id, last write wins. The first
// entry fixes the index dimensionality.
func (idx *Index) Upsert(ctx context.Context, entries []model.IndexEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	for i, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("entry %d: %w", i, vectorindex.ErrEmptyEntryID)
		}
		if len(e.Dense) == 0 {
			return fmt.Errorf("entry %q: %w", e.ID, vectorindex.ErrEmptyEntryVector)
		}
		if idx.dims == 0 {
			idx.dims = len(e.Dense)
		} else if len(e.Dense) != idx.dims {
			return fmt.Errorf("entry %q: %w", e.ID, &ErrDimensionMismatch{Expected: idx.dims, Actual: len(e.Dense)})
		}

		row, known := idx.rowOf[e.ID]
		if known {
			old, _ := idx.entries.Get(e.ID)
			idx.removeFromIndexLocked(row, old.Restricts)
		} else {
			row = uint32(len(idx.rows))
			idx.rows = append(idx.rows, e.ID)
			idx.rowOf[e.ID] = row
		}

		idx.entries.Set(e.ID, e)
		idx.live.Add(row)
		idx.addToIndexLocked(row, e.Restricts)
	}

	return nil
}

// Remove deletes entries by id. Unknown ids are skipped.
func (idx *Index) Remove(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return vectorindex.ErrNoIDs
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, id := range ids {
		row, ok := idx.rowOf[id]
		if !ok {
			continue
		}

		e, _ := idx.entries.Get(id)
		idx.removeFromIndexLocked(row, e.Restricts)
		idx.live.Remove(row)
		delete(idx.rowOf, id)
		_ = idx.entries.Delete(id)
	}

	return nil
}

// Search scores every candidate surviving the restrict filter and returns
// the top results as raw neighbor records, closest first. For dot product
// and cosine the score is the dense product plus the sparse product when
// both sides carry a sparse vector; for L2 the sparse signal does not
// combine with a distance and is ignored.
func (idx *Index) Search(ctx context.Context, q model.Query) ([]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(q.Dense) == 0 {
		return nil, vectorindex.ErrEmptyQuery
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.dims != 0 && len(q.Dense) != idx.dims {
		return nil, &ErrDimensionMismatch{Expected: idx.dims, Actual: len(q.Dense)}
	}

	candidates := idx.candidatesLocked(q.Restricts)

	k := q.TopK
	if k <= 0 {
		k = DefaultTopK
	}

	// The bounded heap keeps memory proportional to k rather than to the
	// candidate count. Ties break on id so results stay deterministic.
	top := queue.NewTopK(k, func(a, b scoredEntry) bool {
		if a.score != b.score {
			if idx.higher {
				return a.score < b.score
			}
			return a.score > b.score
		}
		return a.id > b.id
	})

	candidates.Iterate(func(row uint32) bool {
		e, ok := idx.entries.Get(idx.rows[row])
		if !ok {
			return true
		}

		score := float64(idx.distFn(q.Dense, e.Dense))
		if idx.higher && q.Sparse != nil && e.Sparse != nil {
			score += float64(distance.SparseDot(
				q.Sparse.Dimensions, q.Sparse.Values,
				e.Sparse.Dimensions, e.Sparse.Values,
			))
		}

		top.Push(scoredEntry{id: e.ID, score: score, metadata: e.Metadata})
		return true
	})

	out := make([]json.RawMessage, 0, top.Len())
	for _, s := range top.Drain() {
		n := wireNeighbor{
			Datapoint: wireDatapoint{DatapointID: s.id},
			Distance:  s.score,
		}
		if idx.opts.ReturnMetadata {
			n.Datapoint.Metadata = s.metadata
		}

		raw, err := json.Marshal(n)
		if err != nil {
			return nil, fmt.Errorf("marshal neighbor %q: %w", s.id, err)
		}
		out = append(out, json.RawMessage(raw))
	}

	return out, nil
}

type scoredEntry struct {
	id       string
	score    float64
	metadata map[string]any
}

// wireNeighbor matches the neighbor shape of the hosted vector-search
// service, so the merge stage decodes local and remote results the same
// way.
type wireNeighbor struct {
	Datapoint wireDatapoint `json:"datapoint"`
	Distance  float64       `json:"distance"`
}

type wireDatapoint struct {
	DatapointID string         `json:"datapoint_id"`
	Metadata    map[string]any `json:"embedding_metadata,omitempty"`
}

// candidatesLocked intersects the live set with every restrict clause:
// allow tokens OR together within a namespace, namespaces AND together,
// and deny tokens subtract. Caller holds at least a read lock.
func (idx *Index) candidatesLocked(restricts []model.Restriction) *roaring.Bitmap {
	candidates := idx.live.Clone()

	for _, r := range restricts {
		postings := idx.inverted[r.Namespace]

		if len(r.Allow) > 0 {
			allowed := roaring.New()
			for _, tok := range r.Allow {
				if bm, ok := postings[tok]; ok {
					allowed.Or(bm)
				}
			}
			candidates.And(allowed)
		}

		for _, tok := range r.Deny {
			if bm, ok := postings[tok]; ok {
				candidates.AndNot(bm)
			}
		}

		if candidates.IsEmpty() {
			break
		}
	}

	return candidates
}

func (idx *Index) addToIndexLocked(row uint32, restricts []model.Restriction) {
	for _, r := range restricts {
		for _, tok := range r.Allow {
			postings := idx.inverted[r.Namespace]
			if postings == nil {
				postings = make(map[string]*roaring.Bitmap)
				idx.inverted[r.Namespace] = postings
			}

			bm := postings[tok]
			if bm == nil {
				bm = roaring.New()
				postings[tok] = bm
			}
			bm.Add(row)
		}
	}
}

func (idx *Index) removeFromIndexLocked(row uint32, restricts []model.Restriction) {
	for _, r := range restricts {
		postings := idx.inverted[r.Namespace]
		if postings == nil {
			continue
		}

		for _, tok := range r.Allow {
			bm := postings[tok]
			if bm == nil {
				continue
			}

			bm.Remove(row)
			if bm.IsEmpty() {
				delete(postings, tok)
			}
		}

		if len(postings) == 0 {
			delete(idx.inverted, r.Namespace)
		}
	}
}
