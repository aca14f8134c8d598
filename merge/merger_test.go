package merge

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vecpipe/vecpipe/blobstore"
	"github.com/vecpipe/vecpipe/lexical/bm25"
	"github.com/vecpipe/vecpipe/model"
)

type fakeEmbedder struct {
	vectors [][]float32
	err     error
	calls   [][]string
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors, nil
}

func (f *fakeEmbedder) Dimensions() int { return 2 }

func TestMergerEncodeQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("vector passthrough", func(t *testing.T) {
		m := New()

		q, err := m.EncodeQuery(ctx, QueryInput{Vector: []float32{1, 2}, TopK: 5})
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 2}, q.Dense)
		assert.Equal(t, 5, q.TopK)
		assert.Nil(t, q.Sparse)
	})

	t.Run("text mode embeds", func(t *testing.T) {
		emb := &fakeEmbedder{vectors: [][]float32{{0.1, 0.2}}}
		m := New(func(o *Options) {
			o.Embedder = emb
		})

		q, err := m.EncodeQuery(ctx, QueryInput{Text: "hello world"})
		require.NoError(t, err)
		assert.Equal(t, []float32{0.1, 0.2}, q.Dense)
		require.Len(t, emb.calls, 1)
		assert.Equal(t, []string{"hello world"}, emb.calls[0])
	})

	t.Run("hybrid adds sparse", func(t *testing.T) {
		enc, err := bm25.New(64)
		require.NoError(t, err)

		m := New(func(o *Options) {
			o.Embedder = &fakeEmbedder{vectors: [][]float32{{0.1, 0.2}}}
			o.SparseEncoder = enc
		})

		q, err := m.EncodeQuery(ctx, QueryInput{Text: "hello world", Hybrid: true})
		require.NoError(t, err)
		require.NotNil(t, q.Sparse)
		assert.NotEmpty(t, q.Sparse.Dimensions)
	})

	t.Run("restricts pass through", func(t *testing.T) {
		m := New()

		restricts := []model.Restriction{{Namespace: "lang", Allow: []string{"en"}}}
		q, err := m.EncodeQuery(ctx, QueryInput{Vector: []float32{1}, Restricts: restricts})
		require.NoError(t, err)
		assert.Equal(t, restricts, q.Restricts)
	})

	t.Run("embedder failure propagates", func(t *testing.T) {
		broken := errors.New("quota exceeded")
		m := New(func(o *Options) {
			o.Embedder = &fakeEmbedder{err: broken}
		})

		_, err := m.EncodeQuery(ctx, QueryInput{Text: "hello"})
		assert.ErrorIs(t, err, broken)
	})

	t.Run("input validation", func(t *testing.T) {
		enc, err := bm25.New(64)
		require.NoError(t, err)

		tests := []struct {
			name    string
			m       *Merger
			in      QueryInput
			wantErr error
		}{
			{
				name:    "mixed text and vector",
				m:       New(),
				in:      QueryInput{Text: "hello", Vector: []float32{1}},
				wantErr: ErrMixedQueryInput,
			},
			{
				name:    "neither text nor vector",
				m:       New(),
				in:      QueryInput{},
				wantErr: ErrEmptyQueryInput,
			},
			{
				name:    "text without embedder",
				m:       New(),
				in:      QueryInput{Text: "hello"},
				wantErr: ErrNoEmbedder,
			},
			{
				name:    "hybrid without text",
				m:       New(func(o *Options) { o.SparseEncoder = enc }),
				in:      QueryInput{Vector: []float32{1}, Hybrid: true},
				wantErr: ErrHybridNeedsText,
			},
			{
				name:    "hybrid without sparse encoder",
				m:       New(func(o *Options) { o.Embedder = &fakeEmbedder{vectors: [][]float32{{1}}} }),
				in:      QueryInput{Text: "hello", Hybrid: true},
				wantErr: ErrNoSparseEncoder,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := tt.m.EncodeQuery(ctx, tt.in)
				assert.ErrorIs(t, err, tt.wantErr)
			})
		}
	})
}

func writeBlob(t *testing.T, store blobstore.Store, name string, lines ...string) {
	t.Helper()
	require.NoError(t, store.Put(context.Background(), name, []byte(strings.Join(lines, "\n")+"\n")))
}

func newBackfillMerger(store blobstore.Store, optFns ...func(o *Options)) *Merger {
	return New(append([]func(o *Options){func(o *Options) {
		o.MetadataStore = store
		o.MetadataPrefix = "parts/"
	}}, optFns...)...)
}

func TestMergerBackfill(t *testing.T) {
	ctx := context.Background()

	t.Run("fills missing metadata only", func(t *testing.T) {
		store := blobstore.NewMemoryStore()
		writeBlob(t, store, "parts/000.jsonl",
			`{"id": "a", "embedding": [0.1], "embedding_metadata": {"title": "A"}}`,
			`{"id": "b", "embedding": [0.2], "embedding_metadata": {"title": "STORE"}}`,
		)

		neighbors := []model.Neighbor{
			{ID: "a"},
			{ID: "b", Metadata: map[string]any{"title": "original"}},
		}

		stats, err := newBackfillMerger(store).Backfill(ctx, neighbors)
		require.NoError(t, err)

		assert.Equal(t, map[string]any{"title": "A"}, neighbors[0].Metadata)
		assert.Equal(t, map[string]any{"title": "original"}, neighbors[1].Metadata,
			"populated metadata must never be overwritten")
		assert.Equal(t, 1, stats.Missing)
		assert.Equal(t, 1, stats.Filled)
	})

	t.Run("unmatched ids keep nil metadata", func(t *testing.T) {
		store := blobstore.NewMemoryStore()
		writeBlob(t, store, "parts/000.jsonl",
			`{"id": "other", "embedding_metadata": {"title": "X"}}`,
		)

		neighbors := []model.Neighbor{{ID: "ghost"}}

		stats, err := newBackfillMerger(store).Backfill(ctx, neighbors)
		require.NoError(t, err)
		assert.Nil(t, neighbors[0].Metadata)
		assert.Equal(t, 1, stats.Missing)
		assert.Equal(t, 0, stats.Filled)
	})

	t.Run("malformed lines are skipped and counted", func(t *testing.T) {
		store := blobstore.NewMemoryStore()
		writeBlob(t, store, "parts/000.jsonl",
			`{not json`,
			`"a bare string"`,
			``,
			`{"metadata": {"title": "no id"}}`,
			`{"id": "a", "metadata": {"title": "A"}}`,
		)

		neighbors := []model.Neighbor{{ID: "a"}}

		stats, err := newBackfillMerger(store).Backfill(ctx, neighbors)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"title": "A"}, neighbors[0].Metadata)
		assert.Equal(t, 3, stats.Skipped, "blank lines do not count as skipped")
	})

	t.Run("numeric store id matches string neighbor id", func(t *testing.T) {
		store := blobstore.NewMemoryStore()
		writeBlob(t, store, "parts/000.jsonl",
			`{"id": 42, "embedding_metadata": {"title": "answer"}}`,
		)

		neighbors := []model.Neighbor{{ID: "42"}}

		_, err := newBackfillMerger(store).Backfill(ctx, neighbors)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"title": "answer"}, neighbors[0].Metadata)
	})

	t.Run("scan stops once every id is found", func(t *testing.T) {
		store := blobstore.NewMemoryStore()
		writeBlob(t, store, "parts/000.jsonl",
			`{"id": "a", "embedding_metadata": {"title": "A"}}`,
			`{malformed line that an early exit never reaches`,
		)
		writeBlob(t, store, "parts/001.jsonl",
			`{also malformed`,
		)

		neighbors := []model.Neighbor{{ID: "a"}}

		stats, err := newBackfillMerger(store, func(o *Options) {
			o.Parallelism = 1
		}).Backfill(ctx, neighbors)
		require.NoError(t, err)

		assert.Equal(t, 1, stats.Filled)
		assert.Equal(t, 0, stats.Skipped)
		assert.Equal(t, 1, stats.Blobs)
	})

	t.Run("nothing missing skips the scan", func(t *testing.T) {
		neighbors := []model.Neighbor{
			{ID: "a", Metadata: map[string]any{"x": 1}},
		}

		stats, err := newBackfillMerger(blobstore.NewMemoryStore()).Backfill(ctx, neighbors)
		require.NoError(t, err)
		assert.Equal(t, BackfillStats{}, stats)
	})

	t.Run("nil store disables backfill", func(t *testing.T) {
		neighbors := []model.Neighbor{{ID: "a"}}

		stats, err := New().Backfill(ctx, neighbors)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Missing)
		assert.Equal(t, 0, stats.Filled)
		assert.Nil(t, neighbors[0].Metadata)
	})

	t.Run("list failure propagates", func(t *testing.T) {
		broken := errors.New("bucket gone")
		m := newBackfillMerger(&failingStore{err: broken})

		_, err := m.Backfill(ctx, []model.Neighbor{{ID: "a"}})
		assert.ErrorIs(t, err, broken)
	})
}

func TestMergerMerge(t *testing.T) {
	ctx := context.Background()

	store := blobstore.NewMemoryStore()
	writeBlob(t, store, "parts/000.jsonl",
		`{"id": "x", "embedding": [0.1], "embedding_metadata": {"title": "X"}}`,
	)

	m := newBackfillMerger(store)

	t.Run("normalizes then backfills", func(t *testing.T) {
		raws := []json.RawMessage{
			json.RawMessage(`{"distance": 0.5, "datapoint": {"datapoint_id": "x"}}`),
		}

		neighbors, stats, err := m.Merge(ctx, raws)
		require.NoError(t, err)
		require.Len(t, neighbors, 1)

		assert.Equal(t, "x", neighbors[0].ID)
		require.NotNil(t, neighbors[0].Score)
		assert.InDelta(t, 0.5, *neighbors[0].Score, 1e-9)
		assert.Equal(t, map[string]any{"title": "X"}, neighbors[0].Metadata)
		assert.Equal(t, 1, stats.Filled)
	})

	t.Run("bad neighbor shape fails before any scan", func(t *testing.T) {
		_, _, err := m.Merge(ctx, []json.RawMessage{json.RawMessage(`[]`)})
		assert.ErrorIs(t, err, ErrUnknownNeighborShape)
	})
}

type failingStore struct {
	err error
}

func (s *failingStore) Open(context.Context, string) (blobstore.Blob, error) {
	return nil, s.err
}

func (s *failingStore) Create(context.Context, string) (blobstore.WritableBlob, error) {
	return nil, s.err
}

func (s *failingStore) Put(context.Context, string, []byte) error { return s.err }

func (s *failingStore) Delete(context.Context, string) error { return s.err }

func (s *failingStore) List(context.Context, string) ([]string, error) {
	return nil, s.err
}
