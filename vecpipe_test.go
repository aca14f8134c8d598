package vecpipe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vecpipe/vecpipe/blobstore"
	"github.com/vecpipe/vecpipe/config"
	"github.com/vecpipe/vecpipe/manifest"
	"github.com/vecpipe/vecpipe/model"
	"github.com/vecpipe/vecpipe/recordsource"
)

// stubEmbedder returns canned vectors by exact text and records every call.
type stubEmbedder struct {
	dims    int
	vectors map[string][]float32
	err     error

	mu    sync.Mutex
	calls [][]string
}

func (s *stubEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	s.calls = append(s.calls, append([]string(nil), texts...))
	s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := s.vectors[text]; ok {
			out[i] = v
			continue
		}
		out[i] = make([]float32, s.dims)
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int { return s.dims }

func (s *stubEmbedder) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Storage.Backend = "memory"
	cfg.Embedding.TextFields = []string{"title"}
	cfg.Embedding.MetadataFields = []string{"title", "genre"}
	cfg.Filters.RestrictsFields = []string{"genre"}
	return cfg
}

func libraryEmbedder() *stubEmbedder {
	return &stubEmbedder{
		dims: 3,
		vectors: map[string][]float32{
			"whale hunt":    {1, 0, 0},
			"desert planet": {0, 1, 0},
			"space opera":   {0, 0, 1},
			"ocean story":   {0.9, 0.1, 0},
		},
	}
}

func librarySource() *recordsource.SliceSource {
	return recordsource.NewSliceSource(
		model.Record{"id": "1", "title": "whale hunt", "genre": "classic"},
		model.Record{"id": "2", "title": "desert planet", "genre": "scifi"},
		model.Record{"id": "3", "title": "space opera", "genre": "scifi"},
		model.Record{"title": "no id here"},
		model.Record{"id": "5", "genre": "empty text"},
	)
}

func TestPipelineIngestAndSearch(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	metrics := &BasicMetricsCollector{}

	pipe, err := New(testConfig(),
		WithStore(store),
		WithEmbedder(libraryEmbedder()),
		WithMetricsCollector(metrics),
	)
	require.NoError(t, err)
	defer pipe.Close()

	result, err := pipe.IngestBatch(ctx, librarySource())
	require.NoError(t, err)
	assert.Equal(t, 5, result.Records)
	assert.Equal(t, 3, result.Entries)
	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, 1, result.Parts)
	assert.True(t, strings.HasPrefix(result.Manifest, "manifests/"))

	names, err := store.List(ctx, "entries/")
	require.NoError(t, err)
	require.Len(t, names, 1)
	assert.True(t, strings.HasSuffix(names[0], "-00000.jsonl"))

	t.Run("manifest records the run", func(t *testing.T) {
		m, err := manifest.Load(ctx, store, result.Manifest)
		require.NoError(t, err)
		assert.Equal(t, "json", m.Codec)
		require.Len(t, m.Parts, 1)
		assert.Equal(t, names[0], m.Parts[0].Name)
		assert.Equal(t, 3, m.TotalEntries())
	})

	t.Run("search ranks by dense score", func(t *testing.T) {
		neighbors, err := pipe.Search().Query("ocean story").KNN(2).Execute(ctx)
		require.NoError(t, err)
		require.Len(t, neighbors, 2)
		assert.Equal(t, "1", neighbors[0].ID)
		assert.Equal(t, "2", neighbors[1].ID)
	})

	t.Run("metadata backfilled from part files", func(t *testing.T) {
		neighbors, err := pipe.Search().Query("ocean story").KNN(1).Execute(ctx)
		require.NoError(t, err)
		require.Len(t, neighbors, 1)
		require.NotNil(t, neighbors[0].Metadata)
		assert.Equal(t, "whale hunt", neighbors[0].Metadata["title"])
		assert.Equal(t, "classic", neighbors[0].Metadata["genre"])
	})

	t.Run("restricts narrow results", func(t *testing.T) {
		neighbors, err := pipe.Search().
			Query("ocean story").
			Allow("genre", "scifi").
			KNN(3).
			Execute(ctx)
		require.NoError(t, err)
		require.Len(t, neighbors, 2)
		for _, n := range neighbors {
			assert.Contains(t, []string{"2", "3"}, n.ID)
		}
	})

	t.Run("metrics recorded", func(t *testing.T) {
		stats := metrics.GetStats()
		assert.Equal(t, int64(1), stats.IngestRuns)
		assert.Equal(t, int64(5), stats.IngestRecords)
		assert.Equal(t, int64(3), stats.IngestEntries)
		assert.Equal(t, int64(2), stats.IngestSkipped)
		assert.GreaterOrEqual(t, stats.SearchCount, int64(3))
		assert.Equal(t, int64(0), stats.SearchErrors)
	})
}

func TestPipelineIngestTimestampRestricts(t *testing.T) {
	ctx := context.Background()

	ingestOne := func(t *testing.T, timestampFields []string) model.IndexEntry {
		t.Helper()

		store := blobstore.NewMemoryStore()
		cfg := testConfig()
		cfg.Filters.NumericRestrictsFields = []string{"created_at"}
		cfg.Filters.TimestampFields = timestampFields

		pipe, err := New(cfg, WithStore(store), WithEmbedder(libraryEmbedder()))
		require.NoError(t, err)
		defer pipe.Close()

		result, err := pipe.IngestBatch(ctx, recordsource.NewSliceSource(
			model.Record{"id": "r1", "title": "whale hunt", "created_at": "2024-01-01 12:00:00"},
		))
		require.NoError(t, err)
		require.Equal(t, 1, result.Entries)

		names, err := store.List(ctx, "entries/")
		require.NoError(t, err)
		require.Len(t, names, 1)

		data, err := blobstore.ReadAll(ctx, store, names[0])
		require.NoError(t, err)

		var entry model.IndexEntry
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
		return entry
	}

	t.Run("unset config keeps the designated timestamp fields", func(t *testing.T) {
		entry := ingestOne(t, nil)

		require.Len(t, entry.NumericRestricts, 1)
		assert.Equal(t, "created_at", entry.NumericRestricts[0].Namespace)
		require.NotNil(t, entry.NumericRestricts[0].ValueInt)
		assert.Equal(t, int64(1704110400), *entry.NumericRestricts[0].ValueInt)
	})

	t.Run("explicit empty list disables timestamp parsing", func(t *testing.T) {
		entry := ingestOne(t, []string{})

		// Without timestamp parsing the date string has no numeric form
		// and the field is skipped.
		assert.Empty(t, entry.NumericRestricts)
	})
}

func TestPipelineStreamDelete(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	pipe, err := New(testConfig(), WithStore(store), WithEmbedder(libraryEmbedder()))
	require.NoError(t, err)
	defer pipe.Close()

	_, err = pipe.IngestBatch(ctx, librarySource())
	require.NoError(t, err)

	require.NoError(t, pipe.StreamDelete(ctx, []string{"1"}))

	t.Run("removed id no longer returned", func(t *testing.T) {
		neighbors, err := pipe.Search().Query("ocean story").KNN(3).Execute(ctx)
		require.NoError(t, err)
		require.Len(t, neighbors, 2)
		for _, n := range neighbors {
			assert.NotEqual(t, "1", n.ID)
		}
	})

	t.Run("deletion leaves a durable id list", func(t *testing.T) {
		names, err := store.List(ctx, "deletes/")
		require.NoError(t, err)
		require.Len(t, names, 1)

		data, err := blobstore.ReadAll(ctx, store, names[0])
		require.NoError(t, err)
		assert.Contains(t, string(data), `{"id":"1"}`)
	})

	t.Run("empty id list rejected", func(t *testing.T) {
		err := pipe.StreamDelete(ctx, nil)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestPipelineStreamUpsert(t *testing.T) {
	ctx := context.Background()

	pipe, err := New(testConfig(), WithStore(blobstore.NewMemoryStore()))
	require.NoError(t, err)
	defer pipe.Close()

	entries := []model.IndexEntry{
		{ID: "a", Dense: []float32{1, 0}},
		{ID: "b", Dense: []float32{0, 1}},
	}
	require.NoError(t, pipe.StreamUpsert(ctx, entries))

	t.Run("vector search needs no embedder", func(t *testing.T) {
		neighbors, err := pipe.Search().Vector([]float32{1, 0.2}).KNN(1).Execute(ctx)
		require.NoError(t, err)
		require.Len(t, neighbors, 1)
		assert.Equal(t, "a", neighbors[0].ID)
	})

	t.Run("empty entries rejected", func(t *testing.T) {
		err := pipe.StreamUpsert(ctx, nil)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("text search reports missing embedder", func(t *testing.T) {
		_, err := pipe.Search().Query("anything").Execute(ctx)
		assert.ErrorIs(t, err, ErrNoEmbedder)
	})

	t.Run("ingest reports missing embedder", func(t *testing.T) {
		_, err := pipe.IngestBatch(ctx, librarySource())
		assert.ErrorIs(t, err, ErrNoEmbedder)
	})
}

func TestPipelinePartSize(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	pipe, err := New(testConfig(),
		WithStore(store),
		WithEmbedder(libraryEmbedder()),
		WithPartSize(2),
	)
	require.NoError(t, err)
	defer pipe.Close()

	result, err := pipe.IngestBatch(ctx, librarySource())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Parts)

	names, err := store.List(ctx, "entries/")
	require.NoError(t, err)
	require.Len(t, names, 2)
	assert.True(t, strings.HasSuffix(names[0], "-00000.jsonl"))
	assert.True(t, strings.HasSuffix(names[1], "-00001.jsonl"))
}

func TestPipelineBatchUpdateFromPrefix(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	producer, err := New(testConfig(), WithStore(store), WithEmbedder(libraryEmbedder()))
	require.NoError(t, err)
	_, err = producer.IngestBatch(ctx, librarySource())
	require.NoError(t, err)
	require.NoError(t, producer.Close())

	// A fresh pipeline over the same store starts with an empty index and
	// rebuilds it from the stored part files.
	consumer, err := New(testConfig(), WithStore(store), WithEmbedder(libraryEmbedder()))
	require.NoError(t, err)
	defer consumer.Close()

	result, err := consumer.BatchUpdateFromPrefix(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Blobs)
	assert.Equal(t, 3, result.Entries)
	assert.Equal(t, 0, result.Skipped)

	neighbors, err := consumer.Search().Query("ocean story").KNN(1).Execute(ctx)
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, "1", neighbors[0].ID)

	t.Run("prefix without blobs is a no-op", func(t *testing.T) {
		result, err := consumer.BatchUpdateFromPrefix(ctx, "nothing-here/")
		require.NoError(t, err)
		assert.Zero(t, result.Blobs)
		assert.Zero(t, result.Entries)
	})
}

func TestPipelineBatchUpdateFromManifest(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	producer, err := New(testConfig(), WithStore(store), WithEmbedder(libraryEmbedder()))
	require.NoError(t, err)
	ingested, err := producer.IngestBatch(ctx, librarySource())
	require.NoError(t, err)
	require.NotEmpty(t, ingested.Manifest)
	require.NoError(t, producer.Close())

	consumer, err := New(testConfig(), WithStore(store), WithEmbedder(libraryEmbedder()))
	require.NoError(t, err)
	defer consumer.Close()

	result, err := consumer.BatchUpdateFromManifest(ctx, ingested.Manifest)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Blobs)
	assert.Equal(t, 3, result.Entries)
	assert.Equal(t, 0, result.Skipped)

	neighbors, err := consumer.Search().Query("ocean story").KNN(1).Execute(ctx)
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, "1", neighbors[0].ID)

	t.Run("empty manifest name rejected", func(t *testing.T) {
		_, err := consumer.BatchUpdateFromManifest(ctx, "")
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("missing manifest reported", func(t *testing.T) {
		_, err := consumer.BatchUpdateFromManifest(ctx, "manifests/nope.json")
		var ce *CollaboratorError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "blob store", ce.Stage)
	})

	t.Run("tampered part fails the checksum", func(t *testing.T) {
		m, err := manifest.Load(ctx, store, ingested.Manifest)
		require.NoError(t, err)
		require.NotEmpty(t, m.Parts)

		data, err := blobstore.ReadAll(ctx, store, m.Parts[0].Name)
		require.NoError(t, err)
		require.NoError(t, store.Put(ctx, m.Parts[0].Name, append(data, '\n')))

		_, err = consumer.BatchUpdateFromManifest(ctx, ingested.Manifest)
		require.Error(t, err)
		assert.ErrorContains(t, err, "checksum mismatch")
	})
}

func TestPipelineEmbedderBatching(t *testing.T) {
	ctx := context.Background()
	embedder := libraryEmbedder()

	cfg := testConfig()
	cfg.Embedding.BatchSize = 2

	pipe, err := New(cfg, WithStore(blobstore.NewMemoryStore()), WithEmbedder(embedder))
	require.NoError(t, err)
	defer pipe.Close()

	result, err := pipe.IngestBatch(ctx, librarySource())
	require.NoError(t, err)
	require.Equal(t, 3, result.Entries)

	// Three texts at batch size two means two embedding calls.
	assert.Equal(t, 2, embedder.callCount())
}

func TestPipelineEmbedderFailure(t *testing.T) {
	ctx := context.Background()
	embedder := libraryEmbedder()
	embedder.err = errors.New("quota exhausted")

	pipe, err := New(testConfig(), WithStore(blobstore.NewMemoryStore()), WithEmbedder(embedder))
	require.NoError(t, err)
	defer pipe.Close()

	_, err = pipe.IngestBatch(ctx, librarySource())
	require.Error(t, err)

	var ce *CollaboratorError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "embedder", ce.Stage)
	assert.ErrorIs(t, err, embedder.err)
}

func TestPipelineClose(t *testing.T) {
	ctx := context.Background()

	pipe, err := New(testConfig(), WithStore(blobstore.NewMemoryStore()), WithEmbedder(libraryEmbedder()))
	require.NoError(t, err)

	require.NoError(t, pipe.Close())
	require.NoError(t, pipe.Close())

	_, err = pipe.IngestBatch(ctx, librarySource())
	assert.ErrorIs(t, err, ErrClosed)

	_, err = pipe.Search().Query("ocean story").Execute(ctx)
	assert.ErrorIs(t, err, ErrClosed)

	err = pipe.StreamUpsert(ctx, []model.IndexEntry{{ID: "a", Dense: []float32{1}}})
	assert.ErrorIs(t, err, ErrClosed)

	t.Run("nil pipeline", func(t *testing.T) {
		var p *Pipeline
		assert.NoError(t, p.Close())
	})
}

func TestNewValidation(t *testing.T) {
	t.Run("invalid port", func(t *testing.T) {
		cfg := testConfig()
		cfg.Server.Port = 0
		_, err := New(cfg)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := testConfig()
		cfg.Storage.Backend = "zebra"
		_, err := New(cfg)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("nil config uses defaults", func(t *testing.T) {
		pipe, err := New(nil, WithStore(blobstore.NewMemoryStore()))
		require.NoError(t, err)
		require.NoError(t, pipe.Close())
	})

	t.Run("memory backend builds without options", func(t *testing.T) {
		pipe, err := New(testConfig())
		require.NoError(t, err)
		require.NoError(t, pipe.Close())
	})
}

func TestApplyOptions(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		o := applyOptions()
		assert.NotNil(t, o.logger)
		assert.NotNil(t, o.metricsCollector)
		assert.NotNil(t, o.codec)
		assert.Greater(t, o.workers, 0)
		assert.Equal(t, defaultPartSize, o.partSize)
	})

	t.Run("non-positive values fall back", func(t *testing.T) {
		o := applyOptions(WithWorkers(-1), WithPartSize(0))
		assert.Greater(t, o.workers, 0)
		assert.Equal(t, defaultPartSize, o.partSize)
	})
}
