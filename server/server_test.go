package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vecpipe/vecpipe"
	"github.com/vecpipe/vecpipe/blobstore"
	"github.com/vecpipe/vecpipe/config"
	"github.com/vecpipe/vecpipe/model"
)

// axisEmbedder maps known texts onto fixed vectors.
type axisEmbedder struct {
	vectors map[string][]float32
}

func (e *axisEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := e.vectors[text]; ok {
			out[i] = v
			continue
		}
		out[i] = []float32{0, 0, 0}
	}
	return out, nil
}

func (e *axisEmbedder) Dimensions() int { return 3 }

func testPipeline(t *testing.T, opts ...vecpipe.Option) *vecpipe.Pipeline {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Storage.Backend = "memory"
	cfg.Embedding.TextFields = []string{"title"}
	cfg.Embedding.MetadataFields = []string{"title"}
	cfg.Filters.RestrictsFields = []string{"genre"}

	embedder := &axisEmbedder{
		vectors: map[string][]float32{
			"whale hunt":    {1, 0, 0},
			"desert planet": {0, 1, 0},
			"ocean story":   {0.9, 0.1, 0},
		},
	}

	base := []vecpipe.Option{
		vecpipe.WithStore(blobstore.NewMemoryStore()),
		vecpipe.WithEmbedder(embedder),
	}
	pipe, err := vecpipe.New(cfg, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { pipe.Close() })

	return pipe
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(data)
	} else {
		reader = &bytes.Buffer{}
	}

	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)
	return rr
}

func ingestBody() IngestRequest {
	return IngestRequest{
		Records: []model.Record{
			{"id": "1", "title": "whale hunt", "genre": "classic"},
			{"id": "2", "title": "desert planet", "genre": "scifi"},
			{"title": "no id"},
		},
	}
}

func TestServerEndpoints(t *testing.T) {
	metrics := &vecpipe.BasicMetricsCollector{}
	pipe := testPipeline(t, vecpipe.WithMetricsCollector(metrics))
	srv := New(pipe, DefaultConfig(), func(o *Options) {
		o.Metrics = metrics
	})

	t.Run("health", func(t *testing.T) {
		rr := doRequest(t, srv, "GET", "/healthz", nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "healthy", resp.Status)
	})

	t.Run("ingest", func(t *testing.T) {
		rr := doRequest(t, srv, "POST", "/v1/ingest", ingestBody())
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var result vecpipe.IngestResult
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
		assert.Equal(t, 3, result.Records)
		assert.Equal(t, 2, result.Entries)
		assert.Equal(t, 1, result.Skipped)
	})

	t.Run("ingest without records", func(t *testing.T) {
		rr := doRequest(t, srv, "POST", "/v1/ingest", IngestRequest{})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("search by text", func(t *testing.T) {
		rr := doRequest(t, srv, "POST", "/v1/search", SearchRequest{Query: "ocean story", K: 1})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var resp SearchResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.Len(t, resp.Neighbors, 1)
		assert.Equal(t, "1", resp.Neighbors[0].ID)
	})

	t.Run("search with filter", func(t *testing.T) {
		rr := doRequest(t, srv, "POST", "/v1/search", SearchRequest{
			Query: "ocean story",
			K:     5,
			Allow: []FilterClause{{Namespace: "genre", Tokens: []string{"scifi"}}},
		})
		require.Equal(t, http.StatusOK, rr.Code)

		var resp SearchResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.Len(t, resp.Neighbors, 1)
		assert.Equal(t, "2", resp.Neighbors[0].ID)
	})

	t.Run("search rejects mixed input", func(t *testing.T) {
		rr := doRequest(t, srv, "POST", "/v1/search", SearchRequest{
			Query:  "ocean story",
			Vector: []float32{1, 0, 0},
		})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("upsert and delete entries", func(t *testing.T) {
		rr := doRequest(t, srv, "POST", "/v1/entries:upsert", UpsertRequest{
			Entries: []model.IndexEntry{{ID: "99", Dense: []float32{0, 0, 1}}},
		})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		rr = doRequest(t, srv, "POST", "/v1/search", SearchRequest{Vector: []float32{0, 0, 1}, K: 1})
		require.Equal(t, http.StatusOK, rr.Code)
		var resp SearchResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.Len(t, resp.Neighbors, 1)
		assert.Equal(t, "99", resp.Neighbors[0].ID)

		rr = doRequest(t, srv, "POST", "/v1/entries:delete", DeleteRequest{IDs: []string{"99"}})
		require.Equal(t, http.StatusOK, rr.Code)

		rr = doRequest(t, srv, "POST", "/v1/search", SearchRequest{Vector: []float32{0, 0, 1}, K: 5})
		require.Equal(t, http.StatusOK, rr.Code)
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		for _, n := range resp.Neighbors {
			assert.NotEqual(t, "99", n.ID)
		}
	})

	t.Run("delete without ids", func(t *testing.T) {
		rr := doRequest(t, srv, "POST", "/v1/entries:delete", DeleteRequest{})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("stats", func(t *testing.T) {
		rr := doRequest(t, srv, "GET", "/metrics", nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var stats vecpipe.BasicMetricsStats
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
		assert.GreaterOrEqual(t, stats.IngestRuns, int64(1))
	})

	t.Run("wrong method", func(t *testing.T) {
		rr := doRequest(t, srv, "GET", "/v1/ingest", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	})

	t.Run("content type set", func(t *testing.T) {
		rr := doRequest(t, srv, "GET", "/healthz", nil)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	})
}

func TestServerBatchUpdate(t *testing.T) {
	store := blobstore.NewMemoryStore()

	producer := testPipeline(t, vecpipe.WithStore(store))
	producerSrv := New(producer, DefaultConfig())
	rr := doRequest(t, producerSrv, "POST", "/v1/ingest", ingestBody())
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var ingested vecpipe.IngestResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ingested))
	require.NotEmpty(t, ingested.Manifest)

	// A fresh pipeline over the same store, rebuilt from the part files.
	consumer := testPipeline(t, vecpipe.WithStore(store))
	consumerSrv := New(consumer, DefaultConfig())

	rr = doRequest(t, consumerSrv, "POST", "/v1/batch-update", BatchUpdateRequest{})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var result vecpipe.BatchUpdateResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Blobs)
	assert.Equal(t, 2, result.Entries)

	rr = doRequest(t, consumerSrv, "POST", "/v1/search", SearchRequest{Query: "ocean story", K: 1})
	require.Equal(t, http.StatusOK, rr.Code)

	t.Run("by manifest", func(t *testing.T) {
		replayer := testPipeline(t, vecpipe.WithStore(store))
		replayerSrv := New(replayer, DefaultConfig())

		rr := doRequest(t, replayerSrv, "POST", "/v1/batch-update", BatchUpdateRequest{Manifest: ingested.Manifest})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var result vecpipe.BatchUpdateResult
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
		assert.Equal(t, 1, result.Blobs)
		assert.Equal(t, 2, result.Entries)
	})

	t.Run("prefix and manifest together", func(t *testing.T) {
		rr := doRequest(t, consumerSrv, "POST", "/v1/batch-update", BatchUpdateRequest{
			Prefix:   "entries/",
			Manifest: ingested.Manifest,
		})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestServerWithoutEmbedder(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Backend = "memory"
	cfg.Embedding.TextFields = []string{"title"}

	pipe, err := vecpipe.New(cfg, vecpipe.WithStore(blobstore.NewMemoryStore()))
	require.NoError(t, err)
	t.Cleanup(func() { pipe.Close() })

	srv := New(pipe, DefaultConfig())

	rr := doRequest(t, srv, "POST", "/v1/search", SearchRequest{Query: "anything"})
	assert.Equal(t, http.StatusNotImplemented, rr.Code)
}

func TestServerStatsDisabled(t *testing.T) {
	srv := New(testPipeline(t), DefaultConfig())

	rr := doRequest(t, srv, "GET", "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(vecpipe.ErrInvalidInput))
	assert.Equal(t, http.StatusNotFound, statusFor(vecpipe.ErrNotFound))
	assert.Equal(t, http.StatusNotImplemented, statusFor(vecpipe.ErrNoEmbedder))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(vecpipe.ErrClosed))
	assert.Equal(t, http.StatusBadGateway, statusFor(&vecpipe.CollaboratorError{Stage: "embedder"}))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}
