package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/vecpipe/vecpipe"
	"github.com/vecpipe/vecpipe/model"
	"github.com/vecpipe/vecpipe/recordsource"
)

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// IngestRequest carries raw records for one batch ingest run.
type IngestRequest struct {
	Records []model.Record `json:"records"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Records) == 0 {
		s.respondWithError(w, http.StatusBadRequest, "records are required")
		return
	}

	result, err := s.pipeline.IngestBatch(r.Context(), recordsource.NewSliceSource(req.Records...))
	if err != nil {
		s.respondWithPipelineError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, result)
}

// FilterClause is one namespace filter in a search request.
type FilterClause struct {
	Namespace string   `json:"namespace"`
	Tokens    []string `json:"tokens"`
}

// SearchRequest is a search over the index.
type SearchRequest struct {
	Query  string         `json:"query,omitempty"`
	Vector []float32      `json:"vector,omitempty"`
	Hybrid bool           `json:"hybrid,omitempty"`
	K      int            `json:"k,omitempty"`
	Allow  []FilterClause `json:"allow,omitempty"`
	Deny   []FilterClause `json:"deny,omitempty"`
}

// SearchResponse carries the merged neighbors, best first.
type SearchResponse struct {
	Neighbors []model.Neighbor `json:"neighbors"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	builder := s.pipeline.Search()
	if req.Query != "" {
		builder.Query(req.Query)
	}
	if len(req.Vector) > 0 {
		builder.Vector(req.Vector)
	}
	if req.Hybrid {
		builder.Hybrid()
	}
	if req.K > 0 {
		builder.KNN(req.K)
	}
	for _, clause := range req.Allow {
		builder.Allow(clause.Namespace, clause.Tokens...)
	}
	for _, clause := range req.Deny {
		builder.Deny(clause.Namespace, clause.Tokens...)
	}

	neighbors, err := builder.Execute(r.Context())
	if err != nil {
		s.respondWithPipelineError(w, err)
		return
	}
	if neighbors == nil {
		neighbors = []model.Neighbor{}
	}

	s.respondWithJSON(w, http.StatusOK, SearchResponse{Neighbors: neighbors})
}

// UpsertRequest carries pre-built entries for a streaming upsert.
type UpsertRequest struct {
	Entries []model.IndexEntry `json:"entries"`
}

func (s *Server) handleUpsert(w http.ResponseWriter, r *http.Request) {
	var req UpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.pipeline.StreamUpsert(r.Context(), req.Entries); err != nil {
		s.respondWithPipelineError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, map[string]int{"upserted": len(req.Entries)})
}

// DeleteRequest names the ids to remove from the index.
type DeleteRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.pipeline.StreamDelete(r.Context(), req.IDs); err != nil {
		s.respondWithPipelineError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, map[string]int{"deleted": len(req.IDs)})
}

// BatchUpdateRequest selects the part files to replay into the index.
type BatchUpdateRequest struct {
	// Prefix narrows the replay. Empty replays the configured entries
	// prefix.
	Prefix string `json:"prefix,omitempty"`

	// Manifest replays one recorded ingest run with checksum verification
	// instead of scanning a prefix.
	Manifest string `json:"manifest,omitempty"`
}

func (s *Server) handleBatchUpdate(w http.ResponseWriter, r *http.Request) {
	var req BatchUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Prefix != "" && req.Manifest != "" {
		s.respondWithError(w, http.StatusBadRequest, "prefix and manifest are mutually exclusive")
		return
	}

	var (
		result vecpipe.BatchUpdateResult
		err    error
	)
	if req.Manifest != "" {
		result, err = s.pipeline.BatchUpdateFromManifest(r.Context(), req.Manifest)
	} else {
		result, err = s.pipeline.BatchUpdateFromPrefix(r.Context(), req.Prefix)
	}
	if err != nil {
		s.respondWithPipelineError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, result)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		s.respondWithError(w, http.StatusNotFound, "metrics collection is not enabled")
		return
	}

	s.respondWithJSON(w, http.StatusOK, s.metrics.GetStats())
}
