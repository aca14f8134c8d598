// Package server exposes a Pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/vecpipe/vecpipe"
	"github.com/vecpipe/vecpipe/config"
)

// Config holds server configuration.
type Config struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// FromConfig maps the pipeline configuration onto server settings.
func FromConfig(cfg *config.Config) Config {
	return Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}
}

// Options configures optional server collaborators.
type Options struct {
	// Logger receives request logs. Defaults to a noop logger.
	Logger *vecpipe.Logger

	// Metrics, when set, is exposed on the stats endpoint.
	Metrics *vecpipe.BasicMetricsCollector
}

// Server is the REST front of a Pipeline.
type Server struct {
	pipeline   *vecpipe.Pipeline
	router     *mux.Router
	httpServer *http.Server
	config     Config
	logger     *vecpipe.Logger
	metrics    *vecpipe.BasicMetricsCollector
}

// New creates a server around pipeline.
func New(pipeline *vecpipe.Pipeline, cfg Config, optFns ...func(o *Options)) *Server {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = vecpipe.NoopLogger()
	}

	s := &Server{
		pipeline: pipeline,
		config:   cfg,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()

	s.router.Use(s.loggingMiddleware)
	s.router.Use(jsonContentTypeMiddleware)

	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")

	s.router.HandleFunc("/v1/ingest", s.handleIngest).Methods("POST")
	s.router.HandleFunc("/v1/search", s.handleSearch).Methods("POST")

	s.router.HandleFunc("/v1/entries:upsert", s.handleUpsert).Methods("POST")
	s.router.HandleFunc("/v1/entries:delete", s.handleDelete).Methods("POST")

	s.router.HandleFunc("/v1/batch-update", s.handleBatchUpdate).Methods("POST")

	s.router.HandleFunc("/metrics", s.handleStats).Methods("GET")
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("server listening", "addr", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.DebugContext(r.Context(), "request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// respondWithError writes a JSON error body with the given status.
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithPipelineError maps a pipeline error onto an HTTP status.
func (s *Server) respondWithPipelineError(w http.ResponseWriter, err error) {
	s.respondWithError(w, statusFor(err), err.Error())
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Error marshaling JSON"}`))
		return
	}

	w.WriteHeader(code)
	w.Write(response)
}

// statusFor maps the pipeline error taxonomy onto HTTP statuses: caller
// mistakes are 4xx, collaborator failures are 502, everything else 500.
func statusFor(err error) int {
	var ce *vecpipe.CollaboratorError

	switch {
	case errors.Is(err, vecpipe.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, vecpipe.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, vecpipe.ErrNoEmbedder):
		return http.StatusNotImplemented
	case errors.Is(err, vecpipe.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.As(err, &ce):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
