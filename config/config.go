// Package config loads and validates the pipeline configuration.
//
// Configuration lives in a single YAML file; values missing from the file
// keep their defaults, and a handful of environment variables override the
// file for deploy-time secrets and addresses.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vecpipe/vecpipe/blobstore"
	"github.com/vecpipe/vecpipe/distance"
)

// Config is the complete pipeline configuration.
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server" json:"server"`

	// Storage backend for entry and metadata blobs
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Record-to-filter projection
	Filters FiltersConfig `yaml:"filters" json:"filters"`

	// Dense embedding configuration
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`

	// Sparse lexical encoding configuration
	Sparse SparseConfig `yaml:"sparse" json:"sparse"`

	// Identifiers of the deployed vector-search resources
	ResourceNames ResourceNamesConfig `yaml:"resource_names" json:"resource_names"`

	// Blob name prefixes for batch output
	Paths PathsConfig `yaml:"paths" json:"paths"`

	// Search behavior
	Search SearchConfig `yaml:"search" json:"search"`

	// Throttling of collaborator calls and I/O
	Limits LimitsConfig `yaml:"limits" json:"limits"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port" json:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// StorageConfig selects and parameterizes the blob store backend.
type StorageConfig struct {
	// Backend is one of "memory", "local", "s3", "minio".
	Backend string `yaml:"backend" json:"backend"`

	// Root is the base directory for the local backend.
	Root string `yaml:"root" json:"root"`

	// Bucket is the bucket name for the s3 and minio backends.
	Bucket string `yaml:"bucket" json:"bucket"`

	// Region is the AWS region for the s3 backend.
	Region string `yaml:"region" json:"region"`

	// Endpoint is the server address for the minio backend.
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// Compression is one of "none", "lz4", "zstd".
	Compression string `yaml:"compression" json:"compression"`

	// CacheMB bounds the in-memory cache of decompressed blob payloads.
	// Zero disables caching.
	CacheMB int `yaml:"cache_mb" json:"cache_mb"`
}

// FiltersConfig names the record fields projected into filter clauses.
type FiltersConfig struct {
	RestrictsFields        []string `yaml:"restricts_fields" json:"restricts_fields"`
	NumericRestrictsFields []string `yaml:"numeric_restricts_fields" json:"numeric_restricts_fields"`
	TimestampFields        []string `yaml:"timestamp_fields" json:"timestamp_fields"`
}

// EmbeddingConfig configures the dense embedding stage.
type EmbeddingConfig struct {
	// TextFields are concatenated into the embedding input text.
	TextFields []string `yaml:"text_fields" json:"text_fields"`

	// MetadataFields are copied into the entry metadata.
	MetadataFields []string `yaml:"metadata_fields" json:"metadata_fields"`

	// ModelName is the embedding model identifier.
	ModelName string `yaml:"model_name" json:"model_name"`

	// OutputDimensionality is the expected vector width.
	OutputDimensionality int `yaml:"output_dimensionality" json:"output_dimensionality"`

	// BatchSize caps the texts sent per embedding call.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// APIKey authenticates against the embedding service. Usually left
	// empty here and supplied via OPENAI_API_KEY.
	APIKey string `yaml:"api_key" json:"-"`
}

// SparseConfig configures the lexical encoder.
type SparseConfig struct {
	BucketCount int     `yaml:"bucket_count" json:"bucket_count"`
	K1          float64 `yaml:"k1" json:"k1"`
	B           float64 `yaml:"b" json:"b"`
}

// ResourceNamesConfig identifies the deployed vector-search resources.
type ResourceNamesConfig struct {
	IndexID         string `yaml:"index_id" json:"index_id"`
	EndpointID      string `yaml:"endpoint_id" json:"endpoint_id"`
	DeployedIndexID string `yaml:"deployed_index_id" json:"deployed_index_id"`
}

// PathsConfig holds the blob name prefixes for batch output.
type PathsConfig struct {
	// EntriesPrefix is where ingest part files land.
	EntriesPrefix string `yaml:"entries_prefix" json:"entries_prefix"`

	// DeletePrefix is where deletion id lists land.
	DeletePrefix string `yaml:"delete_prefix" json:"delete_prefix"`

	// MetadataPrefix is scanned during search metadata backfill.
	MetadataPrefix string `yaml:"metadata_prefix" json:"metadata_prefix"`

	// ManifestPrefix is where ingest run manifests land. Kept apart from
	// EntriesPrefix so part scans never pick up manifest blobs.
	ManifestPrefix string `yaml:"manifest_prefix" json:"manifest_prefix"`
}

// SearchConfig controls query scoring and defaults.
type SearchConfig struct {
	// Metric is one of "dot", "cosine", "l2".
	Metric string `yaml:"metric" json:"metric"`

	// DefaultTopK is the neighbor count when a query does not set one.
	DefaultTopK int `yaml:"default_top_k" json:"default_top_k"`

	// BackfillParallelism caps concurrent metadata blob scans.
	BackfillParallelism int `yaml:"backfill_parallelism" json:"backfill_parallelism"`
}

// LimitsConfig throttles collaborator calls and blob I/O.
type LimitsConfig struct {
	MaxConcurrentCalls int     `yaml:"max_concurrent_calls" json:"max_concurrent_calls"`
	CallsPerSec        float64 `yaml:"calls_per_sec" json:"calls_per_sec"`
	IOLimitBytesPerSec int64   `yaml:"io_limit_bytes_per_sec" json:"io_limit_bytes_per_sec"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `yaml:"level" json:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format" json:"format"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Backend:     "local",
			Root:        "data",
			Compression: "none",
		},
		Filters: FiltersConfig{
			TimestampFields: []string{"created_at", "updated_at"},
		},
		Embedding: EmbeddingConfig{
			ModelName:            "text-embedding-3-small",
			OutputDimensionality: 768,
			BatchSize:            32,
		},
		Sparse: SparseConfig{
			BucketCount: 50000,
			K1:          1.2,
			B:           0.75,
		},
		Paths: PathsConfig{
			EntriesPrefix:  "entries/",
			DeletePrefix:   "deletes/",
			MetadataPrefix: "entries/",
			ManifestPrefix: "manifests/",
		},
		Search: SearchConfig{
			Metric:              "dot",
			DefaultTopK:         10,
			BackfillParallelism: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads the configuration file at path, applies environment
// overrides, and validates the result. A missing file is not an error;
// defaults apply.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := loadConfigFromFile(path, cfg); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
			}
		}
	}

	loadConfigFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadConfigFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func loadConfigFromEnv(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("VECPIPE_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("VECPIPE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("VECPIPE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", c.Server.Port)
	}

	switch c.Storage.Backend {
	case "memory", "local":
	case "s3", "minio":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage backend %q requires a bucket", c.Storage.Backend)
		}
	default:
		return fmt.Errorf("unknown storage backend: %s", c.Storage.Backend)
	}

	if _, err := blobstore.ParseCompression(c.Storage.Compression); err != nil {
		return err
	}

	if c.Storage.CacheMB < 0 {
		return fmt.Errorf("storage cache_mb must be non-negative, got %d", c.Storage.CacheMB)
	}

	if _, err := distance.ParseMetric(c.Search.Metric); err != nil {
		return err
	}

	if c.Sparse.BucketCount <= 0 {
		return fmt.Errorf("sparse bucket_count must be positive, got %d", c.Sparse.BucketCount)
	}
	if c.Sparse.K1 <= 0 {
		return fmt.Errorf("sparse k1 must be positive, got %g", c.Sparse.K1)
	}
	if c.Sparse.B < 0 || c.Sparse.B > 1 {
		return fmt.Errorf("sparse b must be in [0, 1], got %g", c.Sparse.B)
	}

	if c.Embedding.OutputDimensionality <= 0 {
		return fmt.Errorf("embedding output_dimensionality must be positive, got %d", c.Embedding.OutputDimensionality)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding batch_size must be positive, got %d", c.Embedding.BatchSize)
	}

	if c.Search.DefaultTopK <= 0 {
		return fmt.Errorf("search default_top_k must be positive, got %d", c.Search.DefaultTopK)
	}

	return nil
}

// Metric returns the parsed distance metric. Call Validate first.
func (c *Config) Metric() distance.Metric {
	m, err := distance.ParseMetric(c.Search.Metric)
	if err != nil {
		return distance.MetricDot
	}
	return m
}

// Compression returns the parsed compression type. Call Validate first.
func (c *Config) Compression() blobstore.CompressionType {
	ct, err := blobstore.ParseCompression(c.Storage.Compression)
	if err != nil {
		return blobstore.CompressionNone
	}
	return ct
}

// UpdateResourceNames patches the resource id fields in the config file at
// path, leaving every other field untouched. Empty arguments keep the value
// already in the file. The file is created if missing.
func UpdateResourceNames(path string, names ResourceNamesConfig) error {
	raw := map[string]any{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return err
	}

	section, _ := raw["resource_names"].(map[string]any)
	if section == nil {
		section = map[string]any{}
	}

	if names.IndexID != "" {
		section["index_id"] = names.IndexID
	}
	if names.EndpointID != "" {
		section["endpoint_id"] = names.EndpointID
	}
	if names.DeployedIndexID != "" {
		section["deployed_index_id"] = names.DeployedIndexID
	}
	raw["resource_names"] = section

	out, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return os.WriteFile(path, out, 0o644)
}
