package vecpipe

import (
	"runtime"

	"github.com/vecpipe/vecpipe/blobstore"
	"github.com/vecpipe/vecpipe/codec"
	"github.com/vecpipe/vecpipe/embed"
	"github.com/vecpipe/vecpipe/resource"
	"github.com/vecpipe/vecpipe/vectorindex"
)

// defaultPartSize is the number of entries written per ingest part file.
const defaultPartSize = 1000

// options holds configuration options for a Pipeline.
type options struct {
	codec            codec.Codec
	logger           *Logger
	metricsCollector MetricsCollector
	index            vectorindex.Index
	embedder         embed.Embedder
	store            blobstore.Store
	controller       *resource.Controller
	workers          int
	partSize         int
}

// Option is a function type used to configure options.
type Option func(*options)

// applyOptions applies the given options on top of the defaults.
func applyOptions(opts ...Option) options {
	o := options{
		codec:            codec.Default,
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
		workers:          runtime.GOMAXPROCS(0),
		partSize:         defaultPartSize,
	}

	for _, opt := range opts {
		opt(&o)
	}

	if o.workers <= 0 {
		o.workers = runtime.GOMAXPROCS(0)
	}
	if o.partSize <= 0 {
		o.partSize = defaultPartSize
	}

	return o
}

// WithLogger returns an Option to set a custom logger.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetricsCollector returns an Option to set a custom metrics collector.
func WithMetricsCollector(collector MetricsCollector) Option {
	return func(o *options) {
		if collector != nil {
			o.metricsCollector = collector
		}
	}
}

// WithCodec returns an Option to set the entry wire codec.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithIndex returns an Option to supply the vector index, replacing the
// one the configuration would build.
func WithIndex(index vectorindex.Index) Option {
	return func(o *options) {
		o.index = index
	}
}

// WithEmbedder returns an Option to supply the dense embedder, replacing
// the one the configuration would build.
func WithEmbedder(embedder embed.Embedder) Option {
	return func(o *options) {
		o.embedder = embedder
	}
}

// WithStore returns an Option to supply the blob store, replacing the one
// the configuration would build.
func WithStore(store blobstore.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithController returns an Option to supply the resource controller.
func WithController(controller *resource.Controller) Option {
	return func(o *options) {
		o.controller = controller
	}
}

// WithWorkers returns an Option to set the projection worker count.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithPartSize returns an Option to set the entry count per part file.
func WithPartSize(n int) Option {
	return func(o *options) {
		o.partSize = n
	}
}
