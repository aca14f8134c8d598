// Package merge turns raw vector-search responses into enriched results.
//
// A search call runs three stages: encode the query (dense from text or a
// caller vector, optionally plus a sparse lexical encoding), normalize the
// heterogeneous neighbor shapes the service returns, and backfill missing
// metadata from the entry store. Score ordering conventions are preserved
// through all three stages, never renormalized.
package merge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vecpipe/vecpipe/blobstore"
	"github.com/vecpipe/vecpipe/datapoint"
	"github.com/vecpipe/vecpipe/embed"
	"github.com/vecpipe/vecpipe/lexical/bm25"
	"github.com/vecpipe/vecpipe/model"
)

// maxLineSize bounds a single metadata-store line, matching the part
// writer's limit.
const maxLineSize = 16 << 20

var (
	// ErrMixedQueryInput is returned when a query supplies both text and
	// a raw vector.
	ErrMixedQueryInput = errors.New("query text and query vector are mutually exclusive")

	// ErrEmptyQueryInput is returned when a query supplies neither text
	// nor a raw vector.
	ErrEmptyQueryInput = errors.New("query needs text or a vector")

	// ErrNoEmbedder is returned for text queries on a Merger built
	// without an embedder.
	ErrNoEmbedder = errors.New("text queries need an embedder")

	// ErrNoSparseEncoder is returned for hybrid queries on a Merger
	// built without a sparse encoder.
	ErrNoSparseEncoder = errors.New("hybrid queries need a sparse encoder")

	// ErrHybridNeedsText is returned when hybrid mode is requested for a
	// raw-vector query; the sparse encoding is derived from query text.
	ErrHybridNeedsText = errors.New("hybrid queries need query text")
)

// Options configures a Merger.
type Options struct {
	// Embedder turns query text into a dense vector. Required only for
	// text queries.
	Embedder embed.Embedder

	// SparseEncoder produces the lexical query vector for hybrid mode.
	SparseEncoder *bm25.Encoder

	// MetadataStore holds the line-delimited entry blobs scanned during
	// metadata backfill. Nil disables backfill.
	MetadataStore blobstore.Store

	// MetadataPrefix narrows the backfill scan to blobs under a prefix.
	MetadataPrefix string

	// Parallelism caps concurrent blob scans during backfill.
	Parallelism int
}

// DefaultOptions are the options used when none are given.
var DefaultOptions = Options{
	Parallelism: 4,
}

// Merger encodes queries and merges raw neighbor results with out-of-band
// metadata. It holds no mutable state and is safe for concurrent use.
type Merger struct {
	embedder    embed.Embedder
	sparse      *bm25.Encoder
	store       blobstore.Store
	prefix      string
	parallelism int
}

// New creates a Merger.
func New(optFns ...func(o *Options)) *Merger {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultOptions.Parallelism
	}

	return &Merger{
		embedder:    opts.Embedder,
		sparse:      opts.SparseEncoder,
		store:       opts.MetadataStore,
		prefix:      opts.MetadataPrefix,
		parallelism: opts.Parallelism,
	}
}

// QueryInput is a caller-facing search request before encoding.
type QueryInput struct {
	// Text is query text to embed. Mutually exclusive with Vector.
	Text string

	// Vector is a caller-supplied dense query vector.
	Vector []float32

	// Hybrid adds a sparse lexical encoding of Text to the query.
	Hybrid bool

	// TopK is the neighbor count to request.
	TopK int

	// Restricts filter candidates by namespace tokens.
	Restricts []model.Restriction
}

// EncodeQuery validates the input and builds the service query. Malformed
// input is rejected here, before any collaborator call.
func (m *Merger) EncodeQuery(ctx context.Context, in QueryInput) (model.Query, error) {
	hasText := in.Text != ""
	hasVector := len(in.Vector) > 0

	switch {
	case hasText && hasVector:
		return model.Query{}, ErrMixedQueryInput
	case !hasText && !hasVector:
		return model.Query{}, ErrEmptyQueryInput
	}

	if in.Hybrid {
		if !hasText {
			return model.Query{}, ErrHybridNeedsText
		}
		if m.sparse == nil {
			return model.Query{}, ErrNoSparseEncoder
		}
	}

	dense := in.Vector
	if hasText {
		if m.embedder == nil {
			return model.Query{}, ErrNoEmbedder
		}

		vectors, err := m.embedder.EmbedTexts(ctx, []string{in.Text})
		if err != nil {
			return model.Query{}, fmt.Errorf("embed query: %w", err)
		}
		if len(vectors) != 1 {
			return model.Query{}, fmt.Errorf("embedder returned %d vectors for one text", len(vectors))
		}
		dense = vectors[0]
	}

	q := model.Query{
		Dense:     dense,
		TopK:      in.TopK,
		Restricts: in.Restricts,
	}

	if in.Hybrid {
		sv := m.sparse.EncodeQuery(in.Text)
		if !sv.IsEmpty() {
			q.Sparse = &sv
		}
	}

	return q, nil
}

// BackfillStats reports what a metadata backfill pass did.
type BackfillStats struct {
	// Missing is the number of distinct ids that lacked metadata going in.
	Missing int

	// Filled is the number of neighbors that gained metadata.
	Filled int

	// Skipped counts malformed store lines passed over during the scan.
	Skipped int

	// Blobs is the number of store blobs opened before the scan stopped.
	Blobs int
}

// Merge normalizes raw neighbor records and backfills missing metadata.
func (m *Merger) Merge(ctx context.Context, raws []json.RawMessage) ([]model.Neighbor, BackfillStats, error) {
	neighbors, err := DecodeNeighbors(raws)
	if err != nil {
		return nil, BackfillStats{}, err
	}

	stats, err := m.Backfill(ctx, neighbors)
	if err != nil {
		return nil, stats, err
	}

	return neighbors, stats, nil
}

// Backfill fills nil metadata on neighbors from the metadata store,
// mutating the slice in place. Store blobs are scanned in parallel and the
// scan stops as soon as every missing id has been found. Metadata already
// present on a neighbor is never overwritten, and ids absent from the
// store keep nil metadata.
func (m *Merger) Backfill(ctx context.Context, neighbors []model.Neighbor) (BackfillStats, error) {
	var stats BackfillStats

	missing := make(map[string]bool)
	for i := range neighbors {
		if len(neighbors[i].Metadata) == 0 {
			missing[neighbors[i].ID] = true
		}
	}
	stats.Missing = len(missing)

	if len(missing) == 0 || m.store == nil {
		return stats, nil
	}

	names, err := m.store.List(ctx, m.prefix)
	if err != nil {
		return stats, fmt.Errorf("list metadata blobs: %w", err)
	}
	if len(names) == 0 {
		return stats, nil
	}

	// Cancelling scanCtx once every id is found stops the remaining
	// shard scans without failing the group.
	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(scanCtx)
	g.SetLimit(m.parallelism)

	var (
		mu        sync.Mutex
		found     = make(map[string]map[string]any, len(missing))
		remaining = len(missing)
		skipped   int
		opened    int
	)

	for _, name := range names {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}

			rc, err := blobstore.OpenReader(gctx, m.store, name)
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("open %s: %w", name, err)
			}
			defer rc.Close()

			mu.Lock()
			opened++
			mu.Unlock()

			scanner := bufio.NewScanner(rc)
			scanner.Buffer(make([]byte, 64*1024), maxLineSize)

			for scanner.Scan() {
				if gctx.Err() != nil {
					return nil
				}

				line := bytes.TrimSpace(scanner.Bytes())
				if len(line) == 0 {
					continue
				}

				id, md, ok := decodeBackfillLine(line)
				if !ok {
					mu.Lock()
					skipped++
					mu.Unlock()
					continue
				}
				if len(md) == 0 {
					continue
				}

				mu.Lock()
				if missing[id] && found[id] == nil {
					found[id] = md
					remaining--
					if remaining == 0 {
						mu.Unlock()
						cancel()
						return nil
					}
				}
				mu.Unlock()
			}

			if err := scanner.Err(); err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("scan %s: %w", name, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return stats, err
	}

	for i := range neighbors {
		if len(neighbors[i].Metadata) != 0 {
			continue
		}
		if md, ok := found[neighbors[i].ID]; ok {
			neighbors[i].Metadata = md
			stats.Filled++
		}
	}

	stats.Skipped = skipped
	stats.Blobs = opened
	return stats, nil
}

// backfillRecord is the tolerant shape of one metadata-store line. Lines
// are usually full index entries, but only the id and metadata matter
// here, and metadata-only records are accepted.
type backfillRecord struct {
	ID          json.RawMessage `json:"id"`
	Metadata    map[string]any  `json:"embedding_metadata"`
	MetadataAlt map[string]any  `json:"metadata"`
}

func decodeBackfillLine(line []byte) (string, map[string]any, bool) {
	var rec backfillRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return "", nil, false
	}

	id, err := datapoint.DecodeID(rec.ID)
	if err != nil {
		return "", nil, false
	}

	md := rec.Metadata
	if md == nil {
		md = rec.MetadataAlt
	}
	return id, md, true
}
