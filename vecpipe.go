// Package vecpipe feeds a vector-search index from batch record sources.
//
// The pipeline owns the full path from raw records to query results:
// records are projected into embedding text, display metadata, and filter
// clauses; texts are embedded densely and encoded sparsely; the resulting
// entries are written to a blob store as line-delimited part files and
// pushed to the index. Searches run the same path in reverse: the query is
// encoded, the index is called, and the raw neighbor payloads are merged
// with metadata backfilled from the stored parts.
//
// Basic usage:
//
//	cfg := config.DefaultConfig()
//	pipe, err := vecpipe.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer pipe.Close()
//
//	result, err := pipe.IngestBatch(ctx, source)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	neighbors, err := pipe.Search().Query("novels about the sea").KNN(5).Execute(ctx)
package vecpipe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/vecpipe/vecpipe/blobstore"
	miniostore "github.com/vecpipe/vecpipe/blobstore/minio"
	s3store "github.com/vecpipe/vecpipe/blobstore/s3"
	"github.com/vecpipe/vecpipe/cache"
	"github.com/vecpipe/vecpipe/codec"
	"github.com/vecpipe/vecpipe/config"
	"github.com/vecpipe/vecpipe/datapoint"
	"github.com/vecpipe/vecpipe/distance"
	"github.com/vecpipe/vecpipe/embed"
	"github.com/vecpipe/vecpipe/embed/openai"
	"github.com/vecpipe/vecpipe/engine"
	"github.com/vecpipe/vecpipe/internal/hash"
	"github.com/vecpipe/vecpipe/lexical/bm25"
	"github.com/vecpipe/vecpipe/manifest"
	"github.com/vecpipe/vecpipe/merge"
	"github.com/vecpipe/vecpipe/model"
	"github.com/vecpipe/vecpipe/project"
	"github.com/vecpipe/vecpipe/recordsource"
	"github.com/vecpipe/vecpipe/resource"
	"github.com/vecpipe/vecpipe/vectorindex"
	"github.com/vecpipe/vecpipe/vectorindex/bruteforce"
)

// Pipeline coordinates projection, embedding, blob storage, and the vector
// index behind a single facade. All methods are safe for concurrent use.
type Pipeline struct {
	projector *project.Projector
	encoder   *bm25.Encoder
	embedder  embed.Embedder
	index     vectorindex.Index
	merger    *merge.Merger
	store     blobstore.Store
	codec     codec.Codec
	pool      *engine.WorkerPool
	rc        *resource.Controller
	metrics   MetricsCollector
	logger    *Logger

	entriesPrefix  string
	deletePrefix   string
	manifestPrefix string
	batchSize      int
	partSize       int
	topK           int
	normalize      bool

	closed atomic.Bool
}

// New creates a Pipeline from cfg. A nil cfg uses DefaultConfig. Options
// override the collaborators the configuration would otherwise build,
// which is how tests substitute in-memory fakes.
func New(cfg *config.Config, optFns ...Option) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	o := applyOptions(optFns...)

	encoder, err := bm25.New(cfg.Sparse.BucketCount, func(bo *bm25.Options) {
		bo.K1 = cfg.Sparse.K1
		bo.B = cfg.Sparse.B
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	projector := project.New(func(po *project.Options) {
		po.TextFields = cfg.Embedding.TextFields
		po.MetadataFields = cfg.Embedding.MetadataFields
		po.RestrictFields = cfg.Filters.RestrictsFields
		po.NumericRestrictFields = cfg.Filters.NumericRestrictsFields
		// Nil keeps the projector's designated timestamp fields; an
		// explicit empty list disables timestamp parsing.
		if cfg.Filters.TimestampFields != nil {
			po.TimestampFields = cfg.Filters.TimestampFields
		}
	})

	store := o.store
	if store == nil {
		store, err = buildStore(cfg)
		if err != nil {
			return nil, err
		}
	}

	embedder := o.embedder
	if embedder == nil && cfg.Embedding.APIKey != "" {
		embedder = openai.New(cfg.Embedding.APIKey, func(eo *openai.Options) {
			eo.Model = cfg.Embedding.ModelName
			eo.Dimensions = cfg.Embedding.OutputDimensionality
		})
	}

	index := o.index
	if index == nil {
		bf, err := bruteforce.New(func(bo *bruteforce.Options) {
			bo.Metric = cfg.Metric()
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		index = bf
	}

	merger := merge.New(func(mo *merge.Options) {
		mo.Embedder = embedder
		mo.SparseEncoder = encoder
		mo.MetadataStore = store
		mo.MetadataPrefix = cfg.Paths.MetadataPrefix
		mo.Parallelism = cfg.Search.BackfillParallelism
	})

	rc := o.controller
	if rc == nil && (cfg.Limits.MaxConcurrentCalls > 0 || cfg.Limits.CallsPerSec > 0 || cfg.Limits.IOLimitBytesPerSec > 0) {
		rc = resource.NewController(resource.Config{
			MaxConcurrentCalls: int64(cfg.Limits.MaxConcurrentCalls),
			CallsPerSec:        cfg.Limits.CallsPerSec,
			IOLimitBytesPerSec: cfg.Limits.IOLimitBytesPerSec,
		})
	}

	return &Pipeline{
		projector:      projector,
		encoder:        encoder,
		embedder:       embedder,
		index:          index,
		merger:         merger,
		store:          store,
		codec:          o.codec,
		pool:           engine.NewWorkerPool(o.workers),
		rc:             rc,
		metrics:        o.metricsCollector,
		logger:         o.logger,
		entriesPrefix:  cfg.Paths.EntriesPrefix,
		deletePrefix:   cfg.Paths.DeletePrefix,
		manifestPrefix: cfg.Paths.ManifestPrefix,
		batchSize:      cfg.Embedding.BatchSize,
		partSize:       o.partSize,
		topK:           cfg.Search.DefaultTopK,
		normalize:      cfg.Metric() == distance.MetricCosine,
	}, nil
}

// buildStore constructs the blob store the configuration names.
func buildStore(cfg *config.Config) (blobstore.Store, error) {
	var inner blobstore.Store

	switch cfg.Storage.Backend {
	case "memory":
		inner = blobstore.NewMemoryStore()
	case "local":
		s, err := blobstore.NewLocalStore(cfg.Storage.Root)
		if err != nil {
			return nil, fmt.Errorf("open local store: %w", err)
		}
		inner = s
	case "s3":
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.Storage.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Storage.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		inner = s3store.NewStore(awss3.NewFromConfig(awsCfg), cfg.Storage.Bucket, "")
	case "minio":
		client, err := miniogo.New(cfg.Storage.Endpoint, &miniogo.Options{
			Creds: credentials.NewEnvMinio(),
		})
		if err != nil {
			return nil, fmt.Errorf("connect minio: %w", err)
		}
		inner = miniostore.NewStore(client, cfg.Storage.Bucket, "")
	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", ErrInvalidInput, cfg.Storage.Backend)
	}

	store := inner
	if ctype := cfg.Compression(); ctype != blobstore.CompressionNone {
		store = blobstore.NewCompressedStore(store, ctype)
	}

	// The cache sits outermost so it holds decompressed payloads.
	if cfg.Storage.CacheMB > 0 {
		store = blobstore.NewCachedStore(store, cache.NewLRU(int64(cfg.Storage.CacheMB)<<20))
	}

	return store, nil
}

// IngestResult summarizes one batch ingest run.
type IngestResult struct {
	// Records is the number of source rows read.
	Records int `json:"records"`

	// Entries is the number of index entries produced and upserted.
	Entries int `json:"entries"`

	// Skipped is the number of rows dropped for a missing id, empty
	// embedding text, or a malformed id value.
	Skipped int `json:"skipped"`

	// Parts is the number of part files written to the blob store.
	Parts int `json:"parts"`

	// Manifest is the blob name of the run manifest, empty when the run
	// produced no entries.
	Manifest string `json:"manifest,omitempty"`
}

// IngestBatch reads every record from src and runs the full batch path:
// project, embed, write part files, upsert into the index. Rows without an
// id or embedding text are skipped and counted, never fatal.
func (p *Pipeline) IngestBatch(ctx context.Context, src recordsource.Source) (IngestResult, error) {
	start := time.Now()

	result, err := p.ingestBatch(ctx, src)
	err = translateError(err)

	duration := time.Since(start)
	p.metrics.RecordIngest(result.Records, result.Entries, result.Skipped, duration, err)
	p.logger.LogIngest(ctx, result.Records, result.Entries, result.Skipped, err)

	return result, err
}

func (p *Pipeline) ingestBatch(ctx context.Context, src recordsource.Source) (IngestResult, error) {
	var result IngestResult

	if p.closed.Load() {
		return result, ErrClosed
	}
	if p.embedder == nil {
		return result, ErrNoEmbedder
	}
	if src == nil {
		return result, fmt.Errorf("%w: nil record source", ErrInvalidInput)
	}

	it, err := src.Query(ctx)
	if err != nil {
		return result, stageError("record source", err)
	}
	records, err := recordsource.Collect(ctx, it)
	if err != nil {
		return result, stageError("record source", err)
	}
	result.Records = len(records)
	if len(records) == 0 {
		return result, nil
	}

	ids, projs, skipped, err := p.projectAll(ctx, records)
	if err != nil {
		return result, err
	}
	result.Skipped = skipped
	if len(ids) == 0 {
		return result, nil
	}

	texts := make([]string, len(projs))
	for i, pr := range projs {
		texts[i] = pr.Text
	}

	sparse, err := p.encoder.EncodeCorpus(ctx, texts)
	if err != nil {
		return result, fmt.Errorf("encode corpus: %w", err)
	}

	dense, err := p.embedAll(ctx, texts)
	if err != nil {
		return result, err
	}

	entries := make([]model.IndexEntry, 0, len(ids))
	for i, id := range ids {
		entry, err := datapoint.Assemble(id, dense[i], sparse[i], projs[i].Restricts, projs[i].NumericRestricts, projs[i].Metadata)
		if err != nil {
			result.Skipped++
			continue
		}
		entries = append(entries, entry)
	}
	result.Entries = len(entries)
	if len(entries) == 0 {
		return result, nil
	}

	parts, manifestName, err := p.writeParts(ctx, entries)
	result.Parts = parts
	result.Manifest = manifestName
	if err != nil {
		return result, err
	}

	if err := p.index.Upsert(ctx, entries); err != nil {
		return result, stageError("vector index", err)
	}

	return result, nil
}

// projectAll runs the projector over records on the worker pool. Slots are
// disjoint, so workers never contend. Records without an id or without
// embedding text come back counted in skipped.
func (p *Pipeline) projectAll(ctx context.Context, records []model.Record) ([]any, []project.Projection, int, error) {
	type slot struct {
		id   any
		proj project.Projection
		ok   bool
	}
	slots := make([]slot, len(records))

	var wg sync.WaitGroup
	var submitErr error
	for i := range records {
		rec := records[i]
		out := &slots[i]

		wg.Add(1)
		err := p.pool.Submit(ctx, func() {
			defer wg.Done()

			id, found := rec["id"]
			if !found || id == nil {
				return
			}
			proj := p.projector.Project(rec)
			if proj.Text == "" {
				return
			}
			out.id = id
			out.proj = proj
			out.ok = true
		})
		if err != nil {
			wg.Done()
			submitErr = err
			break
		}
	}
	wg.Wait()
	if submitErr != nil {
		return nil, nil, 0, submitErr
	}

	ids := make([]any, 0, len(records))
	projs := make([]project.Projection, 0, len(records))
	skipped := 0
	for i := range slots {
		if !slots[i].ok {
			skipped++
			continue
		}
		ids = append(ids, slots[i].id)
		projs = append(projs, slots[i].proj)
	}

	return ids, projs, skipped, nil
}

// embedAll embeds texts in configured batch sizes, throttled by the
// resource controller, and normalizes the result for cosine scoring.
func (p *Pipeline) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	dense := make([][]float32, 0, len(texts))

	for lo := 0; lo < len(texts); lo += p.batchSize {
		hi := min(lo+p.batchSize, len(texts))

		if err := p.rc.AcquireCall(ctx); err != nil {
			return nil, err
		}
		vecs, err := p.embedder.EmbedTexts(ctx, texts[lo:hi])
		p.rc.ReleaseCall()
		if err != nil {
			return nil, stageError("embedder", err)
		}
		if len(vecs) != hi-lo {
			return nil, stageError("embedder", fmt.Errorf("got %d vectors for %d texts", len(vecs), hi-lo))
		}

		dense = append(dense, vecs...)
	}

	if p.normalize {
		embed.L2Normalize(dense)
	}

	return dense, nil
}

// writeParts persists entries to the blob store in partSize chunks under a
// fresh run id, then records the run in a manifest blob. Returns the number
// of parts written, counting those that landed before any failure, and the
// manifest name.
func (p *Pipeline) writeParts(ctx context.Context, entries []model.IndexEntry) (int, string, error) {
	runID := uuid.New().String()
	infos := make([]manifest.PartInfo, 0, (len(entries)+p.partSize-1)/p.partSize)

	for lo := 0; lo < len(entries); lo += p.partSize {
		hi := min(lo+p.partSize, len(entries))

		var buf bytes.Buffer
		count, crc, err := datapoint.WriteAll(&buf, entries[lo:hi], p.codec)
		if err != nil {
			return len(infos), "", fmt.Errorf("encode part: %w", err)
		}

		name := fmt.Sprintf("%s%s-%05d.jsonl", p.entriesPrefix, runID, len(infos))
		if err := p.rc.AcquireIO(ctx, buf.Len()); err != nil {
			return len(infos), "", err
		}
		if err := p.store.Put(ctx, name, buf.Bytes()); err != nil {
			return len(infos), "", stageError("blob store", err)
		}

		p.logger.LogPartWritten(ctx, name, count, buf.Len())
		infos = append(infos, manifest.PartInfo{
			Name:     name,
			Entries:  count,
			Bytes:    int64(buf.Len()),
			Checksum: crc,
		})
	}

	manifestName := fmt.Sprintf("%s%s.json", p.manifestPrefix, runID)
	err := manifest.Write(ctx, p.store, manifestName, &manifest.Manifest{
		RunID:     runID,
		Codec:     p.codec.Name(),
		CreatedAt: time.Now().UTC(),
		Parts:     infos,
	})
	if err != nil {
		return len(infos), "", stageError("blob store", err)
	}

	return len(infos), manifestName, nil
}

// StreamUpsert pushes entries straight to the index, bypassing the batch
// part files. Use it for low-latency updates between batch runs.
func (p *Pipeline) StreamUpsert(ctx context.Context, entries []model.IndexEntry) error {
	start := time.Now()

	err := translateError(p.streamUpsert(ctx, entries))

	duration := time.Since(start)
	p.metrics.RecordUpsert(len(entries), duration, err)
	p.logger.LogUpsert(ctx, len(entries), err)

	return err
}

func (p *Pipeline) streamUpsert(ctx context.Context, entries []model.IndexEntry) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if len(entries) == 0 {
		return fmt.Errorf("%w: no entries", ErrInvalidInput)
	}

	if err := p.rc.AcquireCall(ctx); err != nil {
		return err
	}
	defer p.rc.ReleaseCall()

	if err := p.index.Upsert(ctx, entries); err != nil {
		return stageError("vector index", err)
	}

	return nil
}

// StreamDelete removes ids from the index. The id list is written to the
// blob store first, so every deletion leaves a durable record.
func (p *Pipeline) StreamDelete(ctx context.Context, ids []string) error {
	start := time.Now()

	err := translateError(p.streamDelete(ctx, ids))

	duration := time.Since(start)
	p.metrics.RecordDelete(len(ids), duration, err)
	p.logger.LogDelete(ctx, len(ids), err)

	return err
}

func (p *Pipeline) streamDelete(ctx context.Context, ids []string) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if len(ids) == 0 {
		return fmt.Errorf("%w: no ids", ErrInvalidInput)
	}

	var buf bytes.Buffer
	for _, id := range ids {
		line, err := p.codec.Marshal(map[string]string{"id": id})
		if err != nil {
			return fmt.Errorf("encode delete list: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	name := fmt.Sprintf("%s%s.jsonl", p.deletePrefix, uuid.New().String())
	if err := p.rc.AcquireIO(ctx, buf.Len()); err != nil {
		return err
	}
	if err := p.store.Put(ctx, name, buf.Bytes()); err != nil {
		return stageError("blob store", err)
	}

	if err := p.rc.AcquireCall(ctx); err != nil {
		return err
	}
	defer p.rc.ReleaseCall()

	if err := p.index.Remove(ctx, ids); err != nil {
		return stageError("vector index", err)
	}

	return nil
}

// BatchUpdateResult summarizes one batch update run.
type BatchUpdateResult struct {
	// Blobs is the number of part files read.
	Blobs int `json:"blobs"`

	// Entries is the number of entries upserted into the index.
	Entries int `json:"entries"`

	// Skipped is the number of malformed part lines dropped.
	Skipped int `json:"skipped"`
}

// BatchUpdateFromPrefix replays stored part files into the index. An empty
// prefix replays the configured entries prefix. This is the recovery path
// after an index rebuild: the blob store is the source of truth.
func (p *Pipeline) BatchUpdateFromPrefix(ctx context.Context, prefix string) (BatchUpdateResult, error) {
	start := time.Now()

	result, err := p.batchUpdate(ctx, prefix)
	err = translateError(err)

	duration := time.Since(start)
	p.metrics.RecordBatchUpdate(result.Blobs, result.Entries, result.Skipped, duration, err)
	p.logger.LogBatchUpdate(ctx, result.Blobs, result.Entries, result.Skipped, err)

	return result, err
}

func (p *Pipeline) batchUpdate(ctx context.Context, prefix string) (BatchUpdateResult, error) {
	var result BatchUpdateResult

	if p.closed.Load() {
		return result, ErrClosed
	}
	if prefix == "" {
		prefix = p.entriesPrefix
	}

	names, err := p.store.List(ctx, prefix)
	if err != nil {
		return result, stageError("blob store", err)
	}

	for _, name := range names {
		entries, skipped, err := p.readPart(ctx, name)
		if err != nil {
			return result, err
		}
		result.Blobs++
		result.Skipped += skipped
		if len(entries) == 0 {
			continue
		}

		if err := p.rc.AcquireCall(ctx); err != nil {
			return result, err
		}
		err = p.index.Upsert(ctx, entries)
		p.rc.ReleaseCall()
		if err != nil {
			return result, stageError("vector index", err)
		}
		result.Entries += len(entries)
	}

	return result, nil
}

// BatchUpdateFromManifest replays exactly the parts one ingest run recorded
// in its manifest, verifying each part's checksum before upserting. Parts
// decode with the codec the manifest names, so runs written under another
// codec replay correctly.
func (p *Pipeline) BatchUpdateFromManifest(ctx context.Context, name string) (BatchUpdateResult, error) {
	start := time.Now()

	result, err := p.batchUpdateFromManifest(ctx, name)
	err = translateError(err)

	duration := time.Since(start)
	p.metrics.RecordBatchUpdate(result.Blobs, result.Entries, result.Skipped, duration, err)
	p.logger.LogBatchUpdate(ctx, result.Blobs, result.Entries, result.Skipped, err)

	return result, err
}

func (p *Pipeline) batchUpdateFromManifest(ctx context.Context, name string) (BatchUpdateResult, error) {
	var result BatchUpdateResult

	if p.closed.Load() {
		return result, ErrClosed
	}
	if name == "" {
		return result, fmt.Errorf("%w: no manifest name", ErrInvalidInput)
	}

	m, err := manifest.Load(ctx, p.store, name)
	if err != nil {
		return result, stageError("blob store", err)
	}

	c, ok := codec.ByName(m.Codec)
	if !ok {
		return result, stageError("blob store", fmt.Errorf("manifest %s names unknown codec %q", name, m.Codec))
	}

	for _, part := range m.Parts {
		data, err := blobstore.ReadAll(ctx, p.store, part.Name)
		if err != nil {
			return result, stageError("blob store", err)
		}
		if got := hash.CRC32C(data); got != part.Checksum {
			return result, stageError("blob store", fmt.Errorf("part %s: checksum mismatch: got %08x, want %08x", part.Name, got, part.Checksum))
		}

		entries, skipped, err := datapoint.ReadAll(bytes.NewReader(data), c)
		if err != nil {
			return result, stageError("blob store", fmt.Errorf("read part %s: %w", part.Name, err))
		}
		result.Blobs++
		result.Skipped += skipped
		if len(entries) == 0 {
			continue
		}

		if err := p.rc.AcquireCall(ctx); err != nil {
			return result, err
		}
		err = p.index.Upsert(ctx, entries)
		p.rc.ReleaseCall()
		if err != nil {
			return result, stageError("vector index", err)
		}
		result.Entries += len(entries)
	}

	return result, nil
}

func (p *Pipeline) readPart(ctx context.Context, name string) ([]model.IndexEntry, int, error) {
	r, err := blobstore.OpenReader(ctx, p.store, name)
	if err != nil {
		return nil, 0, stageError("blob store", err)
	}
	defer r.Close()

	entries, skipped, err := datapoint.ReadAll(r, p.codec)
	if err != nil {
		return nil, 0, stageError("blob store", fmt.Errorf("read part %s: %w", name, err))
	}

	return entries, skipped, nil
}

// Index returns the vector index behind the pipeline.
func (p *Pipeline) Index() vectorindex.Index {
	return p.index
}

// Close shuts the pipeline down. Further calls on the pipeline return
// ErrClosed. Close is idempotent and safe on a nil Pipeline.
func (p *Pipeline) Close() error {
	if p == nil {
		return nil
	}
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	p.pool.Close()

	if c, ok := p.index.(io.Closer); ok {
		return c.Close()
	}

	return nil
}
