package bm25

import (
	"context"
	"errors"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/vecpipe/vecpipe/internal/hash"
	"github.com/vecpipe/vecpipe/lexical"
	"github.com/vecpipe/vecpipe/model"
)

const (
	// DefaultK1 controls term-frequency saturation.
	DefaultK1 = 1.2
	// DefaultB controls document-length normalization.
	DefaultB = 0.75
)

// ErrInvalidBucketCount is returned when the bucket count is not positive.
var ErrInvalidBucketCount = errors.New("bucket count must be positive")

// Options configures an Encoder.
type Options struct {
	// K1 is the BM25 term-frequency saturation parameter.
	K1 float64

	// B is the BM25 length-normalization parameter.
	B float64

	// Tokenizer splits text into terms. Defaults to lexical.Tokenize.
	Tokenizer lexical.TokenizerFunc
}

// DefaultOptions are the options used when none are given.
var DefaultOptions = Options{
	K1: DefaultK1,
	B:  DefaultB,
}

// Encoder converts documents and queries into sparse term-bucket vectors.
//
// Corpus mode applies BM25 weighting using statistics over the whole batch.
// Query mode applies plain term-frequency weighting: corpus statistics are
// not available at query time, and the asymmetry between the two modes is
// part of the scoring contract, not an accident to smooth over.
//
// An Encoder is immutable after construction and safe for concurrent use.
// Term hashing is stable for the lifetime of the process, so vectors from
// consecutive batches land in aligned buckets.
type Encoder struct {
	bucketCount int
	k1          float64
	b           float64
	tokenize    lexical.TokenizerFunc
}

// New creates an Encoder with the given bucket count.
func New(bucketCount int, optFns ...func(o *Options)) (*Encoder, error) {
	if bucketCount <= 0 {
		return nil, ErrInvalidBucketCount
	}

	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Tokenizer == nil {
		opts.Tokenizer = lexical.Tokenize
	}

	return &Encoder{
		bucketCount: bucketCount,
		k1:          opts.K1,
		b:           opts.B,
		tokenize:    opts.Tokenizer,
	}, nil
}

// BucketCount returns the size of the hashed bucket space.
func (e *Encoder) BucketCount() int {
	return e.bucketCount
}

// CorpusStats holds the corpus-wide statistics BM25 scoring depends on.
// It is computed over the entire batch before any per-document score is
// finalized and must not be mutated afterwards; per-document scoring reads
// it concurrently.
type CorpusStats struct {
	// DocCount is the total number of documents in the batch.
	DocCount int

	// AvgDocLength is the mean token count per document.
	AvgDocLength float64

	// DocFreq maps a term to the number of documents containing it at
	// least once (presence, not occurrences).
	DocFreq map[string]int
}

// IDF returns the inverse document frequency of term under these stats.
func (s CorpusStats) IDF(term string) float64 {
	df := float64(s.DocFreq[term])
	n := float64(s.DocCount)
	return math.Log((n-df+0.5)/(df+0.5) + 1)
}

// ComputeCorpusStats computes statistics over tokenized documents.
// An empty corpus yields AvgDocLength 1 so later divisions stay defined.
func ComputeCorpusStats(tokenized [][]string) CorpusStats {
	stats := CorpusStats{
		DocCount: len(tokenized),
		DocFreq:  make(map[string]int),
	}

	if len(tokenized) == 0 {
		stats.AvgDocLength = 1
		return stats
	}

	var total int
	seen := make(map[string]struct{})
	for _, tokens := range tokenized {
		total += len(tokens)

		clear(seen)
		for _, t := range tokens {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			stats.DocFreq[t]++
		}
	}

	stats.AvgDocLength = float64(total) / float64(len(tokenized))
	return stats
}

// EncodeCorpus encodes a batch of documents, one output vector per input
// document in the same order. A document with no tokens yields an empty
// vector. Corpus statistics are computed over the whole batch first;
// per-document scoring then runs in parallel against the finished stats.
func (e *Encoder) EncodeCorpus(ctx context.Context, documents []string) ([]model.SparseVector, error) {
	tokenized := make([][]string, len(documents))
	for i, doc := range documents {
		tokenized[i] = e.tokenize(doc)
	}

	// Stats over the full batch act as a barrier: no document may be
	// scored until DocFreq and AvgDocLength are final.
	stats := ComputeCorpusStats(tokenized)

	vectors := make([]model.SparseVector, len(documents))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i := range tokenized {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			vectors[i] = e.scoreDocument(tokenized[i], stats)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return vectors, nil
}

// EncodeQuery encodes a single query using plain term-frequency weights.
// No idf and no length normalization are applied.
func (e *Encoder) EncodeQuery(text string) model.SparseVector {
	buckets := make([]float32, e.bucketCount)
	for _, term := range e.tokenize(text) {
		buckets[e.bucket(term)]++
	}
	return collectNonZero(buckets)
}

// scoreDocument computes the BM25 weight of every term in one document and
// accumulates the weights into the hashed bucket space. Colliding terms
// merge additively; the collision is lossy but keeps memory bounded by the
// bucket count.
func (e *Encoder) scoreDocument(tokens []string, stats CorpusStats) model.SparseVector {
	buckets := make([]float32, e.bucketCount)
	if len(tokens) == 0 {
		return collectNonZero(buckets)
	}

	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}

	docLen := float64(len(tokens))
	for term, count := range tf {
		idf := stats.IDF(term)

		freq := float64(count)
		num := freq * (e.k1 + 1)
		denom := freq + e.k1*(1-e.b+e.b*docLen/stats.AvgDocLength)
		score := idf * (num / denom)

		buckets[e.bucket(term)] += float32(score)
	}

	return collectNonZero(buckets)
}

// bucket maps a term to its bucket index.
func (e *Encoder) bucket(term string) int32 {
	return int32(hash.FNV1a64(term) % uint64(e.bucketCount))
}

// collectNonZero lists only the buckets that accumulated weight, in
// ascending index order so repeated encodings serialize identically.
func collectNonZero(buckets []float32) model.SparseVector {
	v := model.SparseVector{
		Dimensions: []int32{},
		Values:     []float32{},
	}
	for i, val := range buckets {
		if val != 0 {
			v.Dimensions = append(v.Dimensions, int32(i))
			v.Values = append(v.Values, val)
		}
	}
	return v
}
