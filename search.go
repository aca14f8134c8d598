package vecpipe

import (
	"context"
	"time"

	"github.com/vecpipe/vecpipe/merge"
	"github.com/vecpipe/vecpipe/model"
)

// SearchBuilder provides a fluent interface for building search queries.
type SearchBuilder struct {
	p  *Pipeline
	in merge.QueryInput
}

// Search starts building a search query.
//
// Example:
//
//	neighbors, err := pipe.Search().
//		Query("maritime adventure novels").
//		Allow("lang", "en").
//		KNN(10).
//		Execute(ctx)
func (p *Pipeline) Search() *SearchBuilder {
	return &SearchBuilder{
		p:  p,
		in: merge.QueryInput{TopK: p.topK},
	}
}

// Query sets the query text. The text is embedded before the index call.
// Mutually exclusive with Vector.
func (sb *SearchBuilder) Query(text string) *SearchBuilder {
	sb.in.Text = text
	return sb
}

// Vector sets a pre-computed dense query vector. Mutually exclusive with
// Query.
func (sb *SearchBuilder) Vector(v []float32) *SearchBuilder {
	sb.in.Vector = v
	return sb
}

// Hybrid adds a sparse lexical encoding of the query text, so results are
// scored on both dense and term overlap. Requires Query.
func (sb *SearchBuilder) Hybrid() *SearchBuilder {
	sb.in.Hybrid = true
	return sb
}

// KNN sets the number of nearest neighbors to return.
func (sb *SearchBuilder) KNN(k int) *SearchBuilder {
	sb.in.TopK = k
	return sb
}

// Allow keeps only candidates carrying one of tokens in namespace.
// Multiple Allow calls on different namespaces must all match.
func (sb *SearchBuilder) Allow(namespace string, tokens ...string) *SearchBuilder {
	sb.in.Restricts = append(sb.in.Restricts, model.Restriction{
		Namespace: namespace,
		Allow:     tokens,
	})
	return sb
}

// Deny drops candidates carrying any of tokens in namespace.
func (sb *SearchBuilder) Deny(namespace string, tokens ...string) *SearchBuilder {
	sb.in.Restricts = append(sb.in.Restricts, model.Restriction{
		Namespace: namespace,
		Deny:      tokens,
	})
	return sb
}

// Execute runs the search and returns neighbors ordered best first.
func (sb *SearchBuilder) Execute(ctx context.Context) ([]model.Neighbor, error) {
	start := time.Now()

	neighbors, err := sb.p.search(ctx, sb.in)
	err = translateError(err)

	duration := time.Since(start)
	sb.p.metrics.RecordSearch(sb.in.TopK, duration, err)
	sb.p.logger.LogSearch(ctx, sb.in.TopK, len(neighbors), err)

	return neighbors, err
}

// MustExecute runs the search and panics on error.
//
// Use only where a search failure is a programming error, such as examples
// and tests.
func (sb *SearchBuilder) MustExecute(ctx context.Context) []model.Neighbor {
	neighbors, err := sb.Execute(ctx)
	if err != nil {
		panic(err)
	}
	return neighbors
}

// First runs the search and returns the single best neighbor, or
// ErrNotFound when nothing matches.
func (sb *SearchBuilder) First(ctx context.Context) (model.Neighbor, error) {
	neighbors, err := sb.KNN(1).Execute(ctx)
	if err != nil {
		return model.Neighbor{}, err
	}
	if len(neighbors) == 0 {
		return model.Neighbor{}, ErrNotFound
	}
	return neighbors[0], nil
}

func (p *Pipeline) search(ctx context.Context, in merge.QueryInput) ([]model.Neighbor, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}

	q, err := p.merger.EncodeQuery(ctx, in)
	if err != nil {
		return nil, stageError("embedder", err)
	}

	if err := p.rc.AcquireCall(ctx); err != nil {
		return nil, err
	}
	raws, err := p.index.Search(ctx, q)
	p.rc.ReleaseCall()
	if err != nil {
		return nil, stageError("vector index", err)
	}

	mergeStart := time.Now()
	neighbors, stats, err := p.merger.Merge(ctx, raws)
	if err != nil {
		return nil, stageError("merge", err)
	}
	if stats.Missing > 0 {
		p.logger.LogBackfill(ctx, stats.Missing, stats.Filled, stats.Skipped)
		p.metrics.RecordBackfill(stats.Filled, stats.Skipped, time.Since(mergeStart))
	}

	return neighbors, nil
}
