// Package vectorindex defines the boundary to the vector-search service.
//
// The pipeline treats the service as opaque: entries go in, deletions go in
// by id, and queries come back as raw neighbor records whose shape is only
// interpreted by the merge stage. The bruteforce subpackage provides a local
// in-memory implementation for tests and small deployments.
package vectorindex

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/vecpipe/vecpipe/model"
)

var (
	// ErrNoIDs is returned when a removal names no ids.
	ErrNoIDs = errors.New("no ids given")

	// ErrEmptyQuery is returned when a query carries no dense vector.
	ErrEmptyQuery = errors.New("query vector must not be empty")

	// ErrEmptyEntryID is returned when an upserted entry has no id.
	ErrEmptyEntryID = errors.New("entry id must not be empty")

	// ErrEmptyEntryVector is returned when an upserted entry has no
	// dense vector.
	ErrEmptyEntryVector = errors.New("entry vector must not be empty")
)

// Index accepts entry batches for upsert, deletions by id, and hybrid
// queries. Implementations must be safe for concurrent use.
type Index interface {
	// Upsert inserts or overwrites entries by id, last write wins.
	Upsert(ctx context.Context, entries []model.IndexEntry) error

	// Remove deletes entries by id. Removing an unknown id is not an
	// error; an empty id list is.
	Remove(ctx context.Context, ids []string) error

	// Search returns raw neighbor records for the query, closest first.
	Search(ctx context.Context, q model.Query) ([]json.RawMessage, error)
}
