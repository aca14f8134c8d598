package model

import (
	"fmt"
)

// Record is one raw tabular row keyed by field name.
// Records are ephemeral; they are consumed once per embedding run.
type Record map[string]any

// SparseVector is a lexical signal over a hashed bucket space, stored as
// parallel slices. Dimensions holds unique bucket indices in
// [0, bucketCount); Values holds the weight for the bucket at the same
// position. No ordering is guaranteed beyond positional correspondence.
type SparseVector struct {
	Dimensions []int32   `json:"dimensions"`
	Values     []float32 `json:"values"`
}

// IsEmpty reports whether the vector carries no non-zero bucket.
// Downstream systems distinguish "no sparse signal" from a present but
// empty one, so assembly drops empty vectors entirely.
func (v *SparseVector) IsEmpty() bool {
	if v == nil || len(v.Dimensions) == 0 {
		return true
	}
	for _, val := range v.Values {
		if val != 0 {
			return false
		}
	}
	return true
}

// Restriction is a categorical allow/deny filter clause on a namespace.
type Restriction struct {
	Namespace string   `json:"namespace"`
	Allow     []string `json:"allow,omitempty"`
	Deny      []string `json:"deny,omitempty"`
}

// NumericRestriction is a numeric filter clause on a namespace.
// Exactly one of ValueInt or ValueFloat is set, never both.
type NumericRestriction struct {
	Namespace  string   `json:"namespace"`
	ValueInt   *int64   `json:"value_int,omitempty"`
	ValueFloat *float64 `json:"value_float,omitempty"`
}

// String returns a compact representation, mainly for logs.
func (nr NumericRestriction) String() string {
	if nr.ValueFloat != nil {
		return fmt.Sprintf("%s=%g", nr.Namespace, *nr.ValueFloat)
	}
	if nr.ValueInt != nil {
		return fmt.Sprintf("%s=%d", nr.Namespace, *nr.ValueInt)
	}
	return nr.Namespace + "=<unset>"
}

// IndexEntry is the canonical unit persisted to part files and streamed to
// the vector-search service. Entries are immutable once serialized;
// re-ingesting the same ID replaces the previous entry (last write wins).
//
// The wire names match the line-delimited format the service consumes:
// dense vectors travel as "embedding", display metadata as
// "embedding_metadata".
type IndexEntry struct {
	ID               string               `json:"id"`
	Dense            []float32            `json:"embedding"`
	Sparse           *SparseVector        `json:"sparse_embedding,omitempty"`
	Restricts        []Restriction        `json:"restricts,omitempty"`
	NumericRestricts []NumericRestriction `json:"numeric_restricts,omitempty"`
	Metadata         map[string]any       `json:"embedding_metadata,omitempty"`
}

// Query is a single search request against the vector-search service.
// Dense is required; Sparse is present only for hybrid queries.
type Query struct {
	Dense     []float32
	Sparse    *SparseVector
	TopK      int
	Restricts []Restriction
}

// Neighbor is one normalized search result. Score keeps the ordering
// convention of the configured distance measure (higher is closer for
// dot product and cosine, lower is closer for L2); it is nil when the
// service returned no score field. Metadata is nil when neither the
// service response nor the backfill scan produced any.
type Neighbor struct {
	ID       string         `json:"id"`
	Score    *float64       `json:"score"`
	Metadata map[string]any `json:"metadata"`
}
