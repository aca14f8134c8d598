// Package model defines the core types shared by every pipeline stage.
//
// # Ingestion Types
//
//   - Record: raw tabular row keyed by field name
//   - SparseVector: hashed term-bucket lexical vector (parallel slices)
//   - Restriction: categorical allow/deny filter clause
//   - NumericRestriction: numeric filter clause (int xor float)
//   - IndexEntry: canonical unit persisted and streamed to the vector index
//
// # Search Types
//
//   - Query: dense (optionally hybrid dense+sparse) search request
//   - Neighbor: normalized search result {id, score, metadata}
//
// Types here carry no behavior beyond small helpers; the pipeline stages in
// project, lexical/bm25, datapoint, and merge do the work.
package model
