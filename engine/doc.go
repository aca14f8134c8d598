// Package engine provides the small concurrency and storage primitives the
// ingestion pipeline and the local index are built on: a fixed worker pool
// for per-record fan-out and a generic in-memory store keyed by entry id.
package engine
