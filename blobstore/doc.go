// Package blobstore abstracts where line-delimited entry and metadata files
// live. Implementations exist for local disk (memory-mapped reads, atomic
// renames on write), plain memory for tests, and the s3 and minio
// subpackages for object storage. CompressedStore layers block compression
// over any of them.
//
// All implementations share one contract: blobs are write-once (Create then
// Close, or an atomic Put), reads see only completed blobs, and missing
// blobs surface as ErrNotFound.
package blobstore
