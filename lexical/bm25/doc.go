// Package bm25 implements BM25 sparse encoding over a hashed term-bucket
// space of fixed size.
//
// Terms are mapped to buckets with FNV-1a, so the vocabulary never has to be
// held in memory and the output dimensionality is known up front. Terms that
// collide share a bucket and their weights merge additively.
//
// # Usage
//
//	encoder, err := bm25.New(30000)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	vectors, err := encoder.EncodeCorpus(ctx, documents)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	query := encoder.EncodeQuery("wireless headphones")
//
// # Parameters
//
//   - bucketCount: size of the hashed bucket space. Larger spaces collide
//     less but produce larger vectors.
//   - K1 (default 1.2): term-frequency saturation.
//   - B (default 0.75): document-length normalization.
package bm25
