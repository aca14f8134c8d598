// Package lexical provides the tokenizer feeding sparse lexical encoding.
//
// Tokenization is deliberately simple: lowercase, then maximal runs of
// ASCII alphanumerics. Anything fancier (stemming, stopwords, unicode
// folding) would change bucket assignments between writer and reader, so
// both sides of the pipeline share this single implementation.
//
// The bm25 subpackage turns token streams into hashed term-bucket vectors:
//
//	enc, _ := bm25.New(5000)
//	vecs, _ := enc.EncodeCorpus(ctx, docs)
//	qv, _ := enc.EncodeQuery("cheap red shoes")
package lexical
