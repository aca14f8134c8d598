// Package embed defines the dense embedding boundary. The pipeline treats
// the embedding service as an opaque collaborator: texts go in, one vector
// per text comes out, and failures propagate unchanged.
package embed

import (
	"context"

	"github.com/vecpipe/vecpipe/distance"
)

// Embedder produces dense vectors for texts.
//
// EmbedTexts returns exactly one vector per input text, in input order.
// Implementations must be safe for concurrent use.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of produced vectors.
	Dimensions() int
}

// L2Normalize normalizes each vector in place. Zero vectors are left
// unchanged rather than producing NaNs.
func L2Normalize(vectors [][]float32) {
	for _, v := range vectors {
		distance.NormalizeL2InPlace(v)
	}
}
