package embed

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestL2Normalize(t *testing.T) {
	vectors := [][]float32{
		{3, 4},
		{0, 0},
		{1, 0},
	}

	L2Normalize(vectors)

	assert.InDelta(t, 0.6, vectors[0][0], 1e-6)
	assert.InDelta(t, 0.8, vectors[0][1], 1e-6)

	// Zero vectors pass through untouched.
	assert.Equal(t, []float32{0, 0}, vectors[1])

	assert.Equal(t, []float32{1, 0}, vectors[2])

	for _, v := range [][]float32{vectors[0], vectors[2]} {
		var norm float64
		for _, x := range v {
			norm += float64(x) * float64(x)
		}
		assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)
	}
}
