package distance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDot(t *testing.T) {
	assert.Equal(t, float32(11), Dot([]float32{1, 2, 3}, []float32{3, 1, 2}))
	assert.Equal(t, float32(0), Dot(nil, nil))
}

func TestSquaredL2(t *testing.T) {
	assert.Equal(t, float32(9), SquaredL2([]float32{0, 0, 0}, []float32{1, 2, 2}))
	assert.Equal(t, float32(0), SquaredL2([]float32{1, 2}, []float32{1, 2}))
}

func TestSparseDot(t *testing.T) {
	t.Run("overlapping dimensions", func(t *testing.T) {
		got := SparseDot(
			[]int32{1, 5, 9}, []float32{2, 3, 4},
			[]int32{5, 9, 11}, []float32{1, 2, 7},
		)
		assert.Equal(t, float32(11), got)
	})

	t.Run("disjoint dimensions", func(t *testing.T) {
		got := SparseDot(
			[]int32{1, 2}, []float32{1, 1},
			[]int32{3, 4}, []float32{1, 1},
		)
		assert.Equal(t, float32(0), got)
	})

	t.Run("empty operands", func(t *testing.T) {
		assert.Equal(t, float32(0), SparseDot(nil, nil, []int32{1}, []float32{1}))
		assert.Equal(t, float32(0), SparseDot([]int32{1}, []float32{1}, nil, nil))
	})

	t.Run("unordered dimensions", func(t *testing.T) {
		got := SparseDot(
			[]int32{9, 1}, []float32{4, 2},
			[]int32{1, 9}, []float32{2, 4},
		)
		assert.Equal(t, float32(20), got)
	})
}

func TestNormalizeL2(t *testing.T) {
	t.Run("in place", func(t *testing.T) {
		v := []float32{3, 4}
		require.True(t, NormalizeL2InPlace(v))
		assert.InDelta(t, 0.6, v[0], 1e-6)
		assert.InDelta(t, 0.8, v[1], 1e-6)

		var norm float64
		for _, x := range v {
			norm += float64(x) * float64(x)
		}
		assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)
	})

	t.Run("zero vector", func(t *testing.T) {
		v := []float32{0, 0, 0}
		assert.False(t, NormalizeL2InPlace(v))
		assert.Equal(t, []float32{0, 0, 0}, v)
	})

	t.Run("copy leaves source untouched", func(t *testing.T) {
		src := []float32{3, 4}
		dst, ok := NormalizeL2Copy(src)
		require.True(t, ok)
		assert.Equal(t, []float32{3, 4}, src)
		assert.InDelta(t, 0.6, dst[0], 1e-6)
	})
}

func TestParseMetric(t *testing.T) {
	tests := []struct {
		in      string
		want    Metric
		wantErr bool
	}{
		{in: "dot", want: MetricDot},
		{in: "DOT_PRODUCT", want: MetricDot},
		{in: "cosine", want: MetricCosine},
		{in: " l2 ", want: MetricL2},
		{in: "euclidean", want: MetricL2},
		{in: "manhattan", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMetric(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHigherIsBetter(t *testing.T) {
	assert.True(t, HigherIsBetter(MetricDot))
	assert.True(t, HigherIsBetter(MetricCosine))
	assert.False(t, HigherIsBetter(MetricL2))
}

func TestProvider(t *testing.T) {
	for _, m := range []Metric{MetricL2, MetricCosine, MetricDot} {
		fn, err := Provider(m)
		require.NoError(t, err)
		require.NotNil(t, fn)
	}

	_, err := Provider(Metric(99))
	require.Error(t, err)
}
