// Package distance provides vector similarity calculations and the metric
// conventions shared by the local index and the result merge stage.
package distance

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// SquaredL2 calculates the squared L2 (Euclidean) distance between two
// vectors. Assumes vectors are the same length (caller's responsibility).
func SquaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// SparseDot calculates the dot product of two sparse vectors given as
// parallel dimension/value sequences. Dimensions need not be sorted.
func SparseDot(aDims []int32, aVals []float32, bDims []int32, bVals []float32) float32 {
	if len(aDims) == 0 || len(bDims) == 0 {
		return 0
	}

	lookup := make(map[int32]float32, len(aDims))
	for i, d := range aDims {
		lookup[d] += aVals[i]
	}

	var sum float32
	for i, d := range bDims {
		sum += lookup[d] * bVals[i]
	}
	return sum
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false if v has zero L2 norm.
func NormalizeL2InPlace(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	norm2 := Dot(v, v)
	if norm2 == 0 {
		return false
	}
	inv := 1 / float32(math.Sqrt(float64(norm2)))
	for i := range v {
		v[i] *= inv
	}
	return true
}

// NormalizeL2Copy returns a normalized copy of src.
// Returns false if src has zero L2 norm.
func NormalizeL2Copy(src []float32) ([]float32, bool) {
	dst := slices.Clone(src)
	if !NormalizeL2InPlace(dst) {
		return nil, false
	}
	return dst, true
}

// Metric represents the distance metric used for vector comparison.
type Metric int

const (
	MetricL2 Metric = iota
	MetricCosine
	MetricDot
)

func (m Metric) String() string {
	switch m {
	case MetricL2:
		return "L2"
	case MetricCosine:
		return "Cosine"
	case MetricDot:
		return "Dot"
	default:
		return fmt.Sprintf("Unknown(%d)", m)
	}
}

// ParseMetric resolves a configured metric name.
func ParseMetric(name string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "l2", "squared_l2", "euclidean":
		return MetricL2, nil
	case "cosine":
		return MetricCosine, nil
	case "dot", "dot_product":
		return MetricDot, nil
	default:
		return 0, fmt.Errorf("unknown metric %q", name)
	}
}

// HigherIsBetter reports the ordering convention of a metric: dot product
// and cosine similarity rank larger values closer, L2 ranks smaller values
// closer. The convention travels with results through the merge stage and
// is never renormalized.
func HigherIsBetter(m Metric) bool {
	return m == MetricCosine || m == MetricDot
}

// Func is a function type for distance calculation.
type Func func(a, b []float32) float32

// Provider returns the distance function for the given metric. Cosine
// assumes inputs are already L2-normalized and reduces to dot product.
func Provider(m Metric) (Func, error) {
	switch m {
	case MetricL2:
		return SquaredL2, nil
	case MetricCosine, MetricDot:
		return Dot, nil
	default:
		return nil, fmt.Errorf("unsupported metric for float32: %v", m)
	}
}
