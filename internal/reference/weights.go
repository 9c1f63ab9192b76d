package reference

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Per-cycle weighting schemes.
const (
	WeightConstant    = "constant"
	WeightLinear      = "linear"
	WeightExponential = "exponential"
)

// lateStartTenths is where the late-cycle region of the grid begins.
const lateStartTenths = 7

// CycleWeights returns n per-point weights rising with position t = j/(n-1)
// according to method, with the last 30% of points multiplied by emphasis.
// The weights sum to n.
func CycleWeights(n int, method string, factor, emphasis float64) []float64 {
	w := make([]float64, n)
	if n == 0 {
		return w
	}
	for j := range w {
		t := 0.0
		if n > 1 {
			t = float64(j) / float64(n-1)
		}
		switch method {
		case WeightLinear:
			w[j] = 1 + factor*t
		case WeightExponential:
			w[j] = math.Exp(factor * t)
		default:
			w[j] = 1
		}
	}
	for j := n * lateStartTenths / 10; j < n; j++ {
		w[j] *= emphasis
	}

	var sum float64
	for _, v := range w {
		sum += v
	}
	if sum <= 0 {
		for j := range w {
			w[j] = 1
		}
		return w
	}
	scale := float64(n) / sum
	for j := range w {
		w[j] *= scale
	}
	return w
}

// WeightedMSE is the weighted mean of squared differences between a and b.
// Nil weights give the plain mean squared error.
func WeightedMSE(a, b, weights []float64) float64 {
	sq := make([]float64, len(a))
	for i := range a {
		d := a[i] - b[i]
		sq[i] = d * d
	}
	return stat.Mean(sq, weights)
}
