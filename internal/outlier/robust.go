package outlier

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
)

// quantile returns the p-quantile (0..1) of sorted data by linear
// interpolation between closest ranks.
func quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}
	pos := p * float64(n-1)
	lower := int(math.Floor(pos))
	if lower >= n-1 {
		return sorted[n-1]
	}
	weight := pos - float64(lower)
	return sorted[lower]*(1-weight) + sorted[lower+1]*weight
}

// quartiles returns Q1 and Q3 of values.
func quartiles(values []float64) (q1, q3 float64) {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return quantile(sorted, 0.25), quantile(sorted, 0.75)
}

// robustScale returns the median and the floored MAD of values. The MAD is
// floored at minMADRatio × median(|scaleRef|); scaleRef defaults to values.
func robustScale(values, scaleRef []float64, minMADRatio float64) (median, mad float64, err error) {
	median, err = stats.Median(values)
	if err != nil {
		return 0, 0, err
	}
	mad, err = stats.MedianAbsoluteDeviationPopulation(values)
	if err != nil {
		return 0, 0, err
	}
	if scaleRef == nil {
		scaleRef = values
	}
	abs := make([]float64, len(scaleRef))
	for i, v := range scaleRef {
		abs[i] = math.Abs(v)
	}
	if floor, err := stats.Median(abs); err == nil && mad < floor*minMADRatio {
		mad = floor * minMADRatio
	}
	return median, mad, nil
}

// robustZ scores values as madConstant·(x − median)/MAD. A zero scale yields
// all-zero scores and degenerate=true.
func robustZ(values, scaleRef []float64, madConstant, minMADRatio float64) (scores []float64, degenerate bool) {
	scores = make([]float64, len(values))
	median, mad, err := robustScale(values, scaleRef, minMADRatio)
	if err != nil || mad <= 0 || math.IsNaN(mad) {
		return scores, true
	}
	for i, v := range values {
		scores[i] = madConstant * (v - median) / mad
	}
	return scores, false
}
