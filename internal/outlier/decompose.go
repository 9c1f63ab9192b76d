package outlier

import (
	"github.com/montanaflynn/stats"
)

const (
	trendWindowFraction = 0.15
	minTrendWindow      = 3
	maxTrendWindow      = 11
)

// Decomposition splits a per-cycle series into trend, seasonal and residual
// parts with values = trend + seasonal + residual.
type Decomposition struct {
	Trend    []float64
	Seasonal []float64
	Residual []float64
}

// Decompose separates values into a running-median trend, a per-phase median
// seasonal term (when period >= 2 and at least two full periods exist) and
// the residual. Medians keep single-cycle anomalies in the residual instead
// of smearing them into the trend.
func Decompose(values []float64, period int) Decomposition {
	n := len(values)
	d := Decomposition{
		Trend:    runningMedian(values, trendWindow(n)),
		Seasonal: make([]float64, n),
		Residual: make([]float64, n),
	}
	detrended := make([]float64, n)
	for i, v := range values {
		detrended[i] = v - d.Trend[i]
	}
	if period >= 2 && n >= 2*period {
		d.Seasonal = seasonalMedians(detrended, period)
	}
	for i := range values {
		d.Residual[i] = detrended[i] - d.Seasonal[i]
	}
	return d
}

// trendWindow returns an odd window of about 15% of n, clamped to [3, 11].
func trendWindow(n int) int {
	w := int(float64(n) * trendWindowFraction)
	if w < minTrendWindow {
		w = minTrendWindow
	}
	if w > maxTrendWindow {
		w = maxTrendWindow
	}
	if w%2 == 0 {
		w++
	}
	return w
}

func runningMedian(values []float64, window int) []float64 {
	n := len(values)
	out := make([]float64, n)
	half := window / 2
	for i := range values {
		start, end := i-half, i+half+1
		if start < 0 {
			start = 0
		}
		if end > n {
			end = n
		}
		m, err := stats.Median(values[start:end])
		if err != nil {
			m = values[i]
		}
		out[i] = m
	}
	return out
}

// seasonalMedians takes the median of each phase position and centers the
// result so its median is zero.
func seasonalMedians(detrended []float64, period int) []float64 {
	n := len(detrended)
	seasonal := make([]float64, n)
	for pos := 0; pos < period; pos++ {
		var phase []float64
		for i := pos; i < n; i += period {
			phase = append(phase, detrended[i])
		}
		m, err := stats.Median(phase)
		if err != nil {
			continue
		}
		for i := pos; i < n; i += period {
			seasonal[i] = m
		}
	}
	if center, err := stats.Median(seasonal); err == nil {
		for i := range seasonal {
			seasonal[i] -= center
		}
	}
	return seasonal
}
