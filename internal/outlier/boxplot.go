package outlier

import (
	"math"

	"cellqc/domain/cycling"
	"cellqc/domain/verdict"
)

// BoxplotParams configures the iterative IQR method.
type BoxplotParams struct {
	// RangeThresholds is the minimum absolute distance from the nearer
	// quartile a value must have before it can be flagged.
	RangeThresholds Thresholds
	ShrinkFactor    float64
	MaxIterations   int
}

// Boxplot flags values outside shrinking IQR fences, repeating on the
// survivors until a pass flags nothing.
type Boxplot struct {
	params BoxplotParams
}

// NewBoxplot returns the boxplot method.
func NewBoxplot(p BoxplotParams) Boxplot {
	return Boxplot{params: p}
}

func (Boxplot) Name() verdict.OutlierMethod { return verdict.MethodBoxplot }

// Params returns the configured parameters.
func (b Boxplot) Params() BoxplotParams { return b.params }

func (b Boxplot) detect(metric cycling.MetricName, samples []Sample, _ map[cycling.ChannelID]cycling.ChannelSeries) MetricResult {
	res := b.Run(samples, b.params.RangeThresholds.For(metric))
	res.Metric = metric
	return res
}

// Run applies the iterative method to samples. Pass k uses the fence
// IQR × ShrinkFactor^k. A value is flagged only when it lies outside the
// fences and its distance from the nearer quartile exceeds rangeThreshold.
// With two or fewer survivors no pass runs.
func (b Boxplot) Run(samples []Sample, rangeThreshold float64) MetricResult {
	res := MetricResult{
		Flagged:   make(map[cycling.ChannelID]float64),
		Survivors: []int{len(samples)},
	}
	survivors := append([]Sample(nil), samples...)

	for pass := 1; pass <= b.params.MaxIterations && len(survivors) > 2; pass++ {
		values := make([]float64, len(survivors))
		for i, s := range survivors {
			values[i] = s.Value
		}
		q1, q3 := quartiles(values)
		iqr := q3 - q1
		if iqr == 0 {
			res.Degenerate = true
		}
		fence := iqr * math.Pow(b.params.ShrinkFactor, float64(pass))
		lower, upper := q1-fence, q3+fence

		kept := make([]Sample, 0, len(survivors))
		for _, s := range survivors {
			var dist float64
			switch {
			case s.Value < q1:
				dist = q1 - s.Value
			case s.Value > q3:
				dist = s.Value - q3
			}
			if (s.Value < lower || s.Value > upper) && dist > rangeThreshold {
				res.Flagged[s.Channel] = dist
				continue
			}
			kept = append(kept, s)
		}

		res.Survivors = append(res.Survivors, len(kept))
		if len(kept) == len(survivors) {
			break
		}
		survivors = kept
	}
	return res
}
