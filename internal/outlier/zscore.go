package outlier

import (
	"math"

	"github.com/montanaflynn/stats"

	"cellqc/domain/cycling"
	"cellqc/domain/verdict"
)

// ZScoreParams configures the median/MAD method.
type ZScoreParams struct {
	Thresholds  Thresholds
	MADConstant float64
	MinMADRatio float64

	// UseTimeSeries adds a residual test on each channel's per-cycle series
	// of the metric's underlying quantity.
	UseTimeSeries    bool
	MinSamplesForSTL int
	SeasonalPeriod   int
}

// ZScoreMAD flags values whose robust z-score exceeds the metric threshold.
type ZScoreMAD struct {
	params ZScoreParams
}

// NewZScoreMAD returns the robust z-score method.
func NewZScoreMAD(p ZScoreParams) ZScoreMAD {
	return ZScoreMAD{params: p}
}

func (ZScoreMAD) Name() verdict.OutlierMethod { return verdict.MethodZScoreMAD }

// Params returns the configured parameters.
func (z ZScoreMAD) Params() ZScoreParams { return z.params }

func (z ZScoreMAD) detect(metric cycling.MetricName, samples []Sample, series map[cycling.ChannelID]cycling.ChannelSeries) MetricResult {
	threshold := z.params.Thresholds.For(metric)
	res := z.Run(samples, threshold)
	res.Metric = metric

	if z.params.UseTimeSeries {
		residual := z.residualScores(metric.Quantity(), series)
		for ch, score := range residual {
			if math.Abs(score) > threshold {
				if prev, ok := res.Flagged[ch]; !ok || math.Abs(score) > math.Abs(prev) {
					res.Flagged[ch] = score
				}
			}
		}
	}
	return res
}

// Run scores samples across channels and flags |score| > threshold.
// A vector with zero spread after the MAD floor flags nothing.
func (z ZScoreMAD) Run(samples []Sample, threshold float64) MetricResult {
	res := MetricResult{Flagged: make(map[cycling.ChannelID]float64)}
	if len(samples) == 0 {
		return res
	}
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Value
	}
	scores, degenerate := robustZ(values, nil, z.params.MADConstant, z.params.MinMADRatio)
	res.Degenerate = degenerate
	for i, s := range samples {
		if math.Abs(scores[i]) > threshold {
			res.Flagged[s.Channel] = scores[i]
		}
	}
	return res
}

// minChannelsPerCycle is the number of channels that must share a cycle
// before their residuals at that cycle are compared.
const minChannelsPerCycle = 3

// residualScores decomposes the per-cycle series of q for every channel with
// enough observations, then compares each channel's residual at cycle k with
// the batch median residual at cycle k. Shape shared by every channel, such
// as the formation step at cycle 1, cancels out. The deviations are pooled
// and each channel gets its largest-magnitude robust z-score. The MAD floor
// is taken relative to the raw series magnitude since deviations are centered
// near zero.
func (z ZScoreMAD) residualScores(q cycling.Quantity, series map[cycling.ChannelID]cycling.ChannelSeries) map[cycling.ChannelID]float64 {
	out := make(map[cycling.ChannelID]float64)
	if q == cycling.QuantityNone {
		return out
	}

	type channelResidual struct {
		channel  cycling.ChannelID
		cycles   []int
		residual []float64
	}
	var (
		channels []channelResidual
		raw      []float64
	)
	byCycle := make(map[int][]float64)
	for _, id := range sortedChannelIDs(series) {
		cycles, values := series[id].Values(q)
		if len(values) < z.params.MinSamplesForSTL {
			continue
		}
		d := Decompose(values, z.params.SeasonalPeriod)
		channels = append(channels, channelResidual{channel: id, cycles: cycles, residual: d.Residual})
		for i, c := range cycles {
			byCycle[c] = append(byCycle[c], d.Residual[i])
		}
		raw = append(raw, values...)
	}

	centers := make(map[int]float64, len(byCycle))
	for c, residuals := range byCycle {
		if len(residuals) < minChannelsPerCycle {
			continue
		}
		if m, err := stats.Median(residuals); err == nil {
			centers[c] = m
		}
	}

	type span struct {
		channel    cycling.ChannelID
		start, end int
	}
	var (
		pooled []float64
		spans  []span
	)
	for _, ch := range channels {
		sp := span{channel: ch.channel, start: len(pooled)}
		for i, c := range ch.cycles {
			if center, ok := centers[c]; ok {
				pooled = append(pooled, ch.residual[i]-center)
			}
		}
		sp.end = len(pooled)
		if sp.end > sp.start {
			spans = append(spans, sp)
		}
	}
	if len(pooled) == 0 {
		return out
	}

	scores, degenerate := robustZ(pooled, raw, z.params.MADConstant, z.params.MinMADRatio)
	if degenerate {
		return out
	}
	for _, sp := range spans {
		var worst float64
		for _, s := range scores[sp.start:sp.end] {
			if math.Abs(s) > math.Abs(worst) {
				worst = s
			}
		}
		out[sp.channel] = worst
	}
	return out
}
