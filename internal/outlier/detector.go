package outlier

import (
	"sort"

	"cellqc/domain/cycling"
	"cellqc/domain/verdict"
)

// Input is one batch's extracted metrics plus the series they came from.
type Input struct {
	Metrics map[cycling.ChannelID]cycling.MetricVector
	Series  map[cycling.ChannelID]cycling.ChannelSeries
}

// Result is the facade's output for one batch.
type Result struct {
	Verdicts  []verdict.OutlierVerdict
	PerMetric []MetricResult
	// Inconsistent is set when every channel of a multi-channel batch was
	// flagged. The flags stand; the batch has no clean channel left.
	Inconsistent bool
}

// Outliers returns the channels marked as outliers.
func (r Result) Outliers() map[cycling.ChannelID]bool {
	out := make(map[cycling.ChannelID]bool)
	for _, v := range r.Verdicts {
		if v.Outlier {
			out[v.Channel] = true
		}
	}
	return out
}

// Detector runs one Method over each tracked metric and unions the flags.
type Detector struct {
	method  Method
	metrics []cycling.MetricName
}

// NewDetector creates a Detector tracking metrics with method.
func NewDetector(method Method, metrics []cycling.MetricName) *Detector {
	return &Detector{method: method, metrics: append([]cycling.MetricName(nil), metrics...)}
}

// Method returns the active method.
func (d *Detector) Method() Method { return d.method }

// Detect produces one verdict per channel, sorted by channel ID. Batches of
// fewer than two channels have no outliers. Degenerate inputs never fail.
func (d *Detector) Detect(in Input) Result {
	ids := sortedChannelIDs(in.Metrics)
	verdicts := make(map[cycling.ChannelID]*verdict.OutlierVerdict, len(ids))
	for _, id := range ids {
		verdicts[id] = &verdict.OutlierVerdict{Channel: id, Method: d.method.Name()}
	}

	var res Result
	if len(ids) >= 2 {
		for _, m := range d.metrics {
			var samples []Sample
			for _, id := range ids {
				if v, ok := in.Metrics[id].Get(m); ok {
					samples = append(samples, Sample{Channel: id, Value: v})
				}
			}
			mr := d.method.detect(m, samples, in.Series)
			mr.Metric = m
			res.PerMetric = append(res.PerMetric, mr)
			for ch, score := range mr.Flagged {
				v, ok := verdicts[ch]
				if !ok {
					continue
				}
				v.Outlier = true
				v.TriggeredBy = append(v.TriggeredBy, m)
				if v.Scores == nil {
					v.Scores = make(map[cycling.MetricName]float64)
				}
				v.Scores[m] = score
			}
		}
	}

	flagged := 0
	for _, id := range ids {
		v := verdicts[id]
		sort.Slice(v.TriggeredBy, func(i, j int) bool { return v.TriggeredBy[i] < v.TriggeredBy[j] })
		if v.Outlier {
			flagged++
		}
	}
	res.Inconsistent = len(ids) >= 2 && flagged == len(ids)

	res.Verdicts = make([]verdict.OutlierVerdict, 0, len(ids))
	for _, id := range ids {
		res.Verdicts = append(res.Verdicts, *verdicts[id])
	}
	return res
}

func sortedChannelIDs[V any](m map[cycling.ChannelID]V) []cycling.ChannelID {
	ids := make([]cycling.ChannelID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
