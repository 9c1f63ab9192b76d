package analysis

import (
	"github.com/montanaflynn/stats"

	"cellqc/domain/cycling"
)

// statistics summarizes the surviving channels of res.
func (a *Analyzer) statistics(res BatchResult, excluded map[cycling.ChannelID]bool) Statistics {
	st := Statistics{
		Channels: res.Statistics.Channels,
		Analyzed: res.Statistics.Analyzed,
		Outliers: len(excluded),
	}
	var discharge, efficiency []float64
	for _, id := range sortedIDs(res.Metrics) {
		if excluded[id] {
			continue
		}
		m := res.Metrics[id]
		st.Survivors++
		if v, ok := m.Get(cycling.MetricFirstDischarge); ok {
			discharge = append(discharge, v)
		}
		if v, ok := m.Get(cycling.MetricFirstEfficiency); ok {
			efficiency = append(efficiency, v)
		}
	}
	st.FirstDischarge = summarize(discharge)
	st.FirstEfficiency = summarize(efficiency)
	if res.Selection != nil {
		st.Reference = res.Metrics[res.Selection.Channel]
	}
	return st
}

func summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	data := stats.Float64Data(values)
	s := Summary{Count: len(values)}
	s.Mean, _ = data.Mean()
	s.Min, _ = data.Min()
	s.Max, _ = data.Max()
	s.Median, _ = data.Median()
	if len(values) > 1 {
		s.StdDev, _ = data.StandardDeviationSample()
	}
	return s
}
