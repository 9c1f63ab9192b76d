package reference

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"cellqc/domain/cycling"
	"cellqc/domain/verdict"
)

// Traditional picks the channel whose first-cycle discharge capacity is
// closest to the batch mean. It never falls through.
type Traditional struct{}

func (Traditional) Method() verdict.SelectionMethod { return verdict.SelectionTraditional }

func (t Traditional) Select(in Input) (*verdict.ReferenceSelection, error) {
	candidates := in.sorted()
	if len(candidates) == 0 {
		return nil, unmet("no candidates")
	}
	sel := &verdict.ReferenceSelection{
		Channel:       candidates[0].Series.ID,
		Method:        t.Method(),
		ChannelScores: make(map[cycling.ChannelID]float64),
	}

	var ids []cycling.ChannelID
	var values []float64
	for _, c := range candidates {
		if v, ok := c.Metrics.Get(cycling.MetricFirstDischarge); ok {
			ids = append(ids, c.Series.ID)
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		sel.ChannelScores[sel.Channel] = 0
		return sel, nil
	}

	mean := stat.Mean(values, nil)

	scores := make([]float64, len(values))
	for i, v := range values {
		scores[i] = math.Abs(v - mean)
		sel.ChannelScores[ids[i]] = scores[i]
	}
	best := argmin(scores)
	sel.Channel = ids[best]
	sel.Score = scores[best]
	sel.Details = map[string]float64{"mean_first_discharge": mean}
	return sel, nil
}
