package reference

import (
	"cellqc/domain/cycling"
	"cellqc/domain/verdict"
	"cellqc/internal/errors"
	"cellqc/internal/retention"
)

// CurveMSEParams configures retention-curve selection.
type CurveMSEParams struct {
	MinChannels    int
	Curves         retention.Params
	Weights        map[retention.Component]float64
	UseWeightedMSE bool
	WeightMethod   string
	WeightFactor   float64
	LateEmphasis   float64
}

// CurveMSE picks the channel whose retention curves are closest to the batch
// mean curves.
type CurveMSE struct {
	p       CurveMSEParams
	builder *retention.Builder
}

// NewCurveMSE creates the retention-curve strategy.
func NewCurveMSE(p CurveMSEParams) *CurveMSE {
	return &CurveMSE{p: p, builder: retention.NewBuilder(p.Curves)}
}

func (s *CurveMSE) Method() verdict.SelectionMethod { return verdict.SelectionRetentionCurveMSE }

func (s *CurveMSE) Select(in Input) (*verdict.ReferenceSelection, error) {
	candidates := in.sorted()
	if len(candidates) < s.p.MinChannels || len(candidates) < 2 {
		return nil, unmet("%d channels, need %d", len(candidates), max(s.p.MinChannels, 2))
	}

	inputs := make([]retention.ChannelInput, len(candidates))
	for i, c := range candidates {
		inputs[i] = retention.ChannelInput{Series: c.Series, Baseline: c.Baseline}
	}
	set, err := s.builder.Build(inputs)
	if err != nil {
		if errors.HasCode(err, errors.CodeInsufficientData) {
			return nil, unmet("%v", err)
		}
		return nil, err
	}

	var weights []float64
	if s.p.UseWeightedMSE {
		weights = CycleWeights(len(set.Grid), s.p.WeightMethod, s.p.WeightFactor, s.p.LateEmphasis)
	}

	scores := make([]float64, len(candidates))
	for _, comp := range set.Components {
		w := s.p.Weights[comp]
		if w == 0 {
			continue
		}
		mean := set.Mean(comp)
		for i, curve := range set.Curves[comp] {
			scores[i] += w * WeightedMSE(curve.Ratios(), mean, weights)
		}
	}

	best := argmin(scores)
	sel := &verdict.ReferenceSelection{
		Channel:       candidates[best].Series.ID,
		Method:        s.Method(),
		Score:         scores[best],
		ChannelScores: make(map[cycling.ChannelID]float64, len(candidates)),
		Details: map[string]float64{
			"grid_points": float64(len(set.Grid)),
			"grid_start":  float64(set.Grid[0]),
			"grid_end":    float64(set.Grid[len(set.Grid)-1]),
			"components":  float64(len(set.Components)),
			"dropped":     float64(len(set.Dropped)),
		},
	}
	for i, c := range candidates {
		sel.ChannelScores[c.Series.ID] = scores[i]
	}
	return sel, nil
}
