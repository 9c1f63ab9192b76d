package reference

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cellqc/domain/cycling"
	"cellqc/domain/verdict"
	"cellqc/internal/errors"
	"cellqc/internal/retention"
	"cellqc/internal/testkit"
)

func curveParams() CurveMSEParams {
	return CurveMSEParams{
		MinChannels: 2,
		Curves: retention.Params{
			MinCycles:      5,
			MaxCycles:      800,
			CycleStep:      1,
			Interpolation:  retention.Linear,
			DynamicRange:   true,
			IncludeVoltage: true,
			IncludeEnergy:  true,
		},
		Weights: map[retention.Component]float64{
			retention.ComponentCapacity: 0.6,
			retention.ComponentVoltage:  0.1,
			retention.ComponentEnergy:   0.3,
		},
		UseWeightedMSE: true,
		WeightMethod:   WeightLinear,
		WeightFactor:   1.0,
		LateEmphasis:   2.0,
	}
}

func pcaParams() PCAParams {
	return PCAParams{
		MinChannels: 3,
		Components:  2,
		Features: []cycling.MetricName{
			cycling.MetricFirstDischarge,
			cycling.MetricFirstVoltage,
			cycling.MetricCycle4Retention,
		},
	}
}

func candidate(s cycling.ChannelSeries) Candidate {
	m := cycling.MetricVector{}
	if v, ok := s.Records[0].DischargeCapacity.Get(); ok {
		m[cycling.MetricFirstDischarge] = v
	}
	return Candidate{Series: s, Metrics: m, Baseline: 1}
}

func withMetrics(id string, m cycling.MetricVector) Candidate {
	return Candidate{Series: testkit.SeriesFromDischarge(id, 200, 199, 198), Metrics: m, Baseline: 1}
}

func trailingBatch() Input {
	a := testkit.SeriesFromFunc("A", 100, func(k int) float64 { return 220 * (1 - 0.001*float64(k)) })
	c := testkit.SeriesFromFunc("C", 100, func(k int) float64 { return 210 * (1 - 0.0012*float64(k)) })
	b := testkit.SeriesFromFunc("B", 100, func(k int) float64 {
		if k <= 50 {
			return 210 * (1 - 0.0012*float64(k))
		}
		return 210*(1-0.0012*50) - 1.5*float64(k-50)
	})
	return Input{BatchKey: "trailing", Candidates: []Candidate{candidate(a), candidate(b), candidate(c)}}
}

func TestCurveMSE_SelectsChannelClosestToMeanCurve(t *testing.T) {
	sel, err := NewCurveMSE(curveParams()).Select(trailingBatch())
	require.NoError(t, err)

	assert.Equal(t, verdict.SelectionRetentionCurveMSE, sel.Method)
	assert.Equal(t, cycling.ChannelID("C"), sel.Channel, "neither the highest early capacity nor the trailing channel")
	assert.Less(t, sel.ChannelScores["C"], sel.ChannelScores["A"])
	assert.Less(t, sel.ChannelScores["A"], sel.ChannelScores["B"])
	assert.Equal(t, 96.0, sel.Details["grid_points"])
	assert.Equal(t, 3.0, sel.Details["components"])
	assert.Equal(t, 0.0, sel.Details["dropped"])
}

func TestSelector_NeverFallsThroughWhenCurvesApply(t *testing.T) {
	for seed := int64(1); seed <= 10; seed++ {
		for n := 2; n <= 6; n++ {
			cfg := testkit.DefaultCellConfig()
			cfg.Seed = seed
			cfg.Noise = 0.01
			batch := testkit.NewCellGenerator(cfg).Batch(fmt.Sprintf("b%d", seed), n)

			in := Input{BatchKey: batch.Key}
			for _, ch := range batch.Channels {
				in.Candidates = append(in.Candidates, candidate(ch))
			}
			out, err := NewSelector(NewCurveMSE(curveParams()), NewPCA(pcaParams()), Traditional{}).Select(in)
			require.NoError(t, err)
			if out.Selection.Method != verdict.SelectionRetentionCurveMSE || len(out.Attempts) != 0 {
				t.Errorf("seed %d, %d channels: selected by %s after %v", seed, n, out.Selection.Method, out.Attempts)
			}
		}
	}
}

func TestSelector_FallsThroughInOrder(t *testing.T) {
	p := curveParams()
	p.MinChannels = 10
	in := Input{BatchKey: "b", Candidates: []Candidate{
		withMetrics("a", cycling.MetricVector{cycling.MetricFirstDischarge: 200, cycling.MetricFirstVoltage: 3.6}),
		withMetrics("b", cycling.MetricVector{cycling.MetricFirstDischarge: 210, cycling.MetricFirstVoltage: 3.6}),
		withMetrics("c", cycling.MetricVector{cycling.MetricFirstDischarge: 230, cycling.MetricFirstVoltage: 3.6}),
	}}

	out, err := NewSelector(NewCurveMSE(p), NewPCA(pcaParams())).Select(in)
	require.NoError(t, err)
	assert.Equal(t, verdict.SelectionTraditional, out.Selection.Method)
	assert.Equal(t, cycling.ChannelID("b"), out.Selection.Channel)
	assert.InDelta(t, 10.0/3, out.Selection.Score, 1e-9)
	require.Len(t, out.Attempts, 2)
	assert.Equal(t, verdict.SelectionRetentionCurveMSE, out.Attempts[0].Method)
	assert.Equal(t, verdict.SelectionPCA, out.Attempts[1].Method)
	assert.Contains(t, out.Attempts[1].Reason, "usable features")
}

func TestCurveMSE_MissingBaselineIsUnmet(t *testing.T) {
	in := trailingBatch()
	in.Candidates[0].Series.Records[0].DischargeCapacity = cycling.Missing()

	_, err := NewCurveMSE(curveParams()).Select(in)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, ErrPreconditionsUnmet))
}

func TestPCA_SelectsChannelAtCentroid(t *testing.T) {
	row := func(id string, fd, v, c4 float64) Candidate {
		return withMetrics(id, cycling.MetricVector{
			cycling.MetricFirstDischarge:  fd,
			cycling.MetricFirstVoltage:    v,
			cycling.MetricCycle4Retention: c4,
		})
	}
	in := Input{BatchKey: "b", Candidates: []Candidate{
		row("ch-a", 200, 3.6, 93),
		row("ch-b", 220, 3.8, 97),
		row("ch-c", 210, 3.7, 95),
		row("ch-d", 200, 3.8, 96),
		row("ch-e", 220, 3.6, 94),
	}}

	sel, err := NewPCA(pcaParams()).Select(in)
	require.NoError(t, err)
	assert.Equal(t, verdict.SelectionPCA, sel.Method)
	assert.Equal(t, cycling.ChannelID("ch-c"), sel.Channel)
	assert.InDelta(t, 0, sel.Score, 1e-9)
	assert.Equal(t, 2.0, sel.Details["components"])
	assert.Equal(t, 3.0, sel.Details["features"])
	assert.Greater(t, sel.Details["explained_variance"], 0.0)
	assert.LessOrEqual(t, sel.Details["explained_variance"], 1.0+1e-12)
}

func TestPCA_FillsMissingFeatureWithMedian(t *testing.T) {
	in := Input{BatchKey: "b", Candidates: []Candidate{
		withMetrics("a", cycling.MetricVector{cycling.MetricFirstDischarge: 200, cycling.MetricFirstVoltage: 3.6}),
		withMetrics("b", cycling.MetricVector{cycling.MetricFirstDischarge: 210}),
		withMetrics("c", cycling.MetricVector{cycling.MetricFirstDischarge: 220, cycling.MetricFirstVoltage: 3.8}),
	}}

	sel, err := NewPCA(pcaParams()).Select(in)
	require.NoError(t, err)
	assert.Equal(t, cycling.ChannelID("b"), sel.Channel)
	assert.InDelta(t, 0, sel.Score, 1e-9)
}

func TestPCA_PreconditionsUnmet(t *testing.T) {
	tests := []struct {
		name string
		in   Input
	}{
		{"too few channels", Input{Candidates: []Candidate{
			withMetrics("a", cycling.MetricVector{cycling.MetricFirstDischarge: 200, cycling.MetricFirstVoltage: 3.6}),
			withMetrics("b", cycling.MetricVector{cycling.MetricFirstDischarge: 210, cycling.MetricFirstVoltage: 3.7}),
		}}},
		{"constant features", Input{Candidates: []Candidate{
			withMetrics("a", cycling.MetricVector{cycling.MetricFirstDischarge: 200, cycling.MetricFirstVoltage: 3.6}),
			withMetrics("b", cycling.MetricVector{cycling.MetricFirstDischarge: 200, cycling.MetricFirstVoltage: 3.6}),
			withMetrics("c", cycling.MetricVector{cycling.MetricFirstDischarge: 200, cycling.MetricFirstVoltage: 3.6}),
		}}},
		{"no features", Input{Candidates: []Candidate{
			withMetrics("a", nil), withMetrics("b", nil), withMetrics("c", nil),
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPCA(pcaParams()).Select(tt.in)
			if !stderrors.Is(err, ErrPreconditionsUnmet) {
				t.Errorf("expected preconditions unmet, got %v", err)
			}
		})
	}
}

func TestTraditional(t *testing.T) {
	t.Run("closest to mean", func(t *testing.T) {
		in := Input{Candidates: []Candidate{
			withMetrics("c", cycling.MetricVector{cycling.MetricFirstDischarge: 230}),
			withMetrics("a", cycling.MetricVector{cycling.MetricFirstDischarge: 200}),
			withMetrics("b", cycling.MetricVector{cycling.MetricFirstDischarge: 210}),
			withMetrics("d", nil),
		}}
		sel, err := Traditional{}.Select(in)
		require.NoError(t, err)
		assert.Equal(t, cycling.ChannelID("b"), sel.Channel)
		assert.InDelta(t, 10.0/3, sel.Score, 1e-9)
		assert.InDelta(t, 640.0/3, sel.Details["mean_first_discharge"], 1e-9)
		assert.NotContains(t, sel.ChannelScores, cycling.ChannelID("d"))
	})

	t.Run("ties go to the lower id", func(t *testing.T) {
		in := Input{Candidates: []Candidate{
			withMetrics("z", cycling.MetricVector{cycling.MetricFirstDischarge: 220}),
			withMetrics("y", cycling.MetricVector{cycling.MetricFirstDischarge: 200}),
		}}
		sel, err := Traditional{}.Select(in)
		require.NoError(t, err)
		assert.Equal(t, cycling.ChannelID("y"), sel.Channel)
	})

	t.Run("no first discharge anywhere", func(t *testing.T) {
		in := Input{Candidates: []Candidate{withMetrics("b", nil), withMetrics("a", nil)}}
		sel, err := Traditional{}.Select(in)
		require.NoError(t, err)
		assert.Equal(t, cycling.ChannelID("a"), sel.Channel)
		assert.Zero(t, sel.Score)
	})
}

func TestSelector_SingleAndEmpty(t *testing.T) {
	s := NewSelector(NewCurveMSE(curveParams()), NewPCA(pcaParams()))
	assert.Equal(t, []verdict.SelectionMethod{
		verdict.SelectionRetentionCurveMSE, verdict.SelectionPCA, verdict.SelectionTraditional,
	}, s.Strategies())

	out, err := s.Select(Input{BatchKey: "solo", Candidates: []Candidate{
		candidate(testkit.SeriesFromDischarge("only", 205, 204, 203, 202, 201, 200)),
	}})
	require.NoError(t, err)
	assert.Equal(t, cycling.ChannelID("only"), out.Selection.Channel)
	assert.Equal(t, verdict.SelectionTraditional, out.Selection.Method)
	assert.Zero(t, out.Selection.Score)
	assert.Empty(t, out.Attempts)

	_, err = s.Select(Input{BatchKey: "empty"})
	assert.Equal(t, errors.CodeInsufficientData, errors.GetCode(err))
}

func TestSelector_Idempotent(t *testing.T) {
	s := NewSelector(NewCurveMSE(curveParams()), NewPCA(pcaParams()), Traditional{})
	first, err := s.Select(trailingBatch())
	require.NoError(t, err)
	second, err := s.Select(trailingBatch())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCycleWeights(t *testing.T) {
	for _, method := range []string{WeightConstant, WeightLinear, WeightExponential} {
		w := CycleWeights(20, method, 1.0, 2.0)
		var sum float64
		for _, v := range w {
			sum += v
		}
		assert.InDelta(t, 20, sum, 1e-9, method)
		assert.Greater(t, w[14]/w[13], 1.9, "%s: late region starts at 70%%", method)
		assert.Less(t, w[13]/w[12], 1.9, method)
		if method == WeightConstant {
			assert.InDelta(t, w[0], w[13], 1e-12)
		} else {
			assert.Less(t, w[0], w[13], method)
		}
	}
	assert.Equal(t, []float64{1}, CycleWeights(1, WeightLinear, 1, 3))
	assert.Empty(t, CycleWeights(0, WeightLinear, 1, 3))
}

func TestWeightedMSE_LateEmphasisIsMonotone(t *testing.T) {
	const n = 30
	mean := make([]float64, n)
	early := make([]float64, n)
	late := make([]float64, n)
	early[0] = 1
	late[n-1] = 1

	prev := -1.0
	for _, emphasis := range []float64{1, 1.5, 2, 3, 5, 10} {
		w := CycleWeights(n, WeightLinear, 1, emphasis)
		share := WeightedMSE(late, mean, w) / (WeightedMSE(late, mean, w) + WeightedMSE(early, mean, w))
		if share <= prev {
			t.Errorf("emphasis %v: late share %v did not increase from %v", emphasis, share, prev)
		}
		prev = share
	}

	assert.InDelta(t, 1.0/n, WeightedMSE(late, mean, nil), 1e-12)
}
