package reference

import (
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"cellqc/domain/cycling"
	"cellqc/domain/verdict"
	"cellqc/internal/errors"
)

// minRelativeStd treats a feature as constant when its spread is rounding
// noise relative to its mean.
const minRelativeStd = 1e-9

// PCAParams configures principal-component selection.
type PCAParams struct {
	MinChannels int
	Components  int
	Features    []cycling.MetricName
}

// PCA projects standardized metric vectors onto their leading principal
// components and picks the channel nearest the centroid.
type PCA struct {
	p PCAParams
}

// NewPCA creates the PCA strategy.
func NewPCA(p PCAParams) *PCA {
	return &PCA{p: p}
}

func (s *PCA) Method() verdict.SelectionMethod { return verdict.SelectionPCA }

func (s *PCA) Select(in Input) (*verdict.ReferenceSelection, error) {
	candidates := in.sorted()
	n := len(candidates)
	if n < s.p.MinChannels || n < 2 {
		return nil, unmet("%d channels, need %d", n, max(s.p.MinChannels, 2))
	}

	columns := s.featureColumns(candidates)
	if len(columns) < 2 {
		return nil, unmet("%d usable features, need 2", len(columns))
	}

	d := len(columns)
	data := mat.NewDense(n, d, nil)
	for j, col := range columns {
		mean, std := stat.MeanStdDev(col, nil)
		for i, v := range col {
			data.Set(i, j, (v-mean)/std)
		}
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(data, nil); !ok {
		return nil, unmet("%v", errors.NumericalFailure("principal component decomposition failed", nil))
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	vars := pc.VarsTo(nil)

	_, available := vecs.Dims()
	k := s.p.Components
	if k < 1 || k > available {
		k = available
	}

	var proj mat.Dense
	proj.Mul(data, vecs.Slice(0, d, 0, k))

	centroid := make([]float64, k)
	for j := range centroid {
		centroid[j] = stat.Mean(mat.Col(nil, j, &proj), nil)
	}
	scores := make([]float64, n)
	for i := range scores {
		var sum float64
		for j := 0; j < k; j++ {
			diff := proj.At(i, j) - centroid[j]
			sum += diff * diff
		}
		scores[i] = math.Sqrt(sum)
	}

	var explained, total float64
	for j, v := range vars {
		total += v
		if j < k {
			explained += v
		}
	}
	ratio := 0.0
	if total > 0 {
		ratio = explained / total
	}

	best := argmin(scores)
	sel := &verdict.ReferenceSelection{
		Channel:       candidates[best].Series.ID,
		Method:        s.Method(),
		Score:         scores[best],
		ChannelScores: make(map[cycling.ChannelID]float64, n),
		Details: map[string]float64{
			"components":         float64(k),
			"features":           float64(d),
			"explained_variance": ratio,
		},
	}
	for i, c := range candidates {
		sel.ChannelScores[c.Series.ID] = scores[i]
	}
	return sel, nil
}

// featureColumns returns one column per configured feature that at least one
// candidate has and that varies across candidates. Gaps are filled with the
// column median.
func (s *PCA) featureColumns(candidates []Candidate) [][]float64 {
	var columns [][]float64
	for _, f := range s.p.Features {
		var present []float64
		for _, c := range candidates {
			if v, ok := c.Metrics.Get(f); ok {
				present = append(present, v)
			}
		}
		if len(present) == 0 {
			continue
		}
		fill, _ := stats.Median(present)

		col := make([]float64, len(candidates))
		for i, c := range candidates {
			v, ok := c.Metrics.Get(f)
			if !ok {
				v = fill
			}
			col[i] = v
		}
		if mean, std := stat.MeanStdDev(col, nil); math.IsNaN(std) || std <= minRelativeStd*math.Max(1, math.Abs(mean)) {
			continue
		}
		columns = append(columns, col)
	}
	return columns
}
