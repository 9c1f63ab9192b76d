// Package retention builds per-channel retention curves on a common cycle grid.
package retention

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/interp"

	"cellqc/domain/cycling"
	"cellqc/internal/errors"
)

// Component is a measured quantity tracked as a retention curve.
type Component string

const (
	ComponentCapacity Component = "capacity"
	ComponentVoltage  Component = "voltage"
	ComponentEnergy   Component = "energy"
)

func (c Component) quantity() cycling.Quantity {
	switch c {
	case ComponentVoltage:
		return cycling.QuantityVoltage
	case ComponentEnergy:
		return cycling.QuantityEnergy
	}
	return cycling.QuantityDischarge
}

// Interpolation methods.
const (
	Linear  = "linear"
	Cubic   = "cubic"
	Nearest = "nearest"
)

// Params configures the grid and resampling.
type Params struct {
	MinCycles      int
	MaxCycles      int
	CycleStep      int
	Interpolation  string
	DynamicRange   bool
	IncludeVoltage bool
	IncludeEnergy  bool
}

// CurvePoint is a retention ratio (%) at a cycle offset. Offset 1 is the
// baseline cycle itself.
type CurvePoint struct {
	Cycle int     `json:"cycle"`
	Ratio float64 `json:"ratio"`
}

// Curve is one channel's resampled retention curve for one component.
type Curve struct {
	Channel   cycling.ChannelID `json:"channel"`
	Component Component         `json:"component"`
	Points    []CurvePoint      `json:"points"`
}

// Ratios returns the curve values in grid order.
func (c Curve) Ratios() []float64 {
	out := make([]float64, len(c.Points))
	for i, p := range c.Points {
		out[i] = p.Ratio
	}
	return out
}

// ChannelInput is a channel with the cycle its curves are normalized to.
type ChannelInput struct {
	Series   cycling.ChannelSeries
	Baseline int
}

// CurveSet holds every channel's curves on one shared grid.
type CurveSet struct {
	Grid       []int
	Components []Component
	Curves     map[Component][]Curve
	// Dropped lists optional components left out because some channel
	// lacked a usable baseline value or, in dynamic range mode, ended
	// before the grid.
	Dropped map[Component]string
}

// Mean returns the point-wise mean curve of component c.
func (s *CurveSet) Mean(c Component) []float64 {
	curves := s.Curves[c]
	mean := make([]float64, len(s.Grid))
	if len(curves) == 0 {
		return mean
	}
	for _, curve := range curves {
		for i, p := range curve.Points {
			mean[i] += p.Ratio
		}
	}
	for i := range mean {
		mean[i] /= float64(len(curves))
	}
	return mean
}

// Builder turns channel series into a CurveSet.
type Builder struct {
	p Params
}

// NewBuilder creates a Builder.
func NewBuilder(p Params) *Builder {
	return &Builder{p: p}
}

type rawCurve struct {
	xs, ys []float64
}

// Build computes curves for every channel. Capacity is mandatory: a channel
// without a positive baseline discharge makes the whole set unbuildable.
func (b *Builder) Build(channels []ChannelInput) (*CurveSet, error) {
	if len(channels) == 0 {
		return nil, errors.InsufficientData("no channels to build retention curves from")
	}
	channels = append([]ChannelInput(nil), channels...)
	sort.Slice(channels, func(i, j int) bool { return channels[i].Series.ID < channels[j].Series.ID })

	wanted := []Component{ComponentCapacity}
	if b.p.IncludeVoltage {
		wanted = append(wanted, ComponentVoltage)
	}
	if b.p.IncludeEnergy {
		wanted = append(wanted, ComponentEnergy)
	}

	set := &CurveSet{
		Curves:  make(map[Component][]Curve),
		Dropped: make(map[Component]string),
	}
	raw := make(map[Component][]rawCurve)
	for _, comp := range wanted {
		curves := make([]rawCurve, 0, len(channels))
		var missing cycling.ChannelID
		for _, ch := range channels {
			rc, ok := rawRetention(ch, comp)
			if !ok {
				missing = ch.Series.ID
				break
			}
			curves = append(curves, rc)
		}
		if missing != "" {
			if comp == ComponentCapacity {
				return nil, errors.InsufficientData(fmt.Sprintf("channel %s has no usable baseline discharge capacity", missing))
			}
			set.Dropped[comp] = fmt.Sprintf("channel %s has no usable baseline %s", missing, comp)
			continue
		}
		raw[comp] = curves
		set.Components = append(set.Components, comp)
	}

	set.Grid = b.grid(raw[ComponentCapacity])
	if b.p.DynamicRange {
		end := set.Grid[len(set.Grid)-1]
		kept := set.Components[:0]
		for _, comp := range set.Components {
			if span, i := shortestSpan(raw[comp]); comp != ComponentCapacity && span < end {
				set.Dropped[comp] = fmt.Sprintf("channel %s has %s only up to cycle offset %d of %d", channels[i].Series.ID, comp, span, end)
				delete(raw, comp)
				continue
			}
			kept = append(kept, comp)
		}
		set.Components = kept
	}
	for _, comp := range set.Components {
		for i, rc := range raw[comp] {
			predict := b.predictor(rc)
			curve := Curve{Channel: channels[i].Series.ID, Component: comp, Points: make([]CurvePoint, len(set.Grid))}
			for j, n := range set.Grid {
				curve.Points[j] = CurvePoint{Cycle: n, Ratio: predict(float64(n))}
			}
			set.Curves[comp] = append(set.Curves[comp], curve)
		}
	}
	return set, nil
}

// rawRetention returns (offset, ratio%) pairs from the baseline onward.
func rawRetention(ch ChannelInput, comp Component) (rawCurve, bool) {
	q := comp.quantity()
	base, ok := ch.Series.At(ch.Baseline)
	if !ok {
		return rawCurve{}, false
	}
	baseValue, ok := base.Quantity(q).Get()
	if !ok || baseValue <= 0 {
		return rawCurve{}, false
	}
	var rc rawCurve
	for _, rec := range ch.Series.Records {
		if rec.CycleIndex < ch.Baseline {
			continue
		}
		if v, ok := rec.Quantity(q).Get(); ok {
			rc.xs = append(rc.xs, float64(rec.CycleIndex-ch.Baseline+1))
			rc.ys = append(rc.ys, v/baseValue*100)
		}
	}
	return rc, true
}

// shortestSpan returns the smallest last offset among curves and the index
// of the curve that has it.
func shortestSpan(curves []rawCurve) (span, index int) {
	for i, rc := range curves {
		if last := int(rc.xs[len(rc.xs)-1]); i == 0 || last < span {
			span, index = last, i
		}
	}
	return span, index
}

// grid returns the configured cycle offsets. In dynamic range mode the upper
// bound is clipped to the shortest capacity curve; when that leaves nothing
// between the bounds the grid collapses to the shortest span. Optional
// components that end before the grid does are dropped by Build.
func (b *Builder) grid(capacity []rawCurve) []int {
	lo, hi := b.p.MinCycles, b.p.MaxCycles
	if lo < 1 {
		lo = 1
	}
	step := b.p.CycleStep
	if step < 1 {
		step = 1
	}
	if b.p.DynamicRange {
		if shortest, _ := shortestSpan(capacity); shortest < hi {
			hi = shortest
		}
		if hi < lo {
			lo = hi
		}
	}
	var grid []int
	for n := lo; n <= hi; n += step {
		grid = append(grid, n)
	}
	return grid
}

// predictor fits the configured interpolation. Inputs beyond the observed
// offsets are clamped to the nearest observed end.
func (b *Builder) predictor(rc rawCurve) func(float64) float64 {
	xs, ys := rc.xs, rc.ys
	clamp := func(x float64) float64 {
		if x < xs[0] {
			return xs[0]
		}
		if last := xs[len(xs)-1]; x > last {
			return last
		}
		return x
	}
	if len(xs) == 1 {
		return func(float64) float64 { return ys[0] }
	}

	var fp interp.FittablePredictor
	switch b.p.Interpolation {
	case Nearest:
		return func(x float64) float64 { return nearest(xs, ys, clamp(x)) }
	case Cubic:
		if len(xs) >= 3 {
			fp = &interp.NaturalCubic{}
		}
	}
	if fp == nil {
		fp = &interp.PiecewiseLinear{}
	}
	if err := fp.Fit(xs, ys); err != nil {
		return func(x float64) float64 { return nearest(xs, ys, clamp(x)) }
	}
	return func(x float64) float64 { return fp.Predict(clamp(x)) }
}

func nearest(xs, ys []float64, x float64) float64 {
	i := sort.SearchFloat64s(xs, x)
	switch {
	case i == 0:
		return ys[0]
	case i == len(xs):
		return ys[len(ys)-1]
	case xs[i]-x < x-xs[i-1]:
		return ys[i]
	}
	return ys[i-1]
}
