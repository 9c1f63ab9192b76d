// Package metrics reduces a channel's cycle history to scalar summary metrics
// and locates the first full-rate (1C) cycle used as the retention baseline.
package metrics

import (
	"strings"

	"cellqc/domain/cycling"
)

// Range is an inclusive plausibility window for a measurement.
type Range struct {
	Min, Max float64
}

// ValidRanges bounds readings accepted from instruments. Readings outside
// their window are treated as missing.
type ValidRanges struct {
	Capacity   Range
	Voltage    Range
	Efficiency Range
	Energy     Range
}

// Params configures extraction.
type Params struct {
	MinCyclesRequired      int
	OneCModes              []string
	NonOneCModes           []string
	OneCSearchCycles       int
	RatioThreshold         float64
	DischargeDiffThreshold float64
	DefaultOneCCycle       int
	DecayCheckCycle        int
	RetentionTargetCycle   int
	Ranges                 ValidRanges
}

// OneCSource records how the 1C cycle was found.
type OneCSource string

const (
	OneCFromModeLabel OneCSource = "mode_label"
	OneCFromHeuristic OneCSource = "heuristic"
	OneCFromDefault   OneCSource = "default"
	OneCNotApplicable OneCSource = "non_1c_mode"
	OneCFirstCycle    OneCSource = "first_cycle"
)

// OneC is the located 1C first cycle of a channel.
type OneC struct {
	Cycle  int        `json:"cycle"`
	Found  bool       `json:"found"`
	Source OneCSource `json:"source"`
}

// Extractor computes MetricVectors. It holds no state besides its params.
type Extractor struct {
	p Params
}

// New creates an Extractor.
func New(p Params) *Extractor {
	return &Extractor{p: p}
}

// Eligible reports whether the series has enough cycles to take part in
// batch comparison.
func (e *Extractor) Eligible(s cycling.ChannelSeries) bool {
	return s.Len() >= e.p.MinCyclesRequired
}

// Sanitize returns a copy of s with implausible readings replaced by missing
// values, and the number of readings dropped.
func (e *Extractor) Sanitize(s cycling.ChannelSeries) (cycling.ChannelSeries, int) {
	out := s
	out.Records = make([]cycling.CycleRecord, len(s.Records))
	dropped := 0
	clip := func(r cycling.Reading, rg Range) cycling.Reading {
		if r.Valid && !r.Within(rg.Min, rg.Max) {
			dropped++
			return cycling.Missing()
		}
		return r
	}
	r := e.p.Ranges
	for i, rec := range s.Records {
		rec.ChargeCapacity = clip(rec.ChargeCapacity, r.Capacity)
		rec.DischargeCapacity = clip(rec.DischargeCapacity, r.Capacity)
		rec.Efficiency = clip(rec.Efficiency, r.Efficiency)
		rec.Voltage = clip(rec.Voltage, r.Voltage)
		rec.ChargeEndVoltage = clip(rec.ChargeEndVoltage, r.Voltage)
		rec.Energy = clip(rec.Energy, r.Energy)
		out.Records[i] = rec
	}
	return out, dropped
}

// LocateOneC finds the first 1C cycle: an explicit mode label first, then a
// drop in discharge capacity between consecutive early cycles, then the
// configured default cycle. Channels tested in a non-1C mode have none.
func (e *Extractor) LocateOneC(s cycling.ChannelSeries) OneC {
	first, ok := s.First()
	if !ok {
		return OneC{Source: OneCFirstCycle}
	}
	if matchesAny(s.Mode, e.p.NonOneCModes) {
		return OneC{Cycle: first.CycleIndex, Source: OneCNotApplicable}
	}

	for _, rec := range s.Records {
		if rec.Mode != "" && matchesAny(rec.Mode, e.p.OneCModes) {
			return OneC{Cycle: rec.CycleIndex, Found: true, Source: OneCFromModeLabel}
		}
	}

	limit := e.p.OneCSearchCycles
	if limit > s.Len() {
		limit = s.Len()
	}
	for i := 1; i < limit; i++ {
		prev, okPrev := s.Records[i-1].DischargeCapacity.Get()
		cur, okCur := s.Records[i].DischargeCapacity.Get()
		if !okPrev || !okCur || prev <= 0 {
			continue
		}
		if cur/prev < e.p.RatioThreshold && prev-cur > e.p.DischargeDiffThreshold {
			return OneC{Cycle: s.Records[i].CycleIndex, Found: true, Source: OneCFromHeuristic}
		}
	}

	if _, ok := s.At(e.p.DefaultOneCCycle); ok {
		return OneC{Cycle: e.p.DefaultOneCCycle, Found: true, Source: OneCFromDefault}
	}
	return OneC{Cycle: first.CycleIndex, Source: OneCFirstCycle}
}

// Baseline returns the cycle retention is measured against: the 1C cycle when
// one exists, else the first cycle.
func (e *Extractor) Baseline(s cycling.ChannelSeries) int {
	return e.LocateOneC(s).Cycle
}

// Extract computes the MetricVector of s. Metrics whose inputs are missing
// are left out.
func (e *Extractor) Extract(s cycling.ChannelSeries) cycling.MetricVector {
	v := cycling.MetricVector{}
	first, ok := s.First()
	if !ok {
		return v
	}

	put := func(m cycling.MetricName, r cycling.Reading) {
		if x, ok := r.Get(); ok {
			v[m] = x
		}
	}
	put(cycling.MetricFirstCharge, first.ChargeCapacity)
	put(cycling.MetricFirstDischarge, first.DischargeCapacity)
	put(cycling.MetricFirstEfficiency, first.EfficiencyOrDerived())
	put(cycling.MetricFirstVoltage, first.Voltage)
	put(cycling.MetricFirstChargeVoltage, first.ChargeEndVoltage)
	put(cycling.MetricFirstEnergy, first.Energy)

	firstDischarge, hasFirst := first.DischargeCapacity.Get()
	hasFirst = hasFirst && firstDischarge > 0

	if rec, ok := s.At(e.p.DecayCheckCycle); ok {
		put(cycling.MetricCycle4Discharge, rec.DischargeCapacity)
		if d, ok := rec.DischargeCapacity.Get(); ok && hasFirst {
			v[cycling.MetricCycle4Retention] = d / firstDischarge * 100
		}
	}

	oneC := e.LocateOneC(s)
	if oneC.Found {
		v[cycling.MetricOneCCycle] = float64(oneC.Cycle)
		if rec, ok := s.At(oneC.Cycle); ok {
			put(cycling.MetricOneCCharge, rec.ChargeCapacity)
			put(cycling.MetricOneCDischarge, rec.DischargeCapacity)
			put(cycling.MetricOneCEfficiency, rec.EfficiencyOrDerived())
			if d, ok := rec.DischargeCapacity.Get(); ok && hasFirst {
				v[cycling.MetricOneCRatio] = d / firstDischarge * 100
			}
		}
	}

	e.retentionMetrics(s, oneC.Cycle, v)
	return v
}

func (e *Extractor) retentionMetrics(s cycling.ChannelSeries, baseline int, v cycling.MetricVector) {
	base, ok := s.At(baseline)
	if !ok {
		return
	}
	baseDischarge, ok := base.DischargeCapacity.Get()
	if ok && baseDischarge > 0 {
		if rec, ok := s.At(baseline + e.p.RetentionTargetCycle); ok {
			if d, ok := rec.DischargeCapacity.Get(); ok {
				v[cycling.MetricTargetRetention] = d / baseDischarge * 100
			}
		}
		if cycle, d, ok := lastValid(s, cycling.QuantityDischarge); ok && cycle > baseline {
			v[cycling.MetricCurrentRetention] = d / baseDischarge * 100
		}
	}
	if baseVoltage, ok := base.Voltage.Get(); ok {
		if cycle, last, ok := lastValid(s, cycling.QuantityVoltage); ok && cycle > baseline {
			v[cycling.MetricVoltageDecayRate] = (baseVoltage - last) * 1000 / float64(cycle-baseline)
		}
	}
}

func lastValid(s cycling.ChannelSeries, q cycling.Quantity) (int, float64, bool) {
	for i := len(s.Records) - 1; i >= 0; i-- {
		if x, ok := s.Records[i].Quantity(q).Get(); ok {
			return s.Records[i].CycleIndex, x, true
		}
	}
	return 0, 0, false
}

func matchesAny(label string, patterns []string) bool {
	if label == "" {
		return false
	}
	for _, p := range patterns {
		if p != "" && strings.Contains(label, p) {
			return true
		}
	}
	return false
}
