// Package risk grades channel metrics against fixed safety thresholds.
package risk

import (
	"fmt"

	"cellqc/domain/cycling"
	"cellqc/domain/verdict"
)

// Thresholds are the rule cut-offs. Capacities in mAh/g, voltages in V,
// efficiencies and retentions in %.
type Thresholds struct {
	OverchargeVoltageWarning float64
	OverchargeVoltageDanger  float64

	// First-cycle efficiency below LowEfficiencyWarning is a warning, below
	// LowEfficiencyDanger a danger.
	LowEfficiencyWarning float64
	LowEfficiencyDanger  float64

	DecayRetentionWarning float64
	DecayRetentionDanger  float64
	DecayDischargeDiff    float64

	AbnormalHighCharge   float64
	AbnormalLowCharge    float64
	AbnormalLowDischarge float64

	OneCOvercharge        float64
	OneCLowEfficiency     float64
	OneCVeryLowEfficiency float64
}

// Classifier applies every rule to a channel's metrics. It holds no state
// beyond its thresholds.
type Classifier struct {
	t Thresholds
}

// NewClassifier creates a Classifier.
func NewClassifier(t Thresholds) *Classifier {
	return &Classifier{t: t}
}

type rule func(m cycling.MetricVector) (verdict.RiskFinding, bool)

// Classify evaluates all rules in a fixed order. A rule whose inputs are
// missing contributes no finding; a rule that passes contributes a finding
// with TierNone.
func (c *Classifier) Classify(channel cycling.ChannelID, m cycling.MetricVector) verdict.RiskAssessment {
	a := verdict.RiskAssessment{Channel: channel, Findings: []verdict.RiskFinding{}}
	for _, r := range []rule{c.overchargeVoltage, c.lowEfficiency, c.capacityDecay, c.abnormalFirstCycle, c.oneCStatus} {
		if f, ok := r(m); ok {
			a.Findings = append(a.Findings, f)
		}
	}
	return a
}

func (c *Classifier) overchargeVoltage(m cycling.MetricVector) (verdict.RiskFinding, bool) {
	v, ok := m.Get(cycling.MetricFirstChargeVoltage)
	if !ok {
		return verdict.RiskFinding{}, false
	}
	f := verdict.RiskFinding{Rule: verdict.RuleOverchargeVoltage, Value: v, Threshold: c.t.OverchargeVoltageWarning}
	switch {
	case v >= c.t.OverchargeVoltageDanger:
		f.Tier, f.Threshold = verdict.TierDanger, c.t.OverchargeVoltageDanger
		f.Reason = fmt.Sprintf("charge end voltage %.3fV at or above %.3fV", v, f.Threshold)
	case v >= c.t.OverchargeVoltageWarning:
		f.Tier = verdict.TierWarning
		f.Reason = fmt.Sprintf("charge end voltage %.3fV at or above %.3fV", v, f.Threshold)
	}
	return f, true
}

func (c *Classifier) lowEfficiency(m cycling.MetricVector) (verdict.RiskFinding, bool) {
	e, ok := m.Get(cycling.MetricFirstEfficiency)
	if !ok {
		return verdict.RiskFinding{}, false
	}
	f := verdict.RiskFinding{Rule: verdict.RuleLowEfficiency, Value: e, Threshold: c.t.LowEfficiencyWarning}
	switch {
	case e < c.t.LowEfficiencyDanger:
		f.Tier, f.Threshold = verdict.TierDanger, c.t.LowEfficiencyDanger
		f.Reason = fmt.Sprintf("first efficiency %.2f%% below %.2f%%", e, f.Threshold)
	case e < c.t.LowEfficiencyWarning:
		f.Tier = verdict.TierWarning
		f.Reason = fmt.Sprintf("first efficiency %.2f%% below %.2f%%", e, f.Threshold)
	}
	return f, true
}

func (c *Classifier) capacityDecay(m cycling.MetricVector) (verdict.RiskFinding, bool) {
	r, ok := m.Get(cycling.MetricCycle4Retention)
	if !ok {
		return verdict.RiskFinding{}, false
	}
	f := verdict.RiskFinding{Rule: verdict.RuleCapacityDecay, Value: r, Threshold: c.t.DecayRetentionWarning}
	switch {
	case r < c.t.DecayRetentionDanger:
		f.Tier, f.Threshold = verdict.TierDanger, c.t.DecayRetentionDanger
		f.Reason = fmt.Sprintf("retention %.2f%% below %.2f%%", r, f.Threshold)
	case r < c.t.DecayRetentionWarning:
		f.Tier = verdict.TierWarning
		f.Reason = fmt.Sprintf("retention %.2f%% below %.2f%%", r, f.Threshold)
	}

	first, okFirst := m.Get(cycling.MetricFirstDischarge)
	later, okLater := m.Get(cycling.MetricCycle4Discharge)
	if okFirst && okLater && f.Tier == verdict.TierNone {
		if drop := first - later; drop > c.t.DecayDischargeDiff {
			f.Tier, f.Value, f.Threshold = verdict.TierWarning, drop, c.t.DecayDischargeDiff
			f.Reason = fmt.Sprintf("discharge dropped %.1f mAh/g, more than %.1f", drop, f.Threshold)
		}
	}
	return f, true
}

func (c *Classifier) abnormalFirstCycle(m cycling.MetricVector) (verdict.RiskFinding, bool) {
	charge, okCharge := m.Get(cycling.MetricFirstCharge)
	discharge, okDischarge := m.Get(cycling.MetricFirstDischarge)
	if !okCharge && !okDischarge {
		return verdict.RiskFinding{}, false
	}
	f := verdict.RiskFinding{Rule: verdict.RuleAbnormalFirstCycle}
	if okCharge {
		f.Value, f.Threshold = charge, c.t.AbnormalHighCharge
	} else {
		f.Value, f.Threshold = discharge, c.t.AbnormalLowDischarge
	}
	switch {
	case okCharge && charge > c.t.AbnormalHighCharge:
		f.Tier = verdict.TierDanger
		f.Reason = fmt.Sprintf("first charge %.1f above %.1f", charge, f.Threshold)
	case okCharge && charge < c.t.AbnormalLowCharge:
		f.Tier, f.Threshold = verdict.TierDanger, c.t.AbnormalLowCharge
		f.Reason = fmt.Sprintf("first charge %.1f below %.1f", charge, f.Threshold)
	case okDischarge && discharge < c.t.AbnormalLowDischarge:
		f.Tier, f.Value, f.Threshold = verdict.TierDanger, discharge, c.t.AbnormalLowDischarge
		f.Reason = fmt.Sprintf("first discharge %.1f below %.1f", discharge, f.Threshold)
	}
	return f, true
}

func (c *Classifier) oneCStatus(m cycling.MetricVector) (verdict.RiskFinding, bool) {
	charge, okCharge := m.Get(cycling.MetricOneCCharge)
	eff, okEff := m.Get(cycling.MetricOneCEfficiency)
	if !okCharge && !okEff {
		return verdict.RiskFinding{}, false
	}
	f := verdict.RiskFinding{Rule: verdict.RuleOneCStatus}
	if okEff {
		f.Value, f.Threshold = eff, c.t.OneCLowEfficiency
	} else {
		f.Value, f.Threshold = charge, c.t.OneCOvercharge
	}
	switch {
	case okCharge && charge > c.t.OneCOvercharge:
		f.Tier, f.Value, f.Threshold = verdict.TierDanger, charge, c.t.OneCOvercharge
		f.Reason = fmt.Sprintf("1C charge %.1f above %.1f", charge, f.Threshold)
	case okEff && eff < c.t.OneCVeryLowEfficiency:
		f.Tier, f.Threshold = verdict.TierDanger, c.t.OneCVeryLowEfficiency
		f.Reason = fmt.Sprintf("1C efficiency %.2f%% below %.2f%%", eff, f.Threshold)
	case okEff && eff < c.t.OneCLowEfficiency:
		f.Tier = verdict.TierWarning
		f.Reason = fmt.Sprintf("1C efficiency %.2f%% below %.2f%%", eff, f.Threshold)
	}
	return f, true
}

// ProblemBatch reports whether more than ratio of the assessments carry a
// danger 1C status or first-cycle efficiency finding.
func ProblemBatch(assessments []verdict.RiskAssessment, ratio float64) bool {
	if len(assessments) == 0 {
		return false
	}
	problems := 0
	for _, a := range assessments {
		if a.Tier(verdict.RuleOneCStatus) == verdict.TierDanger || a.Tier(verdict.RuleLowEfficiency) == verdict.TierDanger {
			problems++
		}
	}
	return float64(problems) > ratio*float64(len(assessments))
}
