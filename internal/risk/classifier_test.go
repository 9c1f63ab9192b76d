package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"cellqc/domain/cycling"
	"cellqc/domain/verdict"
)

func thresholds() Thresholds {
	return Thresholds{
		OverchargeVoltageWarning: 4.65,
		OverchargeVoltageDanger:  4.7,
		LowEfficiencyWarning:     80,
		LowEfficiencyDanger:      75,
		DecayRetentionWarning:    85,
		DecayRetentionDanger:     80,
		DecayDischargeDiff:       50,
		AbnormalHighCharge:       380,
		AbnormalLowCharge:        200,
		AbnormalLowDischarge:     200,
		OneCOvercharge:           350,
		OneCLowEfficiency:        85,
		OneCVeryLowEfficiency:    80,
	}
}

func TestClassify_RuleTiers(t *testing.T) {
	tests := []struct {
		name    string
		metrics cycling.MetricVector
		rule    verdict.RiskRule
		want    verdict.RiskTier
	}{
		{"voltage ok", cycling.MetricVector{cycling.MetricFirstChargeVoltage: 4.5}, verdict.RuleOverchargeVoltage, verdict.TierNone},
		{"voltage warning", cycling.MetricVector{cycling.MetricFirstChargeVoltage: 4.65}, verdict.RuleOverchargeVoltage, verdict.TierWarning},
		{"voltage danger", cycling.MetricVector{cycling.MetricFirstChargeVoltage: 4.71}, verdict.RuleOverchargeVoltage, verdict.TierDanger},
		{"efficiency ok", cycling.MetricVector{cycling.MetricFirstEfficiency: 80}, verdict.RuleLowEfficiency, verdict.TierNone},
		{"efficiency warning", cycling.MetricVector{cycling.MetricFirstEfficiency: 79.9}, verdict.RuleLowEfficiency, verdict.TierWarning},
		{"efficiency danger", cycling.MetricVector{cycling.MetricFirstEfficiency: 70}, verdict.RuleLowEfficiency, verdict.TierDanger},
		{"decay ok", cycling.MetricVector{cycling.MetricCycle4Retention: 95}, verdict.RuleCapacityDecay, verdict.TierNone},
		{"decay warning", cycling.MetricVector{cycling.MetricCycle4Retention: 84}, verdict.RuleCapacityDecay, verdict.TierWarning},
		{"decay danger", cycling.MetricVector{cycling.MetricCycle4Retention: 79}, verdict.RuleCapacityDecay, verdict.TierDanger},
		{"decay by discharge drop", cycling.MetricVector{
			cycling.MetricCycle4Retention: 86,
			cycling.MetricFirstDischarge:  400,
			cycling.MetricCycle4Discharge: 344,
		}, verdict.RuleCapacityDecay, verdict.TierWarning},
		{"first cycle ok", cycling.MetricVector{cycling.MetricFirstCharge: 230, cycling.MetricFirstDischarge: 210}, verdict.RuleAbnormalFirstCycle, verdict.TierNone},
		{"first charge high", cycling.MetricVector{cycling.MetricFirstCharge: 390, cycling.MetricFirstDischarge: 210}, verdict.RuleAbnormalFirstCycle, verdict.TierDanger},
		{"first charge low", cycling.MetricVector{cycling.MetricFirstCharge: 190}, verdict.RuleAbnormalFirstCycle, verdict.TierDanger},
		{"first discharge low", cycling.MetricVector{cycling.MetricFirstDischarge: 150}, verdict.RuleAbnormalFirstCycle, verdict.TierDanger},
		{"1C ok", cycling.MetricVector{cycling.MetricOneCCharge: 200, cycling.MetricOneCEfficiency: 99}, verdict.RuleOneCStatus, verdict.TierNone},
		{"1C overcharge", cycling.MetricVector{cycling.MetricOneCCharge: 360, cycling.MetricOneCEfficiency: 99}, verdict.RuleOneCStatus, verdict.TierDanger},
		{"1C low efficiency", cycling.MetricVector{cycling.MetricOneCEfficiency: 84}, verdict.RuleOneCStatus, verdict.TierWarning},
		{"1C very low efficiency", cycling.MetricVector{cycling.MetricOneCEfficiency: 79}, verdict.RuleOneCStatus, verdict.TierDanger},
	}

	c := NewClassifier(thresholds())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := c.Classify("ch", tt.metrics)
			if got := a.Tier(tt.rule); got != tt.want {
				t.Errorf("%s = %s, want %s (findings %+v)", tt.rule, got, tt.want, a.Findings)
			}
		})
	}
}

func TestClassify_MissingMetricsProduceNoFindings(t *testing.T) {
	a := NewClassifier(thresholds()).Classify("ch", cycling.MetricVector{})
	assert.Empty(t, a.Findings)
	assert.Equal(t, verdict.TierNone, a.Worst())
}

func TestClassify_FindingsCarryValueAndThreshold(t *testing.T) {
	a := NewClassifier(thresholds()).Classify("ch", cycling.MetricVector{
		cycling.MetricFirstChargeVoltage: 4.72,
		cycling.MetricFirstEfficiency:    92,
		cycling.MetricCycle4Retention:    83,
	})

	assert.Equal(t, cycling.ChannelID("ch"), a.Channel)
	assert.Len(t, a.Findings, 3)
	assert.Equal(t, verdict.TierDanger, a.Worst())

	v := a.Findings[0]
	assert.Equal(t, verdict.RuleOverchargeVoltage, v.Rule)
	assert.Equal(t, 4.72, v.Value)
	assert.Equal(t, 4.7, v.Threshold)
	assert.NotEmpty(t, v.Reason)

	d := a.Findings[2]
	assert.Equal(t, verdict.RuleCapacityDecay, d.Rule)
	assert.Equal(t, verdict.TierWarning, d.Tier)
	assert.Equal(t, 85.0, d.Threshold)
}

func TestProblemBatch(t *testing.T) {
	c := NewClassifier(thresholds())
	bad := c.Classify("bad", cycling.MetricVector{cycling.MetricFirstEfficiency: 60})
	hot := c.Classify("hot", cycling.MetricVector{cycling.MetricOneCCharge: 400})
	good := c.Classify("good", cycling.MetricVector{cycling.MetricFirstEfficiency: 90})

	assert.True(t, ProblemBatch([]verdict.RiskAssessment{bad, hot, good}, 0.5))
	assert.False(t, ProblemBatch([]verdict.RiskAssessment{bad, good}, 0.5), "exactly half is not a problem batch")
	assert.False(t, ProblemBatch(nil, 0.5))
}
