package verdict

import (
	"cellqc/domain/cycling"
)

// OutlierMethod names the detector that produced an OutlierVerdict.
type OutlierMethod string

const (
	MethodBoxplot   OutlierMethod = "boxplot"
	MethodZScoreMAD OutlierMethod = "zscore_mad"
)

// OutlierVerdict is the per-channel outcome of outlier detection for one batch.
type OutlierVerdict struct {
	Channel     cycling.ChannelID              `json:"channel"`
	Outlier     bool                           `json:"outlier"`
	TriggeredBy []cycling.MetricName           `json:"triggered_by,omitempty"`
	Method      OutlierMethod                  `json:"method"`
	Scores      map[cycling.MetricName]float64 `json:"scores,omitempty"`
}

// SelectionMethod names the strategy that chose a reference channel.
type SelectionMethod string

const (
	SelectionRetentionCurveMSE SelectionMethod = "retention_curve_mse"
	SelectionPCA               SelectionMethod = "pca"
	SelectionTraditional       SelectionMethod = "traditional"
)

// ReferenceSelection is the representative channel of a batch.
type ReferenceSelection struct {
	Channel cycling.ChannelID `json:"channel"`
	Method  SelectionMethod   `json:"method"`
	// Score is the value that decided the choice: weighted MSE, centroid
	// distance or distance to the batch mean. Lower is more representative.
	Score         float64                       `json:"score"`
	ChannelScores map[cycling.ChannelID]float64 `json:"channel_scores,omitempty"`
	Details       map[string]float64            `json:"details,omitempty"`
}

// RiskTier is the severity of a rule finding.
type RiskTier int

const (
	TierNone RiskTier = iota
	TierWarning
	TierDanger
)

func (t RiskTier) String() string {
	switch t {
	case TierWarning:
		return "warning"
	case TierDanger:
		return "danger"
	}
	return "none"
}

// MarshalText encodes the tier by name.
func (t RiskTier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a tier name.
func (t *RiskTier) UnmarshalText(b []byte) error {
	switch string(b) {
	case "warning":
		*t = TierWarning
	case "danger":
		*t = TierDanger
	default:
		*t = TierNone
	}
	return nil
}

// RiskRule names a threshold rule.
type RiskRule string

const (
	RuleOverchargeVoltage  RiskRule = "overcharge_voltage"
	RuleLowEfficiency      RiskRule = "low_efficiency"
	RuleCapacityDecay      RiskRule = "capacity_decay"
	RuleAbnormalFirstCycle RiskRule = "abnormal_first_cycle"
	RuleOneCStatus         RiskRule = "one_c_status"
)

// RiskFinding is the result of one rule for one channel.
type RiskFinding struct {
	Rule      RiskRule `json:"rule"`
	Tier      RiskTier `json:"tier"`
	Value     float64  `json:"value"`
	Threshold float64  `json:"threshold"`
	Reason    string   `json:"reason,omitempty"`
}

// RiskAssessment collects the rule findings of one channel.
type RiskAssessment struct {
	Channel  cycling.ChannelID `json:"channel"`
	Findings []RiskFinding     `json:"findings"`
}

// Worst returns the highest tier among the findings.
func (a RiskAssessment) Worst() RiskTier {
	worst := TierNone
	for _, f := range a.Findings {
		if f.Tier > worst {
			worst = f.Tier
		}
	}
	return worst
}

// Tier returns the tier of a rule, TierNone when the rule produced no finding.
func (a RiskAssessment) Tier(rule RiskRule) RiskTier {
	for _, f := range a.Findings {
		if f.Rule == rule {
			return f.Tier
		}
	}
	return TierNone
}
