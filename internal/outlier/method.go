// Package outlier flags channels whose summary metrics stand apart from the
// rest of their batch.
package outlier

import (
	"cellqc/domain/cycling"
	"cellqc/domain/verdict"
)

// Thresholds holds one value per measurement family. Metrics are mapped to a
// family through the quantity they summarize; retention percentages form
// their own family.
type Thresholds struct {
	Discharge  float64
	Efficiency float64
	Voltage    float64
	Energy     float64
	Retention  float64
}

// For returns the threshold that applies to metric m.
func (t Thresholds) For(m cycling.MetricName) float64 {
	if m.Percentage() {
		return t.Retention
	}
	switch m.Quantity() {
	case cycling.QuantityEfficiency:
		return t.Efficiency
	case cycling.QuantityVoltage, cycling.QuantityChargeEndVoltage:
		return t.Voltage
	case cycling.QuantityEnergy:
		return t.Energy
	}
	return t.Discharge
}

// Sample is one channel's value of a metric.
type Sample struct {
	Channel cycling.ChannelID
	Value   float64
}

// MetricResult is the outcome of one method on one metric.
type MetricResult struct {
	Metric cycling.MetricName
	// Flagged maps each outlying channel to the score that flagged it.
	Flagged map[cycling.ChannelID]float64
	// Survivors traces the surviving sample count before each boxplot pass
	// and after the last one. Empty for the z-score method.
	Survivors  []int
	Degenerate bool
}

// Method is the active outlier detection method: exactly one of Boxplot or
// ZScoreMAD. It cannot be implemented outside this package.
type Method interface {
	Name() verdict.OutlierMethod
	detect(metric cycling.MetricName, samples []Sample, series map[cycling.ChannelID]cycling.ChannelSeries) MetricResult
}
