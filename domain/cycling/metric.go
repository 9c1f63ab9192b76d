package cycling

import (
	"fmt"
	"sort"
	"strings"
)

// MetricName names a scalar summary extracted from a channel series.
type MetricName string

const (
	MetricFirstCharge        MetricName = "first_charge"
	MetricFirstDischarge     MetricName = "first_discharge"
	MetricFirstEfficiency    MetricName = "first_efficiency"
	MetricFirstVoltage       MetricName = "first_voltage"
	MetricFirstChargeVoltage MetricName = "first_charge_voltage"
	MetricFirstEnergy        MetricName = "first_energy"
	MetricCycle4Discharge    MetricName = "cycle4_discharge"
	MetricCycle4Retention    MetricName = "cycle4_retention"
	MetricOneCCycle          MetricName = "one_c_cycle"
	MetricOneCCharge         MetricName = "one_c_charge"
	MetricOneCDischarge      MetricName = "one_c_discharge"
	MetricOneCEfficiency     MetricName = "one_c_efficiency"
	MetricOneCRatio          MetricName = "one_c_ratio"
	MetricTargetRetention    MetricName = "target_retention"
	MetricCurrentRetention   MetricName = "current_retention"
	MetricVoltageDecayRate   MetricName = "voltage_decay_rate"
)

var knownMetrics = map[MetricName]Quantity{
	MetricFirstCharge:        QuantityCharge,
	MetricFirstDischarge:     QuantityDischarge,
	MetricFirstEfficiency:    QuantityEfficiency,
	MetricFirstVoltage:       QuantityVoltage,
	MetricFirstChargeVoltage: QuantityChargeEndVoltage,
	MetricFirstEnergy:        QuantityEnergy,
	MetricCycle4Discharge:    QuantityDischarge,
	MetricCycle4Retention:    QuantityDischarge,
	MetricOneCCycle:          QuantityNone,
	MetricOneCCharge:         QuantityCharge,
	MetricOneCDischarge:      QuantityDischarge,
	MetricOneCEfficiency:     QuantityEfficiency,
	MetricOneCRatio:          QuantityDischarge,
	MetricTargetRetention:    QuantityDischarge,
	MetricCurrentRetention:   QuantityDischarge,
	MetricVoltageDecayRate:   QuantityVoltage,
}

// ParseMetricName validates a metric name.
func ParseMetricName(s string) (MetricName, error) {
	m := MetricName(strings.TrimSpace(s))
	if _, ok := knownMetrics[m]; !ok {
		return "", fmt.Errorf("unknown metric %q", s)
	}
	return m, nil
}

// ParseMetricNames parses a list of metric names, rejecting unknown ones.
func ParseMetricNames(names []string) ([]MetricName, error) {
	out := make([]MetricName, 0, len(names))
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		m, err := ParseMetricName(n)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Quantity returns the per-cycle measurement the metric summarizes.
func (m MetricName) Quantity() Quantity { return knownMetrics[m] }

// Percentage reports whether the metric is a ratio of two cycles in percent
// rather than a value in the unit of its quantity.
func (m MetricName) Percentage() bool {
	switch m {
	case MetricCycle4Retention, MetricOneCRatio, MetricTargetRetention, MetricCurrentRetention:
		return true
	}
	return false
}

// MetricVector holds the scalar metrics of one channel. Missing metrics are absent.
type MetricVector map[MetricName]float64

// Get returns the metric value and whether it is present.
func (v MetricVector) Get(m MetricName) (float64, bool) {
	x, ok := v[m]
	return x, ok
}

// Names returns the present metric names in sorted order.
func (v MetricVector) Names() []MetricName {
	names := make([]MetricName, 0, len(v))
	for m := range v {
		names = append(names, m)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
