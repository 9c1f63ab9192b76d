package cycling

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func rec(cycle int, discharge float64) CycleRecord {
	return CycleRecord{CycleIndex: cycle, DischargeCapacity: Of(discharge)}
}

// TestChannelSeries_Validate verifies ordering and identity checks.
func TestChannelSeries_Validate(t *testing.T) {
	tests := []struct {
		name   string
		series ChannelSeries
		want   error
	}{
		{"ok", ChannelSeries{ID: "a", Records: []CycleRecord{rec(1, 200), rec(2, 199), rec(5, 198)}}, nil},
		{"no id", ChannelSeries{Records: []CycleRecord{rec(1, 200)}}, ErrMissingChannelID},
		{"empty", ChannelSeries{ID: "a"}, ErrEmptySeries},
		{"zero index", ChannelSeries{ID: "a", Records: []CycleRecord{rec(0, 200)}}, ErrInvalidCycleIndex},
		{"duplicate", ChannelSeries{ID: "a", Records: []CycleRecord{rec(1, 200), rec(1, 199)}}, ErrNonIncreasingCycles},
		{"decreasing", ChannelSeries{ID: "a", Records: []CycleRecord{rec(2, 200), rec(1, 199)}}, ErrNonIncreasingCycles},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.series.Validate()
			if tt.want == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

// TestBatchGroup_ValidateDuplicateChannel verifies duplicate IDs are rejected.
func TestBatchGroup_ValidateDuplicateChannel(t *testing.T) {
	s := ChannelSeries{ID: "a", Records: []CycleRecord{rec(1, 200)}}
	b := BatchGroup{Key: "k", Channels: []ChannelSeries{s, s}}
	if err := b.Validate(); !errors.Is(err, ErrDuplicateChannel) {
		t.Fatalf("expected duplicate channel error, got %v", err)
	}
}

// TestChannelSeries_AtAndValues verifies lookup by cycle and missing-value skipping.
func TestChannelSeries_AtAndValues(t *testing.T) {
	s := ChannelSeries{ID: "a", Records: []CycleRecord{
		rec(1, 200),
		{CycleIndex: 2},
		rec(4, 190),
	}}
	if r, ok := s.At(4); !ok || r.DischargeCapacity.Value != 190 {
		t.Errorf("At(4) = %+v, %v", r, ok)
	}
	if _, ok := s.At(3); ok {
		t.Error("At(3) should not be found")
	}
	cycles, values := s.Values(QuantityDischarge)
	if len(cycles) != 2 || cycles[1] != 4 || values[1] != 190 {
		t.Errorf("Values skipped wrong rows: %v %v", cycles, values)
	}
}

// TestCycleRecord_EfficiencyOrDerived verifies the discharge/charge fallback.
func TestCycleRecord_EfficiencyOrDerived(t *testing.T) {
	r := CycleRecord{CycleIndex: 1, ChargeCapacity: Of(250), DischargeCapacity: Of(225)}
	got, ok := r.EfficiencyOrDerived().Get()
	if !ok || math.Abs(got-90) > 1e-9 {
		t.Errorf("derived efficiency = %v, %v; want 90", got, ok)
	}
	r.Efficiency = Of(88)
	if got, _ := r.EfficiencyOrDerived().Get(); got != 88 {
		t.Errorf("recorded efficiency should win, got %v", got)
	}
	if (CycleRecord{}).EfficiencyOrDerived().Valid {
		t.Error("empty record should have no efficiency")
	}
}

// TestReading_JSONNull verifies missing readings encode as null and NaN is rejected.
func TestReading_JSONNull(t *testing.T) {
	if Of(math.NaN()).Valid {
		t.Error("NaN should be missing")
	}
	data, err := json.Marshal(CycleRecord{CycleIndex: 3, Voltage: Of(3.7)})
	if err != nil {
		t.Fatal(err)
	}
	var back CycleRecord
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.ChargeCapacity.Valid {
		t.Error("missing charge capacity should stay missing")
	}
	if !back.Voltage.Valid || back.Voltage.Value != 3.7 {
		t.Errorf("voltage = %v", back.Voltage)
	}
}

// TestParseMetricNames verifies unknown metric names are rejected.
func TestParseMetricNames(t *testing.T) {
	got, err := ParseMetricNames([]string{"first_discharge", " first_efficiency ", ""})
	if err != nil || len(got) != 2 || got[1] != MetricFirstEfficiency {
		t.Fatalf("ParseMetricNames = %v, %v", got, err)
	}
	if _, err := ParseMetricNames([]string{"capacity"}); err == nil {
		t.Error("expected error for unknown metric")
	}
	if MetricFirstVoltage.Quantity() != QuantityVoltage {
		t.Error("first_voltage should map to voltage")
	}
}
