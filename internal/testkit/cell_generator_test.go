package testkit

import (
	"testing"
)

func TestCellGenerator_Deterministic(t *testing.T) {
	config := DefaultCellConfig()
	config.Noise = 0.01

	a := NewCellGenerator(config).Batch("LFP-01", 3)
	b := NewCellGenerator(config).Batch("LFP-01", 3)

	if len(a.Channels) != 3 {
		t.Fatalf("Expected 3 channels, got %d", len(a.Channels))
	}
	for i := range a.Channels {
		for j, rec := range a.Channels[i].Records {
			if rec.DischargeCapacity != b.Channels[i].Records[j].DischargeCapacity {
				t.Fatalf("Channel %d cycle %d differs between identical seeds", i, rec.CycleIndex)
			}
		}
		if err := a.Channels[i].Validate(); err != nil {
			t.Errorf("Generated invalid series: %v", err)
		}
	}
}

func TestCellGenerator_FormationDrop(t *testing.T) {
	config := DefaultCellConfig()
	config.LabelModes = true
	s := NewCellGenerator(config).Series("ch-1")

	third, _ := s.At(3)
	fourth, _ := s.At(4)
	if fourth.DischargeCapacity.Value >= third.DischargeCapacity.Value*0.9 {
		t.Errorf("Expected a rate drop at cycle 4: %v -> %v", third.DischargeCapacity, fourth.DischargeCapacity)
	}
	if third.Mode != "-0.1C-" || fourth.Mode != "-1C-" {
		t.Errorf("Unexpected mode labels %q, %q", third.Mode, fourth.Mode)
	}
}
