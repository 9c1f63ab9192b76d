package cycling

import (
	"fmt"
	"sort"
)

// ChannelID identifies one test channel, usually "<host>/<channel>".
type ChannelID string

func (id ChannelID) String() string { return string(id) }

// Quantity names a per-cycle measurement carried by a CycleRecord.
type Quantity string

const (
	QuantityNone             Quantity = ""
	QuantityCharge           Quantity = "charge_capacity"
	QuantityDischarge        Quantity = "discharge_capacity"
	QuantityEfficiency       Quantity = "efficiency"
	QuantityVoltage          Quantity = "voltage"
	QuantityChargeEndVoltage Quantity = "charge_end_voltage"
	QuantityEnergy           Quantity = "energy"
)

// CycleRecord is one row of cycling data for a channel.
type CycleRecord struct {
	CycleIndex        int     `json:"cycle_index"`
	Mode              string  `json:"mode,omitempty"`
	ChargeCapacity    Reading `json:"charge_capacity"`
	DischargeCapacity Reading `json:"discharge_capacity"`
	Efficiency        Reading `json:"efficiency"`
	Voltage           Reading `json:"voltage"`
	ChargeEndVoltage  Reading `json:"charge_end_voltage"`
	Energy            Reading `json:"energy"`
}

// Quantity returns the reading for q.
func (r CycleRecord) Quantity(q Quantity) Reading {
	switch q {
	case QuantityCharge:
		return r.ChargeCapacity
	case QuantityDischarge:
		return r.DischargeCapacity
	case QuantityEfficiency:
		return r.EfficiencyOrDerived()
	case QuantityVoltage:
		return r.Voltage
	case QuantityChargeEndVoltage:
		return r.ChargeEndVoltage
	case QuantityEnergy:
		return r.Energy
	}
	return Missing()
}

// EfficiencyOrDerived returns the recorded coulombic efficiency, or
// discharge/charge×100 when only the capacities are present.
func (r CycleRecord) EfficiencyOrDerived() Reading {
	if r.Efficiency.Valid {
		return r.Efficiency
	}
	if r.ChargeCapacity.Valid && r.DischargeCapacity.Valid && r.ChargeCapacity.Value > 0 {
		return Of(r.DischargeCapacity.Value / r.ChargeCapacity.Value * 100)
	}
	return Missing()
}

// ChannelSeries is the ordered cycle history of one channel.
type ChannelSeries struct {
	ID       ChannelID     `json:"id"`
	Host     string        `json:"host,omitempty"`
	Channel  string        `json:"channel,omitempty"`
	BatchKey string        `json:"batch_key,omitempty"`
	Mode     string        `json:"mode,omitempty"`
	Source   string        `json:"source,omitempty"`
	Records  []CycleRecord `json:"records"`
}

// Validate checks the identifier and cycle ordering.
func (s ChannelSeries) Validate() error {
	if s.ID == "" {
		return ErrMissingChannelID
	}
	if len(s.Records) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptySeries, s.ID)
	}
	prev := 0
	for i, rec := range s.Records {
		if rec.CycleIndex < 1 {
			return fmt.Errorf("%w: channel %s row %d has %d", ErrInvalidCycleIndex, s.ID, i, rec.CycleIndex)
		}
		if i > 0 && rec.CycleIndex <= prev {
			return fmt.Errorf("%w: channel %s cycle %d follows %d", ErrNonIncreasingCycles, s.ID, rec.CycleIndex, prev)
		}
		prev = rec.CycleIndex
	}
	return nil
}

// Len returns the number of cycle records.
func (s ChannelSeries) Len() int { return len(s.Records) }

// First returns the first record.
func (s ChannelSeries) First() (CycleRecord, bool) {
	if len(s.Records) == 0 {
		return CycleRecord{}, false
	}
	return s.Records[0], true
}

// Last returns the last record.
func (s ChannelSeries) Last() (CycleRecord, bool) {
	if len(s.Records) == 0 {
		return CycleRecord{}, false
	}
	return s.Records[len(s.Records)-1], true
}

// At returns the record for a cycle index.
func (s ChannelSeries) At(cycle int) (CycleRecord, bool) {
	i := sort.Search(len(s.Records), func(i int) bool { return s.Records[i].CycleIndex >= cycle })
	if i < len(s.Records) && s.Records[i].CycleIndex == cycle {
		return s.Records[i], true
	}
	return CycleRecord{}, false
}

// Values returns the cycle indices and values of q, skipping missing readings.
func (s ChannelSeries) Values(q Quantity) (cycles []int, values []float64) {
	for _, rec := range s.Records {
		if v, ok := rec.Quantity(q).Get(); ok {
			cycles = append(cycles, rec.CycleIndex)
			values = append(values, v)
		}
	}
	return cycles, values
}

// BatchGroup is the set of channels sharing one sample batch key.
type BatchGroup struct {
	Key      string          `json:"key"`
	Channels []ChannelSeries `json:"channels"`
}

// Validate checks every channel and rejects duplicate channel identifiers.
func (b BatchGroup) Validate() error {
	seen := make(map[ChannelID]bool, len(b.Channels))
	for _, ch := range b.Channels {
		if err := ch.Validate(); err != nil {
			return fmt.Errorf("batch %s: %w", b.Key, err)
		}
		if seen[ch.ID] {
			return fmt.Errorf("%w: %s in batch %s", ErrDuplicateChannel, ch.ID, b.Key)
		}
		seen[ch.ID] = true
	}
	return nil
}

// ChannelIDs returns the channel identifiers in sorted order.
func (b BatchGroup) ChannelIDs() []ChannelID {
	ids := make([]ChannelID, 0, len(b.Channels))
	for _, ch := range b.Channels {
		ids = append(ids, ch.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Sorted returns a copy of the batch with channels ordered by ID.
func (b BatchGroup) Sorted() BatchGroup {
	out := BatchGroup{Key: b.Key, Channels: make([]ChannelSeries, len(b.Channels))}
	copy(out.Channels, b.Channels)
	sort.SliceStable(out.Channels, func(i, j int) bool { return out.Channels[i].ID < out.Channels[j].ID })
	return out
}

// GroupByBatch buckets series by BatchKey.
func GroupByBatch(series []ChannelSeries) map[string]BatchGroup {
	groups := make(map[string]BatchGroup)
	for _, s := range series {
		g := groups[s.BatchKey]
		g.Key = s.BatchKey
		g.Channels = append(g.Channels, s)
		groups[s.BatchKey] = g
	}
	return groups
}
