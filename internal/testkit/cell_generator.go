package testkit

import (
	"fmt"
	"math/rand"

	"cellqc/domain/cycling"
)

// CellGeneratorConfig configures the synthetic cycling data generator
type CellGeneratorConfig struct {
	Cycles           int     `json:"cycles"`
	FirstDischarge   float64 `json:"first_discharge"`    // mAh/g at cycle 1
	FirstEfficiency  float64 `json:"first_efficiency"`   // % at cycle 1
	SteadyEfficiency float64 `json:"steady_efficiency"`  // % after cycle 1
	FadePerCycle     float64 `json:"fade_per_cycle"`     // fractional capacity loss per cycle
	FormationCycles  int     `json:"formation_cycles"`   // low-rate cycles before the first 1C cycle
	OneCRatio        float64 `json:"one_c_ratio"`        // 1C capacity as a fraction of low-rate capacity
	NominalVoltage   float64 `json:"nominal_voltage"`    // discharge median voltage at cycle 1
	VoltageFade      float64 `json:"voltage_fade"`       // V lost per cycle
	ChargeEndVoltage float64 `json:"charge_end_voltage"` // V at end of first charge
	LabelModes       bool    `json:"label_modes"`        // write -0.1C-/-1C- step labels on each record
	Noise            float64 `json:"noise"`              // relative gaussian noise
	Seed             int64   `json:"seed"`
}

// DefaultCellConfig returns a layered-oxide cell with three formation cycles.
func DefaultCellConfig() CellGeneratorConfig {
	return CellGeneratorConfig{
		Cycles:           60,
		FirstDischarge:   210,
		FirstEfficiency:  90,
		SteadyEfficiency: 99.5,
		FadePerCycle:     0.001,
		FormationCycles:  3,
		OneCRatio:        0.88,
		NominalVoltage:   3.75,
		VoltageFade:      0.0004,
		ChargeEndVoltage: 4.5,
		Seed:             42,
	}
}

// CellGenerator produces deterministic ChannelSeries for tests and demos.
type CellGenerator struct {
	config CellGeneratorConfig
	rng    *rand.Rand
}

// NewCellGenerator creates a generator seeded from config.Seed.
func NewCellGenerator(config CellGeneratorConfig) *CellGenerator {
	return &CellGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Series generates one channel. Successive calls draw fresh noise.
func (g *CellGenerator) Series(id string) cycling.ChannelSeries {
	c := g.config
	records := make([]cycling.CycleRecord, 0, c.Cycles)
	for k := 1; k <= c.Cycles; k++ {
		rate := 1.0
		mode := "-1C-"
		if k <= c.FormationCycles {
			rate = 1 / c.OneCRatio
			mode = "-0.1C-"
		}
		discharge := c.FirstDischarge * (1 - c.FadePerCycle*float64(k-1))
		if k > c.FormationCycles {
			discharge *= c.OneCRatio
		}
		discharge *= g.jitter()
		eff := c.SteadyEfficiency
		chargeEnd := c.ChargeEndVoltage - 0.05
		if k == 1 {
			eff = c.FirstEfficiency
			chargeEnd = c.ChargeEndVoltage
		}
		voltage := (c.NominalVoltage - c.VoltageFade*float64(k-1)) * (1 + 0.01*(rate-1))
		rec := cycling.CycleRecord{
			CycleIndex:        k,
			ChargeCapacity:    cycling.Of(discharge / (eff / 100)),
			DischargeCapacity: cycling.Of(discharge),
			Efficiency:        cycling.Of(eff),
			Voltage:           cycling.Of(voltage),
			ChargeEndVoltage:  cycling.Of(chargeEnd),
			Energy:            cycling.Of(discharge * voltage),
		}
		if c.LabelModes {
			rec.Mode = mode
		}
		records = append(records, rec)
	}
	return cycling.ChannelSeries{ID: cycling.ChannelID(id), Channel: id, Records: records}
}

func (g *CellGenerator) jitter() float64 {
	if g.config.Noise == 0 {
		return 1
	}
	return 1 + g.rng.NormFloat64()*g.config.Noise
}

// Batch generates n channels named <key>/ch-<i> that differ only by noise.
func (g *CellGenerator) Batch(key string, n int) cycling.BatchGroup {
	b := cycling.BatchGroup{Key: key}
	for i := 1; i <= n; i++ {
		s := g.Series(fmt.Sprintf("%s/ch-%d", key, i))
		s.BatchKey = key
		b.Channels = append(b.Channels, s)
	}
	return b
}

// SeriesFromDischarge builds a channel whose discharge capacity follows
// values exactly, starting at cycle 1, with constant efficiency, voltage and
// energy proportional to capacity.
func SeriesFromDischarge(id string, values ...float64) cycling.ChannelSeries {
	records := make([]cycling.CycleRecord, len(values))
	for i, d := range values {
		records[i] = cycling.CycleRecord{
			CycleIndex:        i + 1,
			ChargeCapacity:    cycling.Of(d / 0.98),
			DischargeCapacity: cycling.Of(d),
			Efficiency:        cycling.Of(98),
			Voltage:           cycling.Of(3.7),
			ChargeEndVoltage:  cycling.Of(4.45),
			Energy:            cycling.Of(d * 3.7),
		}
	}
	return cycling.ChannelSeries{ID: cycling.ChannelID(id), Channel: id, Records: records}
}

// SeriesFromFunc builds a channel of n cycles with discharge f(cycle).
func SeriesFromFunc(id string, n int, f func(cycle int) float64) cycling.ChannelSeries {
	values := make([]float64, n)
	for i := range values {
		values[i] = f(i + 1)
	}
	return SeriesFromDischarge(id, values...)
}

// Batch groups channels under key, stamping BatchKey on each.
func Batch(key string, channels ...cycling.ChannelSeries) cycling.BatchGroup {
	b := cycling.BatchGroup{Key: key, Channels: make([]cycling.ChannelSeries, len(channels))}
	for i, ch := range channels {
		ch.BatchKey = key
		b.Channels[i] = ch
	}
	return b
}

// FirstCycleBatch builds one channel per first-discharge value, each with
// cycles identical records scaled to that value.
func FirstCycleBatch(key string, cycles int, firstDischarge ...float64) cycling.BatchGroup {
	channels := make([]cycling.ChannelSeries, len(firstDischarge))
	for i, d := range firstDischarge {
		d := d
		channels[i] = SeriesFromFunc(fmt.Sprintf("ch-%02d", i+1), cycles, func(cycle int) float64 {
			return d * (1 - 0.001*float64(cycle-1))
		})
	}
	return Batch(key, channels...)
}
