package analysis

import (
	"time"

	"cellqc/domain/core"
	"cellqc/domain/cycling"
	"cellqc/domain/verdict"
	"cellqc/internal/metrics"
	"cellqc/internal/reference"
)

// Diagnostic explains why a channel or step was skipped or degraded.
// Code is one of the internal/errors codes.
type Diagnostic struct {
	Channel cycling.ChannelID `json:"channel,omitempty"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
}

// Summary describes one metric over a set of channels.
type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Median float64 `json:"median"`
}

// Statistics summarizes a batch after outlier exclusion.
type Statistics struct {
	Channels        int                  `json:"channels"`
	Analyzed        int                  `json:"analyzed"`
	Outliers        int                  `json:"outliers"`
	Survivors       int                  `json:"survivors"`
	FirstDischarge  Summary              `json:"first_discharge"`
	FirstEfficiency Summary              `json:"first_efficiency"`
	Reference       cycling.MetricVector `json:"reference,omitempty"`
}

// BatchResult is everything computed for one batch.
type BatchResult struct {
	Key      string                   `json:"key"`
	Verdicts []verdict.OutlierVerdict `json:"verdicts"`
	// Inconsistent is set when every channel was flagged as an outlier. All
	// of them stay excluded, no reference is selected and the batch is a
	// problem batch to retest.
	Inconsistent bool `json:"inconsistent"`
	// ProblemBatch is set when too many channels carry a danger 1C status or
	// first-cycle efficiency finding, or when the batch is inconsistent.
	ProblemBatch bool                                       `json:"problem_batch"`
	Selection    *verdict.ReferenceSelection                `json:"selection"`
	Attempts     []reference.Attempt                        `json:"attempts,omitempty"`
	Risks        []verdict.RiskAssessment                   `json:"risks"`
	Metrics      map[cycling.ChannelID]cycling.MetricVector `json:"metrics"`
	Baselines    map[cycling.ChannelID]metrics.OneC         `json:"baselines"`
	Diagnostics  []Diagnostic                               `json:"diagnostics"`
	Statistics   Statistics                                 `json:"statistics"`
}

// Excluded returns the channels marked as outliers.
func (r BatchResult) Excluded() []cycling.ChannelID {
	var out []cycling.ChannelID
	for _, v := range r.Verdicts {
		if v.Outlier {
			out = append(out, v.Channel)
		}
	}
	return out
}

// RunReport is the output of one analysis run over many batches.
type RunReport struct {
	RunID             core.RunID            `json:"run_id"`
	StartedAt         time.Time             `json:"started_at"`
	FinishedAt        time.Time             `json:"finished_at"`
	ConfigFingerprint core.Fingerprint      `json:"config_fingerprint"`
	OutlierMethod     verdict.OutlierMethod `json:"outlier_method"`
	Batches           []BatchResult         `json:"batches"`
}

// Batch returns the result for key.
func (r *RunReport) Batch(key string) (BatchResult, bool) {
	for _, b := range r.Batches {
		if b.Key == key {
			return b, true
		}
	}
	return BatchResult{}, false
}
