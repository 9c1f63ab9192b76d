// Package reference picks the most representative channel of a batch.
//
// Strategies are tried in order. A strategy that cannot run on the batch
// returns an error wrapping ErrPreconditionsUnmet and the selector moves on
// to the next one; any other error aborts selection.
package reference

import (
	stderrors "errors"
	"fmt"
	"sort"

	"cellqc/domain/cycling"
	"cellqc/domain/verdict"
	"cellqc/internal/errors"
)

// ErrPreconditionsUnmet marks a strategy that does not apply to the input.
var ErrPreconditionsUnmet = stderrors.New("strategy preconditions unmet")

func unmet(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPreconditionsUnmet, fmt.Sprintf(format, args...))
}

// Candidate is a non-outlier channel eligible to become the reference.
type Candidate struct {
	Series   cycling.ChannelSeries
	Metrics  cycling.MetricVector
	Baseline int
}

// Input is one batch's candidates.
type Input struct {
	BatchKey   string
	Candidates []Candidate
}

// sorted returns the candidates ordered by channel ID.
func (in Input) sorted() []Candidate {
	out := append([]Candidate(nil), in.Candidates...)
	sort.Slice(out, func(i, j int) bool { return out[i].Series.ID < out[j].Series.ID })
	return out
}

// Strategy is one way of choosing a reference channel.
type Strategy interface {
	Method() verdict.SelectionMethod
	Select(in Input) (*verdict.ReferenceSelection, error)
}

// Attempt records a strategy that fell through and why.
type Attempt struct {
	Method verdict.SelectionMethod `json:"method"`
	Reason string                  `json:"reason"`
}

// Outcome is the chosen reference plus the strategies skipped on the way.
type Outcome struct {
	Selection *verdict.ReferenceSelection `json:"selection"`
	Attempts  []Attempt                   `json:"attempts,omitempty"`
}

// Selector runs strategies in priority order.
type Selector struct {
	strategies []Strategy
}

// NewSelector creates a Selector. Traditional is appended when the list does
// not already end with it, so a non-empty input always gets a reference.
func NewSelector(strategies ...Strategy) *Selector {
	if n := len(strategies); n == 0 || strategies[n-1].Method() != verdict.SelectionTraditional {
		strategies = append(strategies, Traditional{})
	}
	return &Selector{strategies: strategies}
}

// Strategies returns the methods in the order they are tried.
func (s *Selector) Strategies() []verdict.SelectionMethod {
	out := make([]verdict.SelectionMethod, len(s.strategies))
	for i, st := range s.strategies {
		out[i] = st.Method()
	}
	return out
}

// Select returns the first strategy's selection whose preconditions hold.
// A single candidate is always selected by the traditional method with a
// score of 0.
func (s *Selector) Select(in Input) (Outcome, error) {
	var out Outcome
	switch len(in.Candidates) {
	case 0:
		return out, errors.InsufficientData(fmt.Sprintf("batch %s has no reference candidates", in.BatchKey))
	case 1:
		sel, err := Traditional{}.Select(in)
		out.Selection = sel
		return out, err
	}

	for _, st := range s.strategies {
		sel, err := st.Select(in)
		if err == nil {
			out.Selection = sel
			return out, nil
		}
		if !stderrors.Is(err, ErrPreconditionsUnmet) {
			return out, errors.Wrapf(err, "%s reference selection for batch %s", st.Method(), in.BatchKey)
		}
		out.Attempts = append(out.Attempts, Attempt{Method: st.Method(), Reason: err.Error()})
	}
	return out, errors.InsufficientData(fmt.Sprintf("no reference strategy applied to batch %s", in.BatchKey))
}

// argmin returns the index of the lowest score; ties go to the lower index.
func argmin(scores []float64) int {
	best := 0
	for i, v := range scores[1:] {
		if v < scores[best] {
			best = i + 1
		}
	}
	return best
}
