package ports

import (
	"context"
	"time"

	"cellqc/domain/core"
	"cellqc/internal/analysis"
)

// ReportRepository persists run reports
type ReportRepository interface {
	// SaveReport stores a finished run. Saving the same run twice replaces it.
	SaveReport(ctx context.Context, report *analysis.RunReport) error
	// GetReport returns core.ErrRunNotFound when the run does not exist.
	GetReport(ctx context.Context, runID core.RunID) (*analysis.RunReport, error)
	// ListReports returns the most recent runs first.
	ListReports(ctx context.Context, limit int) ([]ReportSummary, error)
	// ListBatches returns the per-batch outcome rows of one run by key.
	ListBatches(ctx context.Context, runID core.RunID) ([]BatchSummary, error)
}

// ReportSummary is the listing view of a stored run
type ReportSummary struct {
	RunID             core.RunID `json:"run_id" db:"run_id"`
	StartedAt         time.Time  `json:"started_at" db:"started_at"`
	FinishedAt        time.Time  `json:"finished_at" db:"finished_at"`
	ConfigFingerprint string     `json:"config_fingerprint" db:"config_fingerprint"`
	OutlierMethod     string     `json:"outlier_method" db:"outlier_method"`
	BatchCount        int        `json:"batch_count" db:"batch_count"`
	ProblemBatchCount int        `json:"problem_batch_count" db:"problem_batch_count"`
}

// BatchSummary is the queryable outcome of one batch
type BatchSummary struct {
	RunID            core.RunID `json:"run_id" db:"run_id"`
	BatchKey         string     `json:"batch_key" db:"batch_key"`
	Channels         int        `json:"channels" db:"channels"`
	Excluded         int        `json:"excluded" db:"excluded"`
	Inconsistent     bool       `json:"inconsistent" db:"inconsistent"`
	ProblemBatch     bool       `json:"problem_batch" db:"problem_batch"`
	ReferenceChannel *string    `json:"reference_channel,omitempty" db:"reference_channel"`
	SelectionMethod  *string    `json:"selection_method,omitempty" db:"selection_method"`
}

// SummarizeReport builds the listing view of a report.
func SummarizeReport(r *analysis.RunReport) ReportSummary {
	s := ReportSummary{
		RunID:             r.RunID,
		StartedAt:         r.StartedAt,
		FinishedAt:        r.FinishedAt,
		ConfigFingerprint: r.ConfigFingerprint.String(),
		OutlierMethod:     string(r.OutlierMethod),
		BatchCount:        len(r.Batches),
	}
	for _, b := range r.Batches {
		if b.ProblemBatch {
			s.ProblemBatchCount++
		}
	}
	return s
}

// SummarizeBatches builds one BatchSummary per batch in report order.
func SummarizeBatches(r *analysis.RunReport) []BatchSummary {
	out := make([]BatchSummary, 0, len(r.Batches))
	for _, b := range r.Batches {
		s := BatchSummary{
			RunID:        r.RunID,
			BatchKey:     b.Key,
			Channels:     b.Statistics.Channels,
			Excluded:     len(b.Excluded()),
			Inconsistent: b.Inconsistent,
			ProblemBatch: b.ProblemBatch,
		}
		if b.Selection != nil {
			channel := b.Selection.Channel.String()
			method := string(b.Selection.Method)
			s.ReferenceChannel = &channel
			s.SelectionMethod = &method
		}
		out = append(out, s)
	}
	return out
}
