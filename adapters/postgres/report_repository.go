package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"cellqc/domain/core"
	"cellqc/internal/analysis"
	"cellqc/ports"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ReportRepositoryImpl implements ReportRepository for PostgreSQL
type ReportRepositoryImpl struct {
	db *sqlx.DB
}

// NewReportRepository creates a new PostgreSQL report repository
func NewReportRepository(db *sqlx.DB) ports.ReportRepository {
	return &ReportRepositoryImpl{db: db}
}

// reportRow is a run_reports row. The payload is passed as text because
// lib/pq sends []byte parameters as bytea.
type reportRow struct {
	ports.ReportSummary
	Payload string `db:"payload"`
}

func newReportRow(report *analysis.RunReport) (reportRow, error) {
	payload, err := json.Marshal(report)
	if err != nil {
		return reportRow{}, fmt.Errorf("failed to encode report %s: %w", report.RunID, err)
	}
	return reportRow{ReportSummary: ports.SummarizeReport(report), Payload: string(payload)}, nil
}

// SaveReport upserts the run and replaces its batch rows in one transaction
func (r *ReportRepositoryImpl) SaveReport(ctx context.Context, report *analysis.RunReport) error {
	row, err := newReportRow(report)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO run_reports (
			run_id, started_at, finished_at, config_fingerprint, outlier_method,
			batch_count, problem_batch_count, payload
		) VALUES (
			:run_id, :started_at, :finished_at, :config_fingerprint, :outlier_method,
			:batch_count, :problem_batch_count, CAST(:payload AS JSONB)
		)
		ON CONFLICT (run_id) DO UPDATE SET
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at,
			config_fingerprint = EXCLUDED.config_fingerprint,
			outlier_method = EXCLUDED.outlier_method,
			batch_count = EXCLUDED.batch_count,
			problem_batch_count = EXCLUDED.problem_batch_count,
			payload = EXCLUDED.payload
	`, row)
	if err != nil {
		return fmt.Errorf("failed to save report %s: %w", report.RunID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM batch_results WHERE run_id = $1`, report.RunID); err != nil {
		return fmt.Errorf("failed to clear batch rows for %s: %w", report.RunID, err)
	}
	if batches := ports.SummarizeBatches(report); len(batches) > 0 {
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO batch_results (
				run_id, batch_key, channels, excluded, inconsistent, problem_batch,
				reference_channel, selection_method
			) VALUES (
				:run_id, :batch_key, :channels, :excluded, :inconsistent, :problem_batch,
				:reference_channel, :selection_method
			)
		`, batches)
		if err != nil {
			return fmt.Errorf("failed to save batch rows for %s: %w", report.RunID, err)
		}
	}

	return tx.Commit()
}

// GetReport loads the stored report payload
func (r *ReportRepositoryImpl) GetReport(ctx context.Context, runID core.RunID) (*analysis.RunReport, error) {
	var payload string
	err := r.db.GetContext(ctx, &payload, `SELECT payload FROM run_reports WHERE run_id = $1`, runID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load report %s: %w", runID, err)
	}

	var report analysis.RunReport
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return nil, fmt.Errorf("failed to decode report %s: %w", runID, err)
	}
	return &report, nil
}

// ListReports returns run summaries, newest first
func (r *ReportRepositoryImpl) ListReports(ctx context.Context, limit int) ([]ports.ReportSummary, error) {
	summaries := []ports.ReportSummary{}
	err := r.db.SelectContext(ctx, &summaries, `
		SELECT run_id, started_at, finished_at, config_fingerprint, outlier_method,
		       batch_count, problem_batch_count
		FROM run_reports
		ORDER BY started_at DESC
		LIMIT $1
	`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return summaries, nil
}

// ListBatches returns the batch rows of a run ordered by batch key
func (r *ReportRepositoryImpl) ListBatches(ctx context.Context, runID core.RunID) ([]ports.BatchSummary, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM run_reports WHERE run_id = $1)`, runID); err != nil {
		return nil, fmt.Errorf("failed to look up run %s: %w", runID, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
	}

	batches := []ports.BatchSummary{}
	err := r.db.SelectContext(ctx, &batches, `
		SELECT run_id, batch_key, channels, excluded, inconsistent, problem_batch,
		       reference_channel, selection_method
		FROM batch_results
		WHERE run_id = $1
		ORDER BY batch_key
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches for %s: %w", runID, err)
	}
	return batches, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
