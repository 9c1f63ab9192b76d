package analysis

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"cellqc/domain/core"
	"cellqc/domain/cycling"
	"cellqc/internal/errors"
)

// AnalyzeAll analyzes every batch, at most analysis_workers at a time.
// Cancellation is checked before each batch starts; a batch already running
// completes. Results are sorted by batch key.
func (a *Analyzer) AnalyzeAll(ctx context.Context, batches map[string]cycling.BatchGroup) (*RunReport, error) {
	keys := make([]string, 0, len(batches))
	for k := range batches {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	report := &RunReport{
		RunID:             core.NewRunID(),
		StartedAt:         time.Now().UTC(),
		ConfigFingerprint: a.fingerprint,
		OutlierMethod:     a.OutlierMethod(),
	}
	a.logger.Info("run started", "run_id", report.RunID, "batches", len(keys), "config", a.fingerprint.Short())

	workers := a.settings.AnalysisWorkers
	if workers < 1 {
		workers = 1
	}
	results := make([]BatchResult, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = a.AnalyzeBatch(batches[key])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		a.logger.Warn("run cancelled", "run_id", report.RunID, "error", err)
		return nil, errors.Wrap(err, "analysis run cancelled")
	}

	report.Batches = results
	report.FinishedAt = time.Now().UTC()
	a.logger.Info("run finished", "run_id", report.RunID, "duration", report.FinishedAt.Sub(report.StartedAt))
	return report, nil
}

// Analyze groups series by batch key and analyzes every group.
func (a *Analyzer) Analyze(ctx context.Context, series []cycling.ChannelSeries) (*RunReport, error) {
	return a.AnalyzeAll(ctx, cycling.GroupByBatch(series))
}
