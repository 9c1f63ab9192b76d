// Package analysis runs the per-batch pipeline: metric extraction, outlier
// detection, risk classification and reference selection.
package analysis

import (
	"fmt"
	"log/slog"
	"sort"

	"cellqc/domain/core"
	"cellqc/domain/cycling"
	"cellqc/domain/verdict"
	"cellqc/internal/config"
	"cellqc/internal/errors"
	"cellqc/internal/logging"
	"cellqc/internal/metrics"
	"cellqc/internal/outlier"
	"cellqc/internal/reference"
	"cellqc/internal/risk"
)

// Analyzer holds the components built from one validated Settings value.
// It is safe for concurrent use.
type Analyzer struct {
	settings    config.Settings
	fingerprint core.Fingerprint
	extractor   *metrics.Extractor
	detector    *outlier.Detector
	classifier  *risk.Classifier
	selector    *reference.Selector
	logger      *slog.Logger
}

// New validates s and builds an Analyzer. Configuration conflicts are
// reported here, before any batch runs.
func New(s config.Settings, logger *slog.Logger) (*Analyzer, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Discard()
	}

	method, err := outlierMethod(s)
	if err != nil {
		return nil, err
	}
	tracked, err := cycling.ParseMetricNames(s.OutlierMetrics)
	if err != nil {
		return nil, errors.ConfigInvalid("outlier_metrics: " + err.Error())
	}
	strats, err := strategies(s)
	if err != nil {
		return nil, err
	}
	fp, err := core.NewFingerprint(s)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fingerprint settings")
	}

	return &Analyzer{
		settings:    s,
		fingerprint: fp,
		extractor:   metrics.New(extractorParams(s)),
		detector:    outlier.NewDetector(method, tracked),
		classifier:  risk.NewClassifier(riskThresholds(s)),
		selector:    reference.NewSelector(strats...),
		logger:      logging.Component(logger, "analyzer"),
	}, nil
}

// Settings returns the configuration the analyzer was built from.
func (a *Analyzer) Settings() config.Settings { return a.settings }

// Fingerprint identifies the configuration in run reports.
func (a *Analyzer) Fingerprint() core.Fingerprint { return a.fingerprint }

// OutlierMethod returns the active detection method.
func (a *Analyzer) OutlierMethod() verdict.OutlierMethod { return a.detector.Method().Name() }

// AnalyzeBatch runs the full pipeline on one batch. Problems with individual
// channels or steps are recorded as diagnostics; it never fails.
func (a *Analyzer) AnalyzeBatch(b cycling.BatchGroup) BatchResult {
	res := BatchResult{
		Key:         b.Key,
		Verdicts:    []verdict.OutlierVerdict{},
		Risks:       []verdict.RiskAssessment{},
		Metrics:     make(map[cycling.ChannelID]cycling.MetricVector),
		Baselines:   make(map[cycling.ChannelID]metrics.OneC),
		Diagnostics: []Diagnostic{},
	}
	res.Statistics.Channels = len(b.Channels)
	diag := func(ch cycling.ChannelID, err error) {
		res.Diagnostics = append(res.Diagnostics, Diagnostic{Channel: ch, Code: errors.GetCode(err), Message: err.Error()})
	}

	channels := append([]cycling.ChannelSeries(nil), b.Channels...)
	sort.SliceStable(channels, func(i, j int) bool { return channels[i].ID < channels[j].ID })

	series := make(map[cycling.ChannelID]cycling.ChannelSeries, len(channels))
	for _, ch := range channels {
		if _, dup := series[ch.ID]; dup {
			diag(ch.ID, errors.InvalidInput("duplicate channel ignored"))
			continue
		}
		if err := ch.Validate(); err != nil {
			diag(ch.ID, errors.WithCode(errors.CodeInvalidInput, err))
			continue
		}
		clean, dropped := a.extractor.Sanitize(ch)
		if dropped > 0 {
			diag(ch.ID, errors.InvalidInput(fmt.Sprintf("%d readings outside valid ranges treated as missing", dropped)))
		}
		if !a.extractor.Eligible(clean) {
			diag(ch.ID, errors.InsufficientData(fmt.Sprintf("%d cycles, need %d", clean.Len(), a.settings.MinCyclesRequired)))
			a.logger.Info("channel omitted", "batch", b.Key, "channel", ch.ID, "cycles", clean.Len(), "min_cycles", a.settings.MinCyclesRequired)
			continue
		}
		series[ch.ID] = clean
		res.Metrics[ch.ID] = a.extractor.Extract(clean)
		res.Baselines[ch.ID] = a.extractor.LocateOneC(clean)
	}
	res.Statistics.Analyzed = len(series)
	if len(series) == 0 {
		diag("", errors.InsufficientData("no channel has enough cycles"))
		a.logger.Warn("batch skipped", "batch", b.Key, "channels", len(b.Channels))
		return res
	}

	detection := a.detector.Detect(outlier.Input{Metrics: res.Metrics, Series: series})
	res.Verdicts = detection.Verdicts
	res.Inconsistent = detection.Inconsistent
	for _, mr := range detection.PerMetric {
		if mr.Degenerate {
			diag("", errors.DegenerateStatistics(fmt.Sprintf("%s has no spread; spread floored", mr.Metric)))
		}
	}
	excluded := detection.Outliers()

	ids := sortedIDs(series)
	for _, id := range ids {
		res.Risks = append(res.Risks, a.classifier.Classify(id, res.Metrics[id]))
	}
	res.ProblemBatch = risk.ProblemBatch(res.Risks, a.settings.ProblemBatchRatio)

	if detection.Inconsistent {
		res.ProblemBatch = true
		diag("", errors.InsufficientData(fmt.Sprintf("all %d channels flagged as outliers; no reference selected, retest the batch", len(ids))))
		res.Statistics = a.statistics(res, excluded)
		a.logger.Warn("batch inconsistent", "batch", b.Key, "channels", len(ids))
		return res
	}

	in := reference.Input{BatchKey: b.Key}
	for _, id := range ids {
		if excluded[id] {
			continue
		}
		in.Candidates = append(in.Candidates, reference.Candidate{
			Series:   series[id],
			Metrics:  res.Metrics[id],
			Baseline: res.Baselines[id].Cycle,
		})
	}
	outcome, err := a.selector.Select(in)
	res.Selection = outcome.Selection
	res.Attempts = outcome.Attempts
	if err != nil {
		diag("", err)
	}

	res.Statistics = a.statistics(res, excluded)
	a.logger.Info("batch analyzed",
		"batch", b.Key,
		"channels", len(b.Channels),
		"outliers", len(excluded),
		"reference", referenceChannel(res.Selection),
		"problem_batch", res.ProblemBatch)
	for _, at := range res.Attempts {
		a.logger.Debug("reference strategy skipped", "batch", b.Key, "method", at.Method, "reason", at.Reason)
	}
	return res
}

func referenceChannel(sel *verdict.ReferenceSelection) string {
	if sel == nil {
		return ""
	}
	return sel.Channel.String()
}

func sortedIDs[V any](m map[cycling.ChannelID]V) []cycling.ChannelID {
	ids := make([]cycling.ChannelID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
