package postgres

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cellqc/domain/core"
	"cellqc/domain/verdict"
	"cellqc/internal/analysis"
	"cellqc/ports"
)

func sampleReport() *analysis.RunReport {
	start := time.Date(2025, 10, 18, 9, 0, 0, 0, time.UTC)
	return &analysis.RunReport{
		RunID:             core.NewRunID(),
		StartedAt:         start,
		FinishedAt:        start.Add(3 * time.Second),
		ConfigFingerprint: core.Fingerprint("abc123"),
		OutlierMethod:     verdict.MethodBoxplot,
		Batches: []analysis.BatchResult{
			{
				Key:          "LFP0101-1C-1018-2",
				ProblemBatch: true,
				Verdicts: []verdict.OutlierVerdict{
					{Channel: "h/1-1"},
					{Channel: "h/1-2", Outlier: true},
				},
				Selection:  &verdict.ReferenceSelection{Channel: "h/1-1", Method: verdict.SelectionTraditional},
				Statistics: analysis.Statistics{Channels: 3},
			},
			{Key: "LFP0201-1C-1018-1", Statistics: analysis.Statistics{Channels: 1}},
		},
	}
}

func TestNewReportRow(t *testing.T) {
	report := sampleReport()
	row, err := newReportRow(report)
	require.NoError(t, err)

	assert.Equal(t, report.RunID, row.RunID)
	assert.Equal(t, "abc123", row.ConfigFingerprint)
	assert.Equal(t, "boxplot", row.OutlierMethod)
	assert.Equal(t, 2, row.BatchCount)
	assert.Equal(t, 1, row.ProblemBatchCount)

	var decoded analysis.RunReport
	require.NoError(t, json.Unmarshal([]byte(row.Payload), &decoded))
	assert.Equal(t, report.RunID, decoded.RunID)
	require.Len(t, decoded.Batches, 2)
	assert.Equal(t, "h/1-1", decoded.Batches[0].Selection.Channel.String())
}

func TestSummarizeBatches(t *testing.T) {
	report := sampleReport()
	rows := ports.SummarizeBatches(report)
	require.Len(t, rows, 2)

	assert.Equal(t, report.RunID, rows[0].RunID)
	assert.Equal(t, 3, rows[0].Channels)
	assert.Equal(t, 1, rows[0].Excluded)
	assert.True(t, rows[0].ProblemBatch)
	require.NotNil(t, rows[0].ReferenceChannel)
	assert.Equal(t, "h/1-1", *rows[0].ReferenceChannel)
	assert.Equal(t, "traditional", *rows[0].SelectionMethod)

	assert.Nil(t, rows[1].ReferenceChannel, "no selection leaves the column null")
	assert.Nil(t, rows[1].SelectionMethod)
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, defaultListLimit},
		{-3, defaultListLimit},
		{10, 10},
		{maxListLimit + 1, maxListLimit},
	}
	for _, tt := range tests {
		if got := clampLimit(tt.in); got != tt.want {
			t.Errorf("clampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
