package excel

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"cellqc/domain/cycling"
)

func TestParseFileName(t *testing.T) {
	modes := DefaultReaderConfig().ModePatterns
	tests := []struct {
		name    string
		host    string
		channel string
		batch   string
		mode    string
		id      cycling.ChannelID
	}{
		{
			name:    "M2-PC2-036-8-1-LFP0101-0.1C-1018_2 (1).xlsx",
			host:    "M2-PC2-036",
			channel: "8-1",
			batch:   "LFP0101-0.1C-1018-2",
			mode:    "-0.1C-",
			id:      "M2-PC2-036/8-1",
		},
		{
			name:    "192.168.110.236-270060-7-5-G0201-1C-1101_1.xlsx",
			host:    "192.168.110.236-270060",
			channel: "7-5",
			batch:   "G0201-1C-1101-1",
			mode:    "-1C-",
			id:      "192.168.110.236-270060/7-5",
		},
		{
			name:    "M2-PC2-036-8-2-LFP0101-BL-1018.csv",
			host:    "M2-PC2-036",
			channel: "8-2",
			batch:   "LFP0101-BL-1018",
			mode:    "-BL-",
			id:      "M2-PC2-036/8-2",
		},
		{
			name:  "/data/run7/cell_a.xlsx",
			batch: "cell_a",
			id:    "cell_a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fi := ParseFileName(tt.name, modes)
			assert.Equal(t, tt.host, fi.Host)
			assert.Equal(t, tt.channel, fi.Channel)
			assert.Equal(t, tt.batch, fi.BatchKey)
			assert.Equal(t, tt.mode, fi.Mode)
			assert.Equal(t, tt.id, fi.ID())
		})
	}
}

func TestParseFileNameCopiesShareBatch(t *testing.T) {
	modes := DefaultReaderConfig().ModePatterns
	a := ParseFileName("M2-PC2-036-8-1-LFP0101-1C-1018_2.xlsx", modes)
	b := ParseFileName("M2-PC2-036-8-3-LFP0101-1C-1018_2 (3).xlsx", modes)
	assert.Equal(t, a.BatchKey, b.BatchKey)
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestNormalizeHeader(t *testing.T) {
	assert.Equal(t, normalizeHeader("Discharge Capacity (mAh/g)"), normalizeHeader("discharge_capacity（mAh/g）"))
	assert.Equal(t, "放电比容量(mah/g)", normalizeHeader(" 放电比容量（mAh/g） "))
}

func writeWorkbook(t *testing.T, path, sheet string, rows [][]any) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if sheet != "Sheet1" {
		_, err := f.NewSheet(sheet)
		require.NoError(t, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	require.NoError(t, f.SaveAs(path))
}

func TestReadFileWorkbook(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "M2-PC2-036-8-1-LFP0101-1C-1018_2.xlsx")
	writeWorkbook(t, path, "Cycle", [][]any{
		{"循环序号", "充电比容量(mAh/g)", "放电比容量(mAh/g)", "放电中值电压(V)", "充电比能量(mWh/g)", "放电比能量(mWh/g)"},
		{1, 230.5, 210.2, 3.85, 880.0, 800.1},
		{2, 215.0, 209.8, 3.84, 860.0, 798.0},
		{3, 212.0, "", 3.83, 850.0, 790.0},
		{4, 180.0, 175.5, 3.80, 700.0, 650.0},
	})

	r := NewDataReader(DefaultReaderConfig(), nil)
	s, err := r.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, cycling.ChannelID("M2-PC2-036/8-1"), s.ID)
	assert.Equal(t, "LFP0101-1C-1018-2", s.BatchKey)
	assert.Equal(t, "-1C-", s.Mode)
	assert.Equal(t, path, s.Source)
	require.Equal(t, 4, s.Len())
	require.NoError(t, s.Validate())

	first, _ := s.First()
	assert.Equal(t, 1, first.CycleIndex)
	assert.InDelta(t, 230.5, first.ChargeCapacity.Value, 1e-9)
	assert.InDelta(t, 210.2, first.DischargeCapacity.Value, 1e-9)
	assert.InDelta(t, 3.85, first.Voltage.Value, 1e-9)
	assert.InDelta(t, 800.1, first.Energy.Value, 1e-9, "energy is the discharge energy column")
	assert.False(t, first.Efficiency.Valid)
	assert.InDelta(t, 210.2/230.5*100, first.EfficiencyOrDerived().Value, 1e-9)

	third, ok := s.At(3)
	require.True(t, ok)
	assert.False(t, third.DischargeCapacity.Valid, "blank cell is missing")
	assert.True(t, third.Voltage.Valid)
}

func TestReadFileFallsBackToFirstSheet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cell.xlsx")
	writeWorkbook(t, path, "Sheet1", [][]any{
		{"Discharge Capacity (mAh/g)", "Efficiency"},
		{200.0, "98.5%"},
		{199.0, 99.1},
	})

	s, err := NewDataReader(DefaultReaderConfig(), nil).ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())
	assert.Equal(t, []int{1, 2}, []int{s.Records[0].CycleIndex, s.Records[1].CycleIndex}, "row order numbers cycles")
	assert.InDelta(t, 98.5, s.Records[0].Efficiency.Value, 1e-9)
	assert.Equal(t, cycling.ChannelID("cell"), s.ID)
}

func TestReadFileCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "M2-PC2-036-8-2-LFP0101-1C-1018_2.csv")
	content := "\ufeffcycle,charge_capacity,discharge_capacity,voltage\n" +
		"1,230,210,3.8\n" +
		"2,215,n/a,3.79\n" +
		"x,1,1,1\n" +
		",,,\n" +
		"3,214,208,3.78\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s, err := NewDataReader(DefaultReaderConfig(), nil).ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, 3, s.Len(), "bad cycle index and blank rows are dropped")
	assert.False(t, s.Records[1].DischargeCapacity.Valid)
	assert.Equal(t, 3, s.Records[2].CycleIndex)
}

func TestReadFileErrors(t *testing.T) {
	dir := t.TempDir()
	r := NewDataReader(DefaultReaderConfig(), nil)

	noDischarge := filepath.Join(dir, "a.csv")
	require.NoError(t, os.WriteFile(noDischarge, []byte("cycle,voltage\n1,3.8\n"), 0o644))
	_, err := r.ReadFile(noDischarge)
	assert.ErrorContains(t, err, "no discharge capacity column")

	headerOnly := filepath.Join(dir, "b.csv")
	require.NoError(t, os.WriteFile(headerOnly, []byte("cycle,discharge_capacity\n"), 0o644))
	_, err = r.ReadFile(headerOnly)
	assert.Error(t, err)

	_, err = r.ReadFile(filepath.Join(dir, "c.txt"))
	assert.ErrorContains(t, err, "unsupported file type")
}

func TestReadSeriesDirectory(t *testing.T) {
	dir := t.TempDir()
	header := []any{"循环序号", "放电比容量(mAh/g)"}
	for _, name := range []string{
		"M2-PC2-036-8-1-LFP0101-1C-1018_2.xlsx",
		"M2-PC2-036-8-2-LFP0101-1C-1018_2.xlsx",
		"M2-PC2-036-8-3-LFP0201-1C-1018_1.xlsx",
	} {
		writeWorkbook(t, filepath.Join(dir, name), "Cycle", [][]any{header, {1, 200.0}, {2, 199.0}})
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "~$M2-PC2-036-8-1-LFP0101-1C-1018_2.xlsx"), []byte("lock"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.csv"), []byte("cycle\n1\n"), 0o644))

	series, err := NewDataReader(DefaultReaderConfig(), nil).ReadSeries(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, series, 3, "lock file, text file and unreadable csv are skipped")

	groups := cycling.GroupByBatch(series)
	require.Len(t, groups, 2)
	assert.Len(t, groups["LFP0101-1C-1018-2"].Channels, 2)
	assert.Len(t, groups["LFP0201-1C-1018-1"].Channels, 1)
}

func TestReadSeriesErrors(t *testing.T) {
	r := NewDataReader(DefaultReaderConfig(), nil)

	_, err := r.ReadSeries(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	_, err = r.ReadSeries(context.Background(), t.TempDir())
	assert.ErrorContains(t, err, "no .xlsx or .csv files")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.csv"), []byte("cycle,discharge_capacity\n1,200\n"), 0o644))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.ReadSeries(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}
