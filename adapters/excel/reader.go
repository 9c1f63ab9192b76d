package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"cellqc/domain/cycling"
	"cellqc/internal/logging"
)

// DataReader reads cycler exports from Excel and CSV files
type DataReader struct {
	cfg    ReaderConfig
	logger *slog.Logger
}

// NewDataReader creates a reader. A nil logger discards output.
func NewDataReader(cfg ReaderConfig, logger *slog.Logger) *DataReader {
	if logger == nil {
		logger = logging.Discard()
	}
	if cfg.Aliases == nil {
		cfg.Aliases = defaultAliases()
	}
	return &DataReader{cfg: cfg, logger: logging.Component(logger, "excel_reader")}
}

// ReadSeries reads one export file, or every .xlsx and .csv file in a
// directory. Unreadable files in a directory are logged and skipped.
func (r *DataReader) ReadSeries(ctx context.Context, source string) ([]cycling.ChannelSeries, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("source not found: %w", err)
	}
	if !info.IsDir() {
		s, err := r.ReadFile(source)
		if err != nil {
			return nil, err
		}
		return []cycling.ChannelSeries{s}, nil
	}

	files, err := listExports(source)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .xlsx or .csv files in %s", source)
	}
	r.logger.Info("reading directory", "source", source, "files", len(files))

	series := make([]cycling.ChannelSeries, 0, len(files))
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, err := r.ReadFile(path)
		if err != nil {
			r.logger.Warn("skipping file", "file", filepath.Base(path), "error", err)
			continue
		}
		series = append(series, s)
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("none of the %d files in %s could be read", len(files), source)
	}
	return series, nil
}

// listExports returns the workbook and CSV files of dir in name order,
// skipping hidden files and Office lock files.
func listExports(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, "~") || strings.HasPrefix(name, ".") {
			continue
		}
		switch strings.ToLower(filepath.Ext(name)) {
		case ".xlsx", ".csv":
			files = append(files, filepath.Join(dir, name))
		}
	}
	sort.Strings(files)
	return files, nil
}

// ReadFile reads one export into a channel series. Identity, batch key and
// test mode come from the file name.
func (r *DataReader) ReadFile(path string) (cycling.ChannelSeries, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		rows, err = r.readCSVRows(path)
	case ".xlsx":
		rows, err = r.readExcelRows(path)
	default:
		return cycling.ChannelSeries{}, fmt.Errorf("unsupported file type: %s", filepath.Ext(path))
	}
	if err != nil {
		return cycling.ChannelSeries{}, err
	}
	if len(rows) < 2 {
		return cycling.ChannelSeries{}, fmt.Errorf("%s must have a header row and at least one data row", filepath.Base(path))
	}

	fi := ParseFileName(path, r.cfg.ModePatterns)
	series, skipped, err := r.toSeries(fi, processRows(rows))
	if err != nil {
		return cycling.ChannelSeries{}, fmt.Errorf("%s: %w", fi.Name, err)
	}
	series.Source = path
	if skipped > 0 {
		r.logger.Debug("rows without a cycle index skipped", "file", fi.Name, "rows", skipped)
	}
	r.logger.Debug("file read", "file", fi.Name, "channel", series.ID, "batch", series.BatchKey, "cycles", series.Len())
	return series, nil
}

// readExcelRows reads the cycle sheet, falling back to the first sheet.
func (r *DataReader) readExcelRows(path string) ([][]string, error) {
	start := time.Now()
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheet := r.cfg.CycleSheet
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		r.logger.Debug("cycle sheet missing, using first sheet", "file", filepath.Base(path), "want", sheet, "sheet", sheets[0])
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	r.logger.Debug("sheet read", "file", filepath.Base(path), "sheet", sheet, "rows", len(rows), "elapsed", time.Since(start))
	return rows, nil
}

func (r *DataReader) readCSVRows(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	return rows, nil
}

// processRows converts raw string rows into SheetData
func processRows(rows [][]string) SheetData {
	headerRow := rows[0]
	headers := make([]string, len(headerRow))
	for i, header := range headerRow {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(header, "\ufeff"))
	}

	dataRows := make([]RawRowData, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rowData := make(RawRowData, len(headers))
		for j, cell := range row {
			if j < len(headers) {
				rowData[headers[j]] = strings.TrimSpace(cell)
			}
		}
		dataRows = append(dataRows, rowData)
	}
	return SheetData{Headers: headers, Rows: dataRows}
}

// toSeries maps sheet rows onto cycle records. Rows are numbered from 1 when
// the sheet has no cycle column. Cells that do not parse as numbers become
// missing readings.
func (r *DataReader) toSeries(fi FileInfo, data SheetData) (cycling.ChannelSeries, int, error) {
	cols := r.cfg.resolveColumns(data.Headers)
	if _, ok := cols[ColumnDischarge]; !ok {
		return cycling.ChannelSeries{}, 0, fmt.Errorf("no discharge capacity column among %d headers", len(data.Headers))
	}

	series := cycling.ChannelSeries{
		ID:       fi.ID(),
		Host:     fi.Host,
		Channel:  fi.Channel,
		BatchKey: fi.BatchKey,
		Mode:     fi.Mode,
	}
	cell := func(row RawRowData, c Column) string {
		if h, ok := cols[c]; ok {
			return row[h]
		}
		return ""
	}

	skipped := 0
	for i, row := range data.Rows {
		if blankRow(row) {
			continue
		}
		cycle := i + 1
		if _, ok := cols[ColumnCycle]; ok {
			n, ok := parseCycle(cell(row, ColumnCycle))
			if !ok {
				skipped++
				continue
			}
			cycle = n
		}
		series.Records = append(series.Records, cycling.CycleRecord{
			CycleIndex:        cycle,
			Mode:              cell(row, ColumnMode),
			ChargeCapacity:    parseReading(cell(row, ColumnCharge)),
			DischargeCapacity: parseReading(cell(row, ColumnDischarge)),
			Efficiency:        parseReading(cell(row, ColumnEfficiency)),
			Voltage:           parseReading(cell(row, ColumnVoltage)),
			ChargeEndVoltage:  parseReading(cell(row, ColumnChargeEndVoltage)),
			Energy:            parseReading(cell(row, ColumnEnergy)),
		})
	}
	if len(series.Records) == 0 {
		return cycling.ChannelSeries{}, skipped, fmt.Errorf("no cycle rows")
	}
	return series, skipped, nil
}

func blankRow(row RawRowData) bool {
	for _, v := range row {
		if v != "" {
			return false
		}
	}
	return true
}

func parseCycle(s string) (int, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 1 || v != math.Trunc(v) {
		return 0, false
	}
	return int(v), true
}

// parseReading accepts plain numbers and percentages such as "98.5%".
func parseReading(s string) cycling.Reading {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if s == "" {
		return cycling.Missing()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return cycling.Missing()
	}
	return cycling.Of(v)
}
