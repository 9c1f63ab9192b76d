package excel

import "strings"

// ReaderConfig holds configuration for workbook ingestion
type ReaderConfig struct {
	// CycleSheet is the worksheet holding per-cycle rows. When a workbook
	// has no such sheet the first sheet is read instead.
	CycleSheet string `json:"cycle_sheet"`
	// ModePatterns are matched in order against the file name; the first
	// hit becomes the series test mode.
	ModePatterns []string `json:"mode_patterns"`
	// Aliases maps normalized header text to the column it fills.
	Aliases map[string]Column `json:"aliases"`
}

// DefaultReaderConfig returns the layout used by the cycler exports
func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{
		CycleSheet:   "Cycle",
		ModePatterns: []string{"-0.1C-", "-0.5C-", "-1C-", "-BL-", "-0.33C-"},
		Aliases:      defaultAliases(),
	}
}

func defaultAliases() map[string]Column {
	aliases := map[Column][]string{
		ColumnCycle:            {"循环序号", "循环号", "cycle", "cycle_index", "cycle index", "cycle number"},
		ColumnCharge:           {"充电比容量(mAh/g)", "charge_capacity", "charge capacity", "charge capacity(mAh/g)"},
		ColumnDischarge:        {"放电比容量(mAh/g)", "discharge_capacity", "discharge capacity", "discharge capacity(mAh/g)"},
		ColumnEfficiency:       {"充放电效率(%)", "库伦效率(%)", "首效", "efficiency", "coulombic efficiency", "coulombic_efficiency"},
		ColumnVoltage:          {"放电中值电压(V)", "voltage", "median voltage", "discharge_median_voltage"},
		ColumnChargeEndVoltage: {"充电终止电压(V)", "charge_end_voltage", "charge end voltage"},
		ColumnEnergy:           {"放电比能量(mWh/g)", "energy", "discharge energy", "discharge_energy"},
		ColumnMode:             {"测试模式", "工步模式", "mode"},
	}
	out := make(map[string]Column)
	for col, names := range aliases {
		for _, name := range names {
			out[normalizeHeader(name)] = col
		}
	}
	return out
}

// normalizeHeader folds case, width of parentheses and whitespace so that
// "Discharge Capacity (mAh/g)" and "discharge capacity（mAh/g）" compare equal.
func normalizeHeader(h string) string {
	h = strings.NewReplacer("（", "(", "）", ")", "_", " ").Replace(strings.ToLower(h))
	return strings.Join(strings.Fields(h), "")
}

// resolveColumns maps each known column to the first header that names it.
func (c ReaderConfig) resolveColumns(headers []string) map[Column]string {
	cols := make(map[Column]string)
	for _, h := range headers {
		col, ok := c.Aliases[normalizeHeader(h)]
		if !ok {
			continue
		}
		if _, taken := cols[col]; !taken {
			cols[col] = h
		}
	}
	return cols
}
