package excel

// RawRowData represents one data row keyed by its trimmed header
type RawRowData map[string]string

// SheetData is a header row plus the data rows below it
type SheetData struct {
	Headers []string     // Column headers in sheet order
	Rows    []RawRowData // Data rows
}

// Column names a cycle field the reader knows how to fill.
type Column string

const (
	ColumnCycle            Column = "cycle"
	ColumnCharge           Column = "charge_capacity"
	ColumnDischarge        Column = "discharge_capacity"
	ColumnEfficiency       Column = "efficiency"
	ColumnVoltage          Column = "voltage"
	ColumnChargeEndVoltage Column = "charge_end_voltage"
	ColumnEnergy           Column = "energy"
	ColumnMode             Column = "mode"
)
