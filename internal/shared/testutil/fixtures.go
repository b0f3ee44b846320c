package testutil

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

// Instrument log bodies in the three text layouts the extractor understands.
const (
	HierarchicalBody = `Measurement log VT2816A
+---------------------------------------------------------------+
|  Name               Value      Unit   Status                  |
+---------------------------------------------------------------+
|  Voltage_Ch01       -2.498169   V     OK
|  Current_Ch01        0.000120   A     OK
|  Voltage_Ch02       -2.501004   V     OK
|  Current_Ch02        0.000118   A     OK
|  Voltage_Ch01       -2.499870   V     OK
|  Current_Ch01        0.000121   A     OK
|  Voltage_Ch02       -2.500310   V     OK
|  Current_Ch02        0.000119   A     OK
`

	FlatChannelBody = `Begin TriggerBlock
   66.001210   VT2816_1_Ch1::CurVoltage    10.011883
   66.001210   VT2816_1_Ch1::AvgVoltage    10.010000
   67.001210   VT2816_1_Ch2::CurVoltage    10.004120
   67.001210   VT2816_1_Ch2::AvgVoltage    10.003000
   68.001210   VT2816_1_Ch1::CurVoltage    10.012001
   68.001210   VT2816_1_Ch2::CurVoltage    10.004500
End TriggerBlock
`

	FlatBody = `date Mon Mar 4 10:00:00 2024
base hex  timestamps absolute
   15.001821   VN1600_1::AIN   0.686400
   16.001821   VN1600_1::AIN   0.686500
   17.001821   VN1600_1::AIN   0.686300
`
)

// WriteFile writes content to name inside dir and returns the full path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create fixture dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture %s: %v", name, err)
	}
	return path
}

// WriteCSV writes an Output table with the given header and rows.
func WriteCSV(t *testing.T, dir, name string, header []string, rows ...[]string) string {
	t.Helper()

	var b strings.Builder
	w := csv.NewWriter(&b)
	if err := w.Write(header); err != nil {
		t.Fatalf("write csv header: %v", err)
	}
	if err := w.WriteAll(rows); err != nil {
		t.Fatalf("write csv rows: %v", err)
	}
	return WriteFile(t, dir, name, b.String())
}

// WriteWorkbook writes an Output table to the first sheet of a new xlsx file.
func WriteWorkbook(t *testing.T, dir, name string, header []string, rows ...[]string) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	all := append([][]string{header}, rows...)
	for i, row := range all {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			t.Fatalf("set row %d: %v", i+1, err)
		}
	}

	path := filepath.Join(dir, name)
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
	return path
}
