package dataprocessing

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"crunchcli/internal/errors"
	"crunchcli/internal/shared/testutil"
)

func TestReadTableSamples(t *testing.T) {
	tests := []struct {
		name       string
		header     []string
		rows       [][]string
		wantColumn string
		want       []float64
	}{
		{
			name:       "keyword column",
			header:     []string{"Time", "Voltage [V]", "Status"},
			rows:       [][]string{{"0.1", "-2.5", "1"}, {"0.2", "-2.49", "1"}},
			wantColumn: "Voltage [V]",
			want:       []float64{-2.5, -2.49},
		},
		{
			name:       "keyword match is case insensitive and first hit wins",
			header:     []string{"ADC raw", "VDC"},
			rows:       [][]string{{"100", "1.0"}},
			wantColumn: "ADC raw",
			want:       []float64{100},
		},
		{
			name:       "falls back to last numeric column",
			header:     []string{"Sample", "Value", "Note"},
			rows:       [][]string{{"1", "3.1", "ok"}, {"2", "3.2", "ok"}},
			wantColumn: "Value",
			want:       []float64{3.1, 3.2},
		},
		{
			name:       "missing cells are dropped",
			header:     []string{"Time", "Current"},
			rows:       [][]string{{"0", "1.0"}, {"1", ""}, {"2", "NaN"}, {"3", "N/A"}, {"4", "2.0"}},
			wantColumn: "Current",
			want:       []float64{1.0, 2.0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := testutil.WriteCSV(t, t.TempDir(), "VT_10V_CH1.csv", tt.header, tt.rows...)

			got, err := ReadTableSamples(path)
			require.NoError(t, err)
			assert.Equal(t, tt.wantColumn, got.Column)
			assert.Equal(t, tt.want, got.Samples)
		})
	}
}

func TestReadTableSamples_Errors(t *testing.T) {
	tests := []struct {
		name   string
		header []string
		rows   [][]string
	}{
		{
			name:   "no numeric column",
			header: []string{"Name", "Status"},
			rows:   [][]string{{"a", "ok"}},
		},
		{
			name:   "keyword column with text",
			header: []string{"Voltage"},
			rows:   [][]string{{"1.0"}, {"high"}},
		},
		{
			name:   "keyword column empty",
			header: []string{"Voltage"},
			rows:   [][]string{{""}, {"nan"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := testutil.WriteCSV(t, t.TempDir(), "VT_10V_CH1.csv", tt.header, tt.rows...)

			_, err := ReadTableSamples(path)
			require.Error(t, err)
			assert.Equal(t, errors.ErrTypeParsing, errors.TypeOf(err))
		})
	}
}

func TestReadTableSamples_BOMHeader(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "VT_10V_CH1.csv", "\ufeffVoltage,Time\n1.5,0\n")

	got, err := ReadTableSamples(path)
	require.NoError(t, err)
	assert.Equal(t, "Voltage", got.Column)
	assert.Equal(t, []float64{1.5}, got.Samples)
}

func TestReadTableSamples_Workbook(t *testing.T) {
	path := testutil.WriteWorkbook(t, t.TempDir(), "VT_m2V5_CH2.xlsx",
		[]string{"Index", "Measurement"},
		[]string{"1", "-2.501"},
		[]string{"2", "-2.499"},
	)

	got, err := ReadTableSamples(path)
	require.NoError(t, err)
	assert.Equal(t, "Measurement", got.Column)
	assert.Equal(t, []float64{-2.501, -2.499}, got.Samples)
}

func TestReadTableSamples_WorkbookIgnoresNumberFormat(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	style, err := f.NewStyle(&excelize.Style{NumFmt: 2})
	require.NoError(t, err)

	require.NoError(t, f.SetCellValue(sheet, "A1", "Voltage"))
	require.NoError(t, f.SetCellValue(sheet, "A2", -2.498169))
	require.NoError(t, f.SetCellValue(sheet, "A3", -2.501234))
	require.NoError(t, f.SetCellStyle(sheet, "A2", "A3", style))

	path := filepath.Join(t.TempDir(), "VT_m2V5_CH1.xlsx")
	require.NoError(t, f.SaveAs(path))

	got, err := ReadTableSamples(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{-2.498169, -2.501234}, got.Samples)
}
