package exporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crunchcli/internal/shared/testutil"
	"crunchcli/pkg/contracts/domain"
)

func plainRow() domain.AggregateRow {
	return domain.AggregateRow{
		Channel: 1, IOType: domain.IOTypeInput, RangeSetting: domain.RangeNotApplicable, TestValue: -2.5,
		Mean: -2.4991234567, StdDev: math.NaN(), Min: -2.5, Max: -2.4, Samples: 1,
	}
}

func evaluatedRows() []domain.AggregateRow {
	matched := plainRow()
	matched.RangeSetting = "10V"
	matched.StdDev = 0.001
	matched.Samples = 4
	matched.Tolerance = &domain.ToleranceResult{
		Matched: true, RangeOverride: "20V",
		Reference: -2.5, Tolerance: 0.015, LowerLimit: -2.515, UpperLimit: -2.485,
		MeanCheck: true, MeanTwoSigmaCheck: false,
	}

	unmatched := plainRow()
	unmatched.Channel = 2
	unmatched.Tolerance = func() *domain.ToleranceResult { r := domain.UnmatchedTolerance(); return &r }()

	return []domain.AggregateRow{matched, unmatched}
}

func TestResultTable_Headers(t *testing.T) {
	plain := ResultTable{Unit: domain.UnitVolt, Rows: []domain.AggregateRow{plainRow()}}
	assert.Equal(t, []string{
		"Channel", "I/O Type", "Range Setting", "Test Value [V]",
		"Mean [V]", "StdDev [V]", "Min [V]", "Max [V]", "Samples",
	}, plain.Headers())

	evaluated := ResultTable{Unit: domain.UnitMilliAmp, Rows: evaluatedRows()}
	assert.Equal(t, []string{
		"Channel", "I/O Type", "Range Setting", "Test Value [mA]",
		"Reference Value [mA]", "Tolerance [mA]", "Lower Limit [mA]", "Upper Limit [mA]",
		"Mean [mA]", "StdDev [mA]", "Min [mA]", "Max [mA]", "Samples",
		"Mean Check", "Mean±2σ Check",
	}, evaluated.Headers())
}

func TestResultTable_Records(t *testing.T) {
	tests := []struct {
		name  string
		table ResultTable
		want  [][]string
	}{
		{
			name:  "without tolerance",
			table: ResultTable{Unit: domain.UnitVolt, Rows: []domain.AggregateRow{plainRow()}},
			want: [][]string{
				{"1", "Input", "N/A", "-2.5", "-2.499123", "", "-2.500000", "-2.400000", "1"},
			},
		},
		{
			name:  "with tolerance uses range override and verdicts",
			table: ResultTable{Unit: domain.UnitVolt, Rows: evaluatedRows()},
			want: [][]string{
				{"1", "Input", "20V", "-2.5", "-2.500000", "0.015000", "-2.515000", "-2.485000",
					"-2.499123", "0.001000", "-2.500000", "-2.400000", "4", "PASS", "FAIL"},
				{"2", "Input", "N/A", "-2.5", "", "", "", "",
					"-2.499123", "", "-2.500000", "-2.400000", "1", "FAIL", "FAIL"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.table.Records()
			assert.Equal(t, tt.want, got)
			for _, rec := range got {
				assert.Len(t, rec, len(tt.table.Headers()))
			}
		})
	}
}

func TestResultTable_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ResultTable{Unit: domain.UnitVolt, Rows: evaluatedRows()}.WriteJSON(&buf))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "V", doc["unit"])

	rows := doc["rows"].([]any)
	require.Len(t, rows, 2)

	first := rows[0].(map[string]any)
	assert.Equal(t, "20V", first["range_setting"])
	assert.Equal(t, 0.001, first["stddev"])
	tol := first["tolerance"].(map[string]any)
	assert.Equal(t, true, tol["matched"])
	assert.Equal(t, "PASS", tol["mean_check"])
	assert.Equal(t, "FAIL", tol["mean_2sigma_check"])

	second := rows[1].(map[string]any)
	assert.Nil(t, second["stddev"])
	tol = second["tolerance"].(map[string]any)
	assert.Equal(t, false, tol["matched"])
	assert.Nil(t, tol["reference"])
	assert.Nil(t, tol["upper_limit"])
}

func TestResultExporter_Export(t *testing.T) {
	dir := t.TempDir()
	logger, handler := testutil.NewTestLogger(t)
	exp := NewResultExporter(filepath.Join(dir, "out"), logger)
	table := ResultTable{Unit: domain.UnitVolt, Rows: evaluatedRows()}

	csvPath, err := exp.Export(table, "crunch_results", FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out", "crunch_results.csv"), csvPath)

	raw, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(raw, utf8BOM))

	records, err := csv.NewReader(bytes.NewReader(raw[len(utf8BOM):])).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, table.Headers(), records[0])
	assert.Equal(t, "PASS", records[1][13])

	jsonPath, err := exp.Export(table, "crunch_results", FormatJSON)
	require.NoError(t, err)
	assert.FileExists(t, jsonPath)

	_, err = exp.Export(table, "crunch_results", Format("xml"))
	assert.Error(t, err)

	testutil.AssertLogAttr(t, handler, "component", "result_exporter")
}

func TestCSVWriter_AbsolutePathIgnoresBase(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "abs.csv")
	w := NewCSVWriter(filepath.Join(dir, "elsewhere"), nil)

	path, err := w.WriteCSV(target, WriteOptions{Headers: []string{"a"}, Records: [][]string{{"1"}}})
	require.NoError(t, err)
	assert.Equal(t, target, path)

	raw, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "a\n1\n", string(raw))
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "", formatFloat(math.NaN()))
	assert.Equal(t, "0.000120", formatFloat(0.00012))
	assert.Equal(t, "10.011883", formatFloat(10.0118834))
	assert.Equal(t, "-2.5", formatTestValue(-2.5))
	assert.Equal(t, "0.015", formatTestValue(0.015))
	assert.Nil(t, nullable(math.NaN()))
	assert.Equal(t, 1.5, *nullable(1.5))
}
