package dataprocessing

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"crunchcli/internal/errors"
)

// measurementKeywords select the measurement column of an Output table by
// case-insensitive substring match on the header. First hit wins.
var measurementKeywords = []string{"voltage", "vdc", "resistance", "ohm", "current", "adc", "measurement"}

// missingCells are treated as empty cells and dropped.
var missingCells = map[string]bool{
	"":     true,
	"nan":  true,
	"na":   true,
	"n/a":  true,
	"null": true,
	"none": true,
}

// TableSamples is the measurement column read from one Output file.
type TableSamples struct {
	Column  string
	Samples []float64
}

// ReadTableSamples reads the measurement column of a CSV or XLSX Output file.
// A file with no numeric column or with an empty measurement column is
// reported as a parsing error.
func ReadTableSamples(path string) (TableSamples, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		rows, err = readWorkbookRows(path)
	default:
		rows, err = readCSVRows(path)
	}
	if err != nil {
		return TableSamples{}, err
	}
	if len(rows) == 0 {
		return TableSamples{}, errors.NewParsingError("table has no header row", nil).
			WithContext("file", path)
	}

	header, body := rows[0], rows[1:]
	col, ok := selectMeasurementColumn(header, body)
	if !ok {
		return TableSamples{}, errors.NewParsingError("no numeric columns found", nil).
			WithContext("file", path)
	}

	samples, err := columnSamples(body, col)
	if err != nil {
		return TableSamples{}, errors.NewParsingError(fmt.Sprintf("column %q is not numeric", header[col]), err).
			WithContext("file", path)
	}
	if len(samples) == 0 {
		return TableSamples{}, errors.NewParsingError("no valid measurements", nil).
			WithContext("file", path)
	}

	return TableSamples{Column: strings.TrimSpace(header[col]), Samples: samples}, nil
}

func readCSVRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewStorageError("failed to open CSV file", err).WithContext("file", path)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.NewParsingError("failed to read CSV record", err).
				WithContext("file", path).
				WithContext("row", len(rows)+1)
		}
		rows = append(rows, record)
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return rows, nil
}

// readWorkbookRows returns the rows of the first sheet that has any. Cells
// are read as stored, not as displayed by their number format.
func readWorkbookRows(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.NewStorageError("failed to open workbook", err).WithContext("file", path)
	}
	defer f.Close()

	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, errors.NewParsingError("failed to read worksheet", err).
				WithContext("file", path).
				WithContext("sheet", name)
		}
		if len(rows) > 0 {
			return rows, nil
		}
	}
	return nil, nil
}

// selectMeasurementColumn returns the first keyword column, else the last
// column whose cells are all numeric or missing.
func selectMeasurementColumn(header []string, body [][]string) (int, bool) {
	for i, name := range header {
		lower := strings.ToLower(strings.TrimSpace(name))
		for _, kw := range measurementKeywords {
			if strings.Contains(lower, kw) {
				return i, true
			}
		}
	}

	for i := len(header) - 1; i >= 0; i-- {
		if isNumericColumn(body, i) {
			return i, true
		}
	}
	return 0, false
}

func isNumericColumn(body [][]string, col int) bool {
	for _, row := range body {
		cell := cellAt(row, col)
		if isMissing(cell) {
			continue
		}
		if _, err := parseCell(cell); err != nil {
			return false
		}
	}
	return true
}

func columnSamples(body [][]string, col int) ([]float64, error) {
	var out []float64
	for i, row := range body {
		cell := cellAt(row, col)
		if isMissing(cell) {
			continue
		}
		v, err := parseCell(cell)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func cellAt(row []string, col int) string {
	if col < len(row) {
		return strings.TrimSpace(row[col])
	}
	return ""
}

func isMissing(cell string) bool {
	return missingCells[strings.ToLower(cell)]
}

func parseCell(cell string) (float64, error) {
	return strconv.ParseFloat(cell, 64)
}
