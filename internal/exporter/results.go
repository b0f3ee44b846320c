package exporter

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"crunchcli/pkg/contracts/domain"
)

// Format selects the encoding of an exported result table.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ResultTable is the aggregate output of one batch.
type ResultTable struct {
	Unit domain.Unit
	Rows []domain.AggregateRow
}

// HasTolerance reports whether any row carries tolerance results, in which
// case the limit and check columns are written.
func (t ResultTable) HasTolerance() bool {
	for _, r := range t.Rows {
		if r.Tolerance != nil {
			return true
		}
	}
	return false
}

// Headers returns the column names for the table.
func (t ResultTable) Headers() []string {
	u := " [" + string(t.Unit) + "]"
	headers := []string{"Channel", "I/O Type", "Range Setting", "Test Value" + u}
	if t.HasTolerance() {
		headers = append(headers,
			"Reference Value"+u, "Tolerance"+u, "Lower Limit"+u, "Upper Limit"+u)
	}
	headers = append(headers, "Mean"+u, "StdDev"+u, "Min"+u, "Max"+u, "Samples")
	if t.HasTolerance() {
		headers = append(headers, "Mean Check", "Mean±2σ Check")
	}
	return headers
}

// Records renders every row in column order.
func (t ResultTable) Records() [][]string {
	withTol := t.HasTolerance()
	records := make([][]string, 0, len(t.Rows))
	for _, r := range t.Rows {
		records = append(records, rowRecord(r, withTol))
	}
	return records
}

func rowRecord(r domain.AggregateRow, withTol bool) []string {
	rec := []string{
		strconv.Itoa(r.Channel),
		string(r.IOType),
		r.DisplayRange(),
		formatTestValue(r.TestValue),
	}
	tol := r.Tolerance
	if withTol && tol == nil {
		unmatched := domain.UnmatchedTolerance()
		tol = &unmatched
	}
	if withTol {
		rec = append(rec,
			formatFloat(tol.Reference), formatFloat(tol.Tolerance),
			formatFloat(tol.LowerLimit), formatFloat(tol.UpperLimit))
	}
	rec = append(rec,
		formatFloat(r.Mean), formatFloat(r.StdDev),
		formatFloat(r.Min), formatFloat(r.Max),
		strconv.Itoa(r.Samples))
	if withTol {
		rec = append(rec, domain.Verdict(tol.MeanCheck), domain.Verdict(tol.MeanTwoSigmaCheck))
	}
	return rec
}

// ResultRowJSON is the JSON shape of one aggregate row. NaN values are null.
type ResultRowJSON struct {
	Channel      int      `json:"channel"`
	IOType       string   `json:"io_type"`
	RangeSetting string   `json:"range_setting"`
	TestValue    float64  `json:"test_value"`
	Mean         *float64 `json:"mean"`
	StdDev       *float64 `json:"stddev"`
	Min          *float64 `json:"min"`
	Max          *float64 `json:"max"`
	Samples      int      `json:"samples"`

	Tolerance *ToleranceJSON `json:"tolerance,omitempty"`
}

// ToleranceJSON is the JSON shape of a tolerance result.
type ToleranceJSON struct {
	Matched           bool     `json:"matched"`
	Reference         *float64 `json:"reference"`
	Tolerance         *float64 `json:"tolerance"`
	LowerLimit        *float64 `json:"lower_limit"`
	UpperLimit        *float64 `json:"upper_limit"`
	MeanCheck         string   `json:"mean_check"`
	MeanTwoSigmaCheck string   `json:"mean_2sigma_check"`
}

// ResultJSON is the JSON document written for a batch.
type ResultJSON struct {
	Unit string          `json:"unit"`
	Rows []ResultRowJSON `json:"rows"`
}

// JSON converts the table to its JSON document.
func (t ResultTable) JSON() ResultJSON {
	doc := ResultJSON{Unit: string(t.Unit), Rows: make([]ResultRowJSON, 0, len(t.Rows))}
	for _, r := range t.Rows {
		row := ResultRowJSON{
			Channel:      r.Channel,
			IOType:       string(r.IOType),
			RangeSetting: r.DisplayRange(),
			TestValue:    r.TestValue,
			Mean:         nullable(r.Mean),
			StdDev:       nullable(r.StdDev),
			Min:          nullable(r.Min),
			Max:          nullable(r.Max),
			Samples:      r.Samples,
		}
		if tol := r.Tolerance; tol != nil {
			row.Tolerance = &ToleranceJSON{
				Matched:           tol.Matched,
				Reference:         nullable(tol.Reference),
				Tolerance:         nullable(tol.Tolerance),
				LowerLimit:        nullable(tol.LowerLimit),
				UpperLimit:        nullable(tol.UpperLimit),
				MeanCheck:         domain.Verdict(tol.MeanCheck),
				MeanTwoSigmaCheck: domain.Verdict(tol.MeanTwoSigmaCheck),
			}
		}
		doc.Rows = append(doc.Rows, row)
	}
	return doc
}

// WriteJSON encodes the table to w.
func (t ResultTable) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(t.JSON())
}

// ResultExporter writes result tables into an output directory.
type ResultExporter struct {
	csvWriter *CSVWriter
	logger    *slog.Logger
}

// NewResultExporter creates an exporter writing under outputDir.
func NewResultExporter(outputDir string, logger *slog.Logger) *ResultExporter {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "result_exporter"))
	return &ResultExporter{
		csvWriter: NewCSVWriter(outputDir, logger),
		logger:    logger,
	}
}

// Export writes table as <base>.<format> and returns the written path.
func (e *ResultExporter) Export(table ResultTable, base string, format Format) (string, error) {
	switch format {
	case FormatCSV, "":
		return e.csvWriter.WriteCSV(base+".csv", WriteOptions{
			Headers:   table.Headers(),
			Records:   table.Records(),
			BOMPrefix: true,
		})
	case FormatJSON:
		return e.exportJSON(table, base+".json")
	default:
		return "", fmt.Errorf("unsupported export format: %q", format)
	}
}

func (e *ResultExporter) exportJSON(table ResultTable, name string) (string, error) {
	path := e.csvWriter.resolvePath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	if err := table.WriteJSON(file); err != nil {
		return "", fmt.Errorf("failed to encode results: %w", err)
	}

	e.logger.Info("Writing JSON file",
		slog.String("file_path", path),
		slog.Int("record_count", len(table.Rows)))
	return path, file.Close()
}
