package operations

import (
	"time"

	"crunchcli/internal/tolerance"
	"crunchcli/pkg/contracts/domain"
)

// Step IDs of the batch pipeline, in execution order.
const (
	StepIDDiscover  = "discover"
	StepIDScan      = "scan"
	StepIDExtract   = "extract"
	StepIDAggregate = "aggregate"
	StepIDEvaluate  = "evaluate"
	StepIDExport    = "export"
)

// BatchStatus is the lifecycle state of a batch.
type BatchStatus string

const (
	BatchStatusPending   BatchStatus = "pending"
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusFailed    BatchStatus = "failed"
	BatchStatusCancelled BatchStatus = "cancelled"
)

// IsTerminal reports whether the batch has finished one way or another.
func (s BatchStatus) IsTerminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusFailed || s == BatchStatusCancelled
}

// BatchRequest describes one batch run.
type BatchRequest struct {
	InputDir string `json:"input_dir"`
	// OutputDir receives the result table. Empty means InputDir.
	OutputDir string `json:"output_dir,omitempty"`
	// Format is csv or json. Empty means csv.
	Format string `json:"format,omitempty"`
	// TolerancePath names a tolerance file. When both it and Tolerance are
	// empty the default file in InputDir is used if present.
	TolerancePath string              `json:"tolerance_path,omitempty"`
	Tolerance     *tolerance.Document `json:"tolerance,omitempty"`
	Selections    domain.Selections   `json:"selections,omitempty"`
	// Unit overrides the unit detected from filenames.
	Unit string `json:"unit,omitempty"`
	// SkipExport leaves the result in the report only.
	SkipExport bool `json:"skip_export,omitempty"`
}

// StepSnapshot is the reported state of one step.
type StepSnapshot struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Status     StepStatus     `json:"status"`
	Progress   float64        `json:"progress"`
	Message    string         `json:"message,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMS int64          `json:"duration_ms"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ToleranceSummary counts the verdicts of an evaluated batch.
type ToleranceSummary struct {
	Source       string `json:"source"`
	Matched      int    `json:"matched"`
	Unmatched    int    `json:"unmatched"`
	MeanPass     int    `json:"mean_pass"`
	TwoSigmaPass int    `json:"two_sigma_pass"`
}

// BatchReport is the outcome of a finished batch.
type BatchReport struct {
	ID         string                `json:"id"`
	Status     BatchStatus           `json:"status"`
	InputDir   string                `json:"input_dir"`
	Unit       domain.Unit           `json:"unit,omitempty"`
	OutputPath string                `json:"output_path,omitempty"`
	Rows       []domain.AggregateRow `json:"-"`
	RowCount   int                   `json:"rows"`
	Processed  int                   `json:"processed"`
	Skipped    int                   `json:"skipped"`
	Failed     int                   `json:"failed"`
	Files      []domain.FileOutcome  `json:"files"`
	Ambiguous  []string              `json:"ambiguous,omitempty"`
	Tolerance  *ToleranceSummary     `json:"tolerance,omitempty"`
	Error      string                `json:"error,omitempty"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
	Steps      []StepSnapshot        `json:"steps"`
}

// Duration returns the wall time of the batch.
func (r *BatchReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
