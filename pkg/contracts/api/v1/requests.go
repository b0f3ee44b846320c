// Package api contains the request and response shapes of the HTTP API.
// Version v1 represents the current stable API version.
package api

// CreateBatchRequest starts a batch over the files of InputDir.
type CreateBatchRequest struct {
	InputDir string `json:"input_dir" validate:"required"`
	// OutputDir receives the result table. Empty means InputDir.
	OutputDir string `json:"output_dir,omitempty"`
	Format    string `json:"format,omitempty" validate:"omitempty,oneof=csv json CSV JSON"`
	// Unit overrides the unit detected from the filenames.
	Unit string `json:"unit,omitempty" validate:"unit"`
	// ToleranceFile is read instead of the default file of InputDir.
	ToleranceFile string `json:"tolerance_file,omitempty"`
	// Tolerance is an inline configuration. It wins over ToleranceFile.
	Tolerance *ToleranceDocument `json:"tolerance,omitempty"`
	// Select maps a filename to the measurement type read from it.
	Select     map[string]string `json:"select,omitempty" validate:"omitempty,dive,keys,required,endkeys,label"`
	SkipExport bool              `json:"skip_export,omitempty"`
}

// ToleranceDocument is an inline tolerance configuration.
type ToleranceDocument struct {
	Unit           string           `json:"unit" validate:"unit"`
	Configurations []ToleranceEntry `json:"configurations" validate:"required,min=1,dive"`
}

// ToleranceEntry is one reference row. RangeSetting may be null to match
// rows decoded without a range token.
type ToleranceEntry struct {
	TestValue    float64 `json:"test_value"`
	RangeSetting *string `json:"range_setting"`
	IOType       string  `json:"io_type" validate:"required,oneof=Input Output"`
	RangeInput   string  `json:"range_input,omitempty"`
	Reference    string  `json:"reference" validate:"required"`
	Tolerance    string  `json:"tolerance" validate:"required"`
}

// ListBatchesRequest holds the query parameters of GET /api/v1/batches.
type ListBatchesRequest struct {
	Status string `query:"status" validate:"omitempty,oneof=pending running completed failed cancelled"`
	Limit  int    `query:"limit" validate:"min=1,max=500"`
}

// ScanRequest holds the query parameters of GET /api/v1/scan.
type ScanRequest struct {
	Dir string `query:"dir" validate:"required"`
}
