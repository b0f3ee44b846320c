package api

import "time"

// BatchResponse is the view of one submitted batch.
type BatchResponse struct {
	ID          string         `json:"id"`
	Status      string         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Progress    int            `json:"progress"`
	CurrentStep string         `json:"current_step,omitempty"`
	Error       string         `json:"error,omitempty"`
	Summary     *BatchSummary  `json:"summary,omitempty"`
	Steps       []StepResponse `json:"steps,omitempty"`
}

// BatchSummary is filled once a batch has finished.
type BatchSummary struct {
	Unit       string            `json:"unit,omitempty"`
	OutputPath string            `json:"output_path,omitempty"`
	Rows       int               `json:"rows"`
	Processed  int               `json:"processed"`
	Skipped    int               `json:"skipped"`
	Failed     int               `json:"failed"`
	Ambiguous  []string          `json:"ambiguous,omitempty"`
	Tolerance  *ToleranceSummary `json:"tolerance,omitempty"`
	DurationMS int64             `json:"duration_ms"`
}

// ToleranceSummary counts the verdicts of a batch.
type ToleranceSummary struct {
	Source       string `json:"source"`
	Matched      int    `json:"matched"`
	Unmatched    int    `json:"unmatched"`
	MeanPass     int    `json:"mean_pass"`
	TwoSigmaPass int    `json:"two_sigma_pass"`
}

// StepResponse is the state of one pipeline step.
type StepResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

// BatchListResponse is the body of GET /api/v1/batches.
type BatchListResponse struct {
	Batches []BatchResponse `json:"batches"`
	Count   int             `json:"count"`
}

// ScanResponse lists the measurement files of a directory.
type ScanResponse struct {
	Dir   string         `json:"dir"`
	Files []FileResponse `json:"files"`
}

// FileResponse describes one measurement file found by a scan.
type FileResponse struct {
	Name   string   `json:"name"`
	IOType string   `json:"io_type"`
	Size   int64    `json:"size"`
	Labels []string `json:"labels,omitempty"`
	// Ambiguous is set when the file holds several measurement types and
	// a batch needs a selection for it.
	Ambiguous bool `json:"ambiguous,omitempty"`
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status         string    `json:"status"`
	Version        string    `json:"version"`
	Uptime         string    `json:"uptime"`
	PendingBatches int       `json:"pending_batches"`
	RunningBatches int       `json:"running_batches"`
	Clients        int       `json:"websocket_clients"`
	Timestamp      time.Time `json:"timestamp"`
}
