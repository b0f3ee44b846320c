package config

// Application identity
const (
	AppName   = "crunch"
	EnvPrefix = "CRUNCH"
)

// Output formats accepted by EngineConfig.OutputFormat
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// File names
const (
	DefaultLogFile = "logs/crunch.log"
	// ResultFileBase is the stem of the aggregate table written for a batch.
	ResultFileBase = "crunch_results"
)

// API paths
const (
	BatchesEndpoint   = "/api/v1/batches"
	ScanEndpoint      = "/api/v1/scan"
	HealthEndpoint    = "/api/health"
	MetricsEndpoint   = "/metrics"
	WebSocketEndpoint = "/ws"
)
