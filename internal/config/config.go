package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Engine    EngineConfig    `yaml:"engine" envconfig:"ENGINE"`
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// EngineConfig controls how a batch is read, evaluated and written.
type EngineConfig struct {
	InputDir      string `yaml:"input_dir" envconfig:"INPUT_DIR"`
	OutputDir     string `yaml:"output_dir" envconfig:"OUTPUT_DIR"`
	OutputFormat  string `yaml:"output_format" envconfig:"OUTPUT_FORMAT"`
	ToleranceFile string `yaml:"tolerance_file" envconfig:"TOLERANCE_FILE"`
	// Unit overrides the unit detected from filenames when set.
	Unit string `yaml:"unit" envconfig:"UNIT"`
	// StrictUnit rejects a tolerance file whose unit differs from the data.
	StrictUnit           bool          `yaml:"strict_unit" envconfig:"STRICT_UNIT"`
	WatchDebounce        time.Duration `yaml:"watch_debounce" envconfig:"WATCH_DEBOUNCE"`
	MaxConcurrentBatches int           `yaml:"max_concurrent_batches" envconfig:"MAX_CONCURRENT_BATCHES"`
	BatchTimeout         time.Duration `yaml:"batch_timeout" envconfig:"BATCH_TIMEOUT"`
	// DataRoot confines the directories API clients may read and write.
	// Empty leaves them unrestricted.
	DataRoot string `yaml:"data_root" envconfig:"DATA_ROOT"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string          `yaml:"host" envconfig:"HOST"`
	Port            int             `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration   `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration   `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration   `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	MaxHeaderBytes  int             `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	WebSocket       WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Format   string `yaml:"format" envconfig:"FORMAT"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// TelemetryConfig selects the OpenTelemetry exporters.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name" envconfig:"SERVICE_NAME"`
	TraceStdout    bool   `yaml:"trace_stdout" envconfig:"TRACE_STDOUT"`
	MetricsEnabled bool   `yaml:"metrics_enabled" envconfig:"METRICS_ENABLED"`
}

// Load builds the configuration from defaults, an optional YAML file and
// CRUNCH_* environment variables, in increasing order of precedence.
// An empty path searches the usual locations and $CRUNCH_CONFIG.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = getConfigFilePath()
	}
	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays the YAML file at filePath onto cfg. Keys absent from
// the file keep their current value.
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.Server.RateLimit.Enabled && (c.Server.RateLimit.RPS <= 0 || c.Server.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit rps and burst must be positive")
	}

	if c.Engine.DataRoot != "" {
		info, err := os.Stat(c.Engine.DataRoot)
		if err != nil {
			return fmt.Errorf("engine data root: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("engine data root is not a directory: %s", c.Engine.DataRoot)
		}
	}

	if c.Engine.InputDir == "" {
		return fmt.Errorf("engine input dir must be set")
	}

	c.Engine.OutputFormat = strings.ToLower(c.Engine.OutputFormat)
	switch c.Engine.OutputFormat {
	case FormatCSV, FormatJSON:
	default:
		return fmt.Errorf("unsupported output format: %q", c.Engine.OutputFormat)
	}

	if c.Engine.MaxConcurrentBatches <= 0 {
		return fmt.Errorf("max concurrent batches must be positive")
	}

	if c.Engine.WatchDebounce < 0 {
		return fmt.Errorf("watch debounce must not be negative")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		c.Logging.Format = "json"
	}

	switch strings.ToLower(c.Logging.Output) {
	case "stdout", "stderr", "file", "both":
	default:
		c.Logging.Output = "stderr"
	}

	if c.Logging.FilePath == "" {
		c.Logging.FilePath = DefaultLogFile
	}

	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	if env := os.Getenv(EnvPrefix + "_CONFIG"); env != "" {
		return env
	}

	locations := []string{
		"crunch.yaml",
		"configs/crunch.yaml",
		"../configs/crunch.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			InputDir:             ".",
			OutputFormat:         FormatCSV,
			WatchDebounce:        500 * time.Millisecond,
			MaxConcurrentBatches: 2,
			BatchTimeout:         10 * time.Minute,
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20, // 1MB
			ShutdownTimeout: 30 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     20,
				Burst:   40,
			},
			WebSocket: WebSocketConfig{
				ReadBufferSize:  1024,
				WriteBufferSize: 1024,
				PingPeriod:      30 * time.Second,
				PongWait:        60 * time.Second,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "stderr",
			FilePath: DefaultLogFile,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    AppName,
			MetricsEnabled: true,
		},
	}
}
