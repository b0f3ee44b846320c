// Package config loads the crunch configuration.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//  1. Environment variables (highest priority)
//  2. YAML configuration file
//  3. Default values (lowest priority)
//
// # Environment Variables
//
// Variables follow the pattern CRUNCH_<SECTION>_<FIELD>:
//
//	CRUNCH_ENGINE_INPUT_DIR=/data/run42
//	CRUNCH_ENGINE_OUTPUT_FORMAT=json
//	CRUNCH_SERVER_PORT=9090
//	CRUNCH_SERVER_RATE_LIMIT_RPS=5
//	CRUNCH_LOGGING_LEVEL=debug
//	CRUNCH_TELEMETRY_TRACE_STDOUT=true
//
// # Configuration File
//
// The file path is taken from the Load argument, then $CRUNCH_CONFIG, then
// crunch.yaml or configs/crunch.yaml relative to the working directory:
//
//	engine:
//	  input_dir: ./captures
//	  tolerance_file: ./captures/test_config.json
//	server:
//	  port: 8080
//	logging:
//	  level: info
//
// Keys missing from the file keep their default.
package config
