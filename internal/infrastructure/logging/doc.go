// Package logging provides structured logging for the espdisplay binaries.
//
// This package wraps Go's standard log/slog package so the device agent and
// the identity authority emit the same record shape.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	engine := rpc.New(bus, rpc.Options{Logger: logger.Component("rpc")})
//
// # Security
//
// Never log MQTT passwords or InfluxDB tokens. Request params are logged
// only at debug level.
package logging
