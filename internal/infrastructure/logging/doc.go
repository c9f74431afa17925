// Package logging provides structured logging for the expo client.
//
// This package wraps Go's standard log/slog package so every component
// (session manager, realtime channel, relay, CLI) logs with the same shape.
//
// # Features
//
//   - JSON output by default, text for interactive use
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stderr"   # stdout, stderr, discard
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("session restored", "role", user.Role)
//
// # Security
//
// Never log bearer tokens or passwords. Log the user ID and role instead.
package logging
