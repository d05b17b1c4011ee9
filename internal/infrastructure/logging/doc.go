// Package logging provides structured logging for Cast Logic Core.
//
// It wraps log/slog so every component logs with the same handler,
// level and default fields (service, version).
//
// Configuration comes from the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	sup := logger.Component("supervisor").With("device_id", id)
//	sup.Warn("receiver unreachable", "attempts", n)
//
// Caller keys, JWTs and MQTT passwords must never be logged.
package logging
