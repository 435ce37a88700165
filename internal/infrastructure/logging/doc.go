// Package logging provides structured logging for printcast.
//
// It wraps log/slog so every component logs through the same handler with
// the same default fields (service, version).
//
// Configuration comes from the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	obsLog := logger.With("component", "obs")
//	obsLog.Info("identified", "rpc_version", 1)
//
// Never log the printer access code or the OBS password.
package logging
