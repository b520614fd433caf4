// Package logging provides structured logging for Gray Logic HomeSim.
//
// It wraps log/slog so the coordinator and both simulators emit the same
// shape of entry: JSON in production, text during development, with
// service and version attached to every line.
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, "coordinator", version)
//	logger.Info("consumer started", "queues", 7)
//
// Never log broker passwords or InfluxDB tokens.
package logging
