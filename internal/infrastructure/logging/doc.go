// Package logging provides structured logging for Gray Logic Fleet.
//
// This package wraps Go's standard log/slog package so that every component
// (transaction server, device links, API) logs with the same fields.
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
//	logger.Info("batch started", "batch_id", id)
//	meterLog := logger.ForDevice("meter-1", "dlms")
//
// Never log secrets, tokens or passwords.
package logging
