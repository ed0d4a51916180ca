// Package logger provides structured logging for skeeterdeleter.
//
// It wraps zerolog behind a small Logger interface. Console output is
// colourised and goes to stderr; when a log file is configured every entry is
// also written there as JSON. Fields named like secrets (app_password,
// access_jwt and similar) are written as "[redacted]".
//
//	err := logger.Initialize(&config.LoggingConfig{Level: "info"})
//	logger.GetLogger().WithField("feed", "likes").Info("Walking feed")
//
// Run-level events have helpers (LogPage, LogAction, LogRateLimit,
// LogRunSummary) so the field names stay consistent. Tests inject a
// TestLogger, which captures messages with their fields and errors.
package logger
