package logger

import (
	"time"
)

// LogPage logs one processed page of a feed
func LogPage(feed string, page int, cursor string, items int) {
	GetLogger().WithFields(map[string]interface{}{
		"feed":   feed,
		"page":   page,
		"cursor": cursor,
		"items":  items,
	}).Info("Page processed")
}

// LogAction logs a single mutation. Failures are logged at warn level since
// the run continues past them.
func LogAction(action, uri string, err error) {
	l := GetLogger().WithFields(map[string]interface{}{
		"action": action,
		"uri":    uri,
	})
	if err != nil {
		l.WithError(err).Warn("Action failed")
		return
	}
	l.Debug("Action applied")
}

// LogRateLimit logs a backoff after a transient failure
func LogRateLimit(op string, attempt int, delay time.Duration) {
	GetLogger().WithFields(map[string]interface{}{
		"op":      op,
		"attempt": attempt,
		"delay":   delay,
		"action":  "backing_off",
	}).Warn("Transient failure, backing off")
}

// LogRunSummary logs the end-of-run counters
func LogRunSummary(reason string, counters map[string]interface{}) {
	fields := map[string]interface{}{"reason": reason}
	for k, v := range counters {
		fields[k] = v
	}
	GetLogger().InfoWithFields("Run finished", fields)
}

// LogComponentStart logs when a component starts
func LogComponentStart(component string, config map[string]interface{}) {
	l := GetLogger().WithField("component", component)
	if len(config) > 0 {
		l = l.WithFields(config)
	}
	l.Info("Component started")
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
