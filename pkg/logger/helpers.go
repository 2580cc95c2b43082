package logger

import (
	"time"

	"github.com/rs/zerolog"
)

// LogRequest logs the outcome of one remote API call
func LogRequest(l Logger, method, path string, statusCode int, duration time.Duration) {
	fields := map[string]interface{}{
		"method":      method,
		"path":        path,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		l.DebugWithFields("api request completed", fields)
	case statusCode >= 400 && statusCode < 500:
		l.WarnWithFields("api request client error", fields)
	default:
		l.ErrorWithFields("api request failed", fields)
	}
}

// LogDownload logs a single media materialization
func LogDownload(l Logger, username string, mediaID int64, sourceType string, skipped bool, err error) {
	entry := l.WithFields(map[string]interface{}{
		"username":    username,
		"media_id":    mediaID,
		"source_type": sourceType,
	})

	switch {
	case err != nil:
		entry.WithError(err).Error("download failed")
	case skipped:
		entry.Debug("download skipped")
	default:
		entry.Debug("download completed")
	}
}

// LogPassSummary logs the totals of one account pass
func LogPassSummary(l Logger, account string, downloaded, skipped, failed int, elapsed time.Duration) {
	l.InfoWithFields("pass finished", map[string]interface{}{
		"account":    account,
		"downloaded": downloaded,
		"skipped":    skipped,
		"failed":     failed,
		"elapsed":    elapsed.Round(time.Millisecond).String(),
	})
}

// NewNopLogger creates a logger that discards everything
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
func (n *nopLogger) GetZerolog() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}
