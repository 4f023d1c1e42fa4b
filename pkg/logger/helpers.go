package logger

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// OrGlobal returns l, or the global logger when l is nil
func OrGlobal(l Logger) Logger {
	if l == nil {
		return GetLogger()
	}
	return l
}

// LogRequest logs a completed backend request at a level derived from its status
func LogRequest(l Logger, method, url string, statusCode int, duration time.Duration) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration_ms": float64(duration.Microseconds()) / 1000,
	}

	switch {
	case statusCode >= 500:
		OrGlobal(l).ErrorWithFields("HTTP request server error", fields)
	case statusCode >= 400:
		OrGlobal(l).WarnWithFields("HTTP request client error", fields)
	default:
		OrGlobal(l).DebugWithFields("HTTP request completed", fields)
	}
}

// LogCardState logs a gallery card transition
func LogCardState(l Logger, index int, src, from, to string, err error) {
	fields := map[string]interface{}{
		"index": index,
		"src":   src,
		"from":  from,
		"to":    to,
	}
	if err != nil {
		OrGlobal(l).WithError(err).WarnWithFields("Image failed to load", fields)
		return
	}
	OrGlobal(l).DebugWithFields("Card state changed", fields)
}

// LogScrapeProgress logs how many cards reached a terminal state
func LogScrapeProgress(l Logger, pageURL string, settled, total int) {
	percentage := 0.0
	if total > 0 {
		percentage = float64(settled) / float64(total) * 100
	}

	OrGlobal(l).InfoWithFields("Gallery progress", map[string]interface{}{
		"page":       pageURL,
		"settled":    settled,
		"total":      total,
		"percentage": fmt.Sprintf("%.1f%%", percentage),
	})
}

// LogComponentStart logs when a component starts
func LogComponentStart(l Logger, component string, config map[string]interface{}) {
	log := OrGlobal(l).WithField("component", component)
	if len(config) > 0 {
		log = log.WithFields(config)
	}
	log.Info("Component started")
}

// LogComponentStop logs when a component stops
func LogComponentStop(l Logger, component string, reason string) {
	OrGlobal(l).WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
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
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { return nil }
