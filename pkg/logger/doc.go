// Package logger provides the structured logging interface used across imgscraper.
//
// It wraps zerolog with a small interface so components can take a Logger,
// tests can pass NewNopLogger or NewTestLogger, and commands can initialize a
// process-wide logger once:
//
//	err := logger.Initialize(&cfg.Logging)
//	log := logger.GetLogger().WithField("component", "scheduler")
//	log.InfoWithFields("Task admitted", map[string]interface{}{
//	    "key":    "https://example.com/a.jpg",
//	    "active": 2,
//	})
//
// With logging.file set, output is JSON appended to that file. Otherwise it is
// a colored console stream on stderr.
package logger
