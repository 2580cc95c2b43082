// Package logger provides the structured logging interface used across
// fansync.
//
// It wraps zerolog behind a small Logger interface. A single logger is built
// by the CLI from the logging configuration and handed to every component
// that needs it; components derive child loggers with WithField/WithFields
// (typically "account", "user" and "collection").
//
//	log, err := logger.New(&cfg.Logging)
//	if err != nil {
//		return err
//	}
//	log = log.WithField("account", acct.Name)
//	log.InfoWithFields("pass started", map[string]interface{}{"users": 12})
//
// Tests use NewTestLogger to capture messages, or NewNopLogger to discard
// them.
package logger
