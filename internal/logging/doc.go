// Package logging provides structured logging utilities for gistflow.
//
// All components log through log/slog. This package builds the process-wide
// handler and keeps attribute names consistent across the pipeline stages.
//
// # Key Features
//
//   - Text or JSON handlers selected by configuration
//   - Consistent attribute naming (run_id, source_id, stage, destination)
//   - Sender anonymization for log correlation without PII
//
// # Usage Patterns
//
// Tag a logger for one pipeline item:
//
//	logger := logging.WithSource(logging.WithRun(slog.Default(), runID), item.SourceID)
//	logger.Info("item published",
//	    logging.Stage("publish"),
//	    logging.Destination("notion"))
//
// Never log raw sender addresses:
//
//	logger.Debug("fetched item", logging.SenderHash(item.SenderEmail))
package logging
