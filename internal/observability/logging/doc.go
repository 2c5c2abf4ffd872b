// Package logging provides structured logging utilities with context propagation.
//
// This package wraps the standard library's log/slog package with helper functions
// for common logging patterns used throughout the application.
//
// Key features:
//   - JSON and text output formats
//   - Redaction of credentials and URL query strings
//   - Run ID tagging and context-aware logging
//   - Configurable log levels
//
// Example usage:
//
//	import "newsfromai/internal/observability/logging"
//
//	func main() {
//	    logger := logging.NewLogger()
//	    slog.SetDefault(logger)
//	    logger.Info("worker started", slog.String("version", "1.0"))
//	}
package logging
