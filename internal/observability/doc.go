// Package observability groups the logging, metrics and tracing used by the
// ingestion worker and CLI.
//
// Subpackages:
//   - logging: Structured logging with slog and secret redaction
//   - metrics: Prometheus metrics registry and recorders
//   - tracing: OpenTelemetry spans for run phases and outbound HTTP
//
// Example usage:
//
//	import (
//	    "newsfromai/internal/observability/logging"
//	    "newsfromai/internal/observability/metrics"
//	)
//
//	func main() {
//	    logger := logging.NewLogger()
//	    logger.Info("worker started")
//
//	    metrics.RecordRun("success", time.Second)
//	}
package observability
