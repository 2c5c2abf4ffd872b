// Package metrics provides Prometheus metrics registry and recording utilities.
//
// This package centralizes all pipeline metrics including:
//   - Run outcome, duration and per-phase failures
//   - Items read, accepted, skipped and stored per source kind
//   - AI calls per task and provider, repair steps and breaker state
//   - Feed, search and article fetch metrics
//   - Database query metrics
//
// All metrics are registered with the Prometheus default registry and exposed
// via the worker's /metrics endpoint.
//
// Example usage:
//
//	import "newsfromai/internal/observability/metrics"
//
//	start := time.Now()
//	// ... call the analyzer ...
//	metrics.RecordAICall("news_analyzer", "openai", "ok", time.Since(start))
package metrics
