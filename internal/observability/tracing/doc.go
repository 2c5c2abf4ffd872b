// Package tracing provides OpenTelemetry tracing for the ingestion pipeline.
//
// Outbound HTTP calls (feeds, search API, AI providers, article pages) are
// wrapped with Transport so each request becomes a client span carrying W3C
// trace context. Run phases use StartSpan and EndSpan.
//
// Example usage:
//
//	client := &http.Client{Transport: tracing.Transport(http.DefaultTransport)}
//
//	ctx, span := tracing.StartSpan(ctx, "ingest.search")
//	err := doSearch(ctx)
//	tracing.EndSpan(span, err)
package tracing
