package metrics

import (
	"strconv"
	"time"
)

// RecordRun records the end of an ingestion run.
func RecordRun(status string, duration time.Duration) {
	IngestRunsTotal.WithLabelValues(status).Inc()
	IngestRunDuration.Observe(duration.Seconds())
}

// RecordPhaseFailure records a failed step inside a phase.
func RecordPhaseFailure(phase string) {
	IngestPhaseFailuresTotal.WithLabelValues(phase).Inc()
}

// RecordItems adds n items of the given kind ("search" or "rss") to an outcome
// such as inserted, duplicate, invalid, deferred or fallback.
func RecordItems(kind, outcome string, n int) {
	if n <= 0 {
		return
	}
	IngestItemsTotal.WithLabelValues(kind, outcome).Add(float64(n))
}

// UpdateNewsTotal updates the stored record count.
func UpdateNewsTotal(count int64) {
	NewsTotal.Set(float64(count))
}

// UpdateFeedsTotal updates the active feed count.
func UpdateFeedsTotal(count int) {
	FeedsTotal.Set(float64(count))
}

// RecordAICall records one provider call.
// Status is one of ok, transport_error, shape_error, config_error or skipped.
func RecordAICall(task, provider, status string, duration time.Duration) {
	AICallsTotal.WithLabelValues(task, provider, status).Inc()
	if duration > 0 {
		AICallDuration.WithLabelValues(task, provider).Observe(duration.Seconds())
	}
}

// RecordRepairStep records which repair step recovered a reply.
func RecordRepairStep(task, step string) {
	AIRepairStepsTotal.WithLabelValues(task, step).Inc()
}

// SetBreakerOpen exports a breaker state transition.
func SetBreakerOpen(name string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	BreakerOpen.WithLabelValues(name).Set(v)
}

// RecordFeedFetch records the duration of a feed fetch.
func RecordFeedFetch(feedID int64, duration time.Duration) {
	FeedFetchDuration.WithLabelValues(strconv.FormatInt(feedID, 10)).Observe(duration.Seconds())
}

// RecordFeedFetchError records an error during feed fetching.
// errorType is transport, parse or unknown.
func RecordFeedFetchError(feedID int64, errorType string) {
	FeedFetchErrors.WithLabelValues(strconv.FormatInt(feedID, 10), errorType).Inc()
}

// RecordSearchRequest records a search API request and its result count.
func RecordSearchRequest(status string, results int) {
	SearchRequestsTotal.WithLabelValues(status).Inc()
	if results > 0 {
		SearchResultsTotal.Add(float64(results))
	}
}

// RecordContentFetchSuccess records a successful content fetch operation.
//
// Example:
//
//	start := time.Now()
//	content, err := fetcher.FetchContent(ctx, url)
//	if err == nil {
//	    RecordContentFetchSuccess(time.Since(start))
//	}
func RecordContentFetchSuccess(duration time.Duration) {
	ContentFetchAttemptsTotal.WithLabelValues("success").Inc()
	ContentFetchDuration.Observe(duration.Seconds())
}

// RecordContentFetchFailed records a failed content fetch operation.
func RecordContentFetchFailed(duration time.Duration) {
	ContentFetchAttemptsTotal.WithLabelValues("failure").Inc()
	ContentFetchDuration.Observe(duration.Seconds())
}

// RecordContentFetchSkipped records a skipped content fetch operation.
// This occurs when feed content is already long enough.
func RecordContentFetchSkipped() {
	ContentFetchAttemptsTotal.WithLabelValues("skipped").Inc()
}

// RecordDBQuery records the duration of a database operation
// (e.g. "insert_news", "exists_by_url_batch").
func RecordDBQuery(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
