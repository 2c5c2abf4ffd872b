// Package resilience groups the fault tolerance helpers of the pipeline.
//
// The subpackages provide:
//   - circuitbreaker: gobreaker-backed transport breakers for AI providers,
//     the search API, feed and content fetching, plus a consecutive-failure
//     breaker for malformed AI replies
//   - retry: exponential backoff with jitter, and the classification of
//     transient network and HTTP status failures
//
// Usage Example:
//
//	cb := circuitbreaker.New(circuitbreaker.FeedFetchConfig())
//	result, err := cb.Execute(func() (interface{}, error) {
//	    return fetch(ctx, url)
//	})
//
//	err := retry.Do(ctx, retry.FeedPolicy(), func(ctx context.Context) error {
//	    return download(ctx, url)
//	})
package resilience
