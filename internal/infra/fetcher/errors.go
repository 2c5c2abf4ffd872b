package fetcher

import "errors"

// Errors returned by ReadabilityFetcher. Callers fall back to the feed's own
// content on any of them.
var (
	// ErrInvalidURL: malformed URL or a scheme other than http/https.
	ErrInvalidURL = errors.New("invalid URL or unsupported scheme")

	// ErrPrivateIP: the host resolves to a loopback, private or link-local address.
	ErrPrivateIP = errors.New("private IP access denied (SSRF prevention)")

	ErrTooManyRedirects = errors.New("too many redirects")

	ErrBodyTooLarge = errors.New("response body too large")

	ErrTimeout = errors.New("request timeout")

	// ErrReadabilityFailed: the page was fetched but no article text could be extracted.
	ErrReadabilityFailed = errors.New("content extraction failed")
)
