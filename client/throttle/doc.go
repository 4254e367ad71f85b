// Package throttle provides [http.RoundTripper] decorators that keep
// outbound traffic within a host's rate limits.
//
// # Reactive retry
//
// [NewRetrier] resends a request when the host answers with a throttling
// response, waiting for the interval the host asked for:
//
//	rt, err := throttle.NewRetrier(
//		throttle.RetryConfig{MaxAttempts: 5, FallbackDelay: 2 * time.Second},
//		func() *slog.Logger { return slog.Default() },
//		http.DefaultTransport,
//	)
//	httpClient := &http.Client{Transport: rt}
//
// What counts as throttling is decided by a [Detector]. [DefaultDetector]
// understands HTTP 429 and HTTP 503 with a Retry-After header. Use
// [StatusDetector] for hosts that signal backoff through another header.
//
// Only throttled responses are retried. Transport errors are returned
// immediately, and once MaxAttempts throttled responses have been seen a
// [*ThrottledError] is returned instead of the last response.
//
// # Proactive limiting
//
// [NewLimiter] rate-limits outbound requests using a token-bucket
// algorithm from [golang.org/x/time/rate]. When the limit is exceeded,
// requests block until a token becomes available or the request context
// is cancelled.
package throttle
