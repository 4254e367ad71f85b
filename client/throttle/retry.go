package throttle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// retry is an http.RoundTripper that resends throttled requests,
// honoring the host's backoff hint, up to a fixed number of attempts.
type retry struct {
	cfg   RetryConfig
	next  http.RoundTripper
	logFn func() *slog.Logger
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrier returns an http.RoundTripper that retries throttled responses
// from next. logFn lazily resolves the logger at request time; it may
// return nil to disable logging.
//
// Each attempt goes back through next, so decorators below the retrier
// (authentication in particular) run again for every resend.
func NewRetrier(cfg RetryConfig, logFn func() *slog.Logger, next http.RoundTripper) (http.RoundTripper, error) {
	if cfg.MaxAttempts <= 0 {
		return nil, fmt.Errorf("max attempts[%d] %w", cfg.MaxAttempts, ErrMustNotBeZero)
	}
	if cfg.FallbackDelay < 0 {
		return nil, errors.New("fallback delay must not be negative")
	}
	if cfg.Detector == nil {
		cfg.Detector = DefaultDetector
	}
	if logFn == nil {
		logFn = func() *slog.Logger { return nil }
	}

	rt := &retry{
		cfg:   cfg,
		next:  next,
		logFn: logFn,
		sleep: sleepCtx,
	}

	return rt, nil
}

func (rt *retry) RoundTrip(r *http.Request) (*http.Response, error) {
	ctx := r.Context()

	var waited time.Duration
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w before attempt %d: %w", ErrContextEnded, attempt, err)
		}

		req, err := rewind(r, attempt)
		if err != nil {
			return nil, err
		}

		resp, err := rt.next.RoundTrip(req)
		if err != nil {
			return nil, err
		}

		hint, throttled := rt.cfg.Detector(resp)
		if !throttled {
			return resp, nil
		}

		logger := rt.logFn()

		if attempt >= rt.cfg.MaxAttempts || !replayable(r) {
			if logger != nil {
				logger.Warn("throttle retries exhausted", "attempts", attempt, "status", resp.StatusCode, "path", r.URL.Path, "waited", waited.String())
			}
			return nil, exhausted(resp, attempt, waited)
		}

		delay := rt.delay(hint)
		discard(resp)

		if logger != nil {
			logger.Info("throttled by host", "attempt", attempt, "status", resp.StatusCode, "path", r.URL.Path, "hint", hint.String(), "wait", delay.String())
		}

		if err := rt.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("%w during backoff: %w", ErrContextEnded, err)
		}
		waited += delay
	}
}

// delay picks the wait before the next attempt.
func (rt *retry) delay(hint time.Duration) time.Duration {
	if rt.cfg.IgnoreRetryHeader || hint <= 0 {
		return rt.cfg.FallbackDelay
	}

	return hint
}

// rewind prepares r for the given attempt. The first attempt uses r as-is;
// later attempts get a clone with a fresh body from GetBody.
func rewind(r *http.Request, attempt int) (*http.Request, error) {
	if attempt == 1 {
		return r, nil
	}

	cpy := r.Clone(r.Context())
	if r.Body == nil || r.Body == http.NoBody {
		return cpy, nil
	}

	body, err := r.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewinding request body: %w", err)
	}
	cpy.Body = body

	return cpy, nil
}

// replayable reports whether r's body can be sent again.
func replayable(r *http.Request) bool {
	return r.Body == nil || r.Body == http.NoBody || r.GetBody != nil
}

// exhausted consumes the final throttled response into a ThrottledError.
func exhausted(resp *http.Response, attempts int, waited time.Duration) error {
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxErrBodySize))
	if err != nil {
		b = []byte("unable to read body")
	}

	return &ThrottledError{
		Attempts:   attempts,
		Waited:     waited,
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       string(b),
	}
}

// discard drains and closes a response that won't be returned,
// letting the underlying connection be reused.
func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrBodySize))
	_ = resp.Body.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
