package throttle

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrMustNotBeZero = errors.New("must be greater than zero")
	ErrWaitingFailed = errors.New("limiter waiting failed")
	ErrContextEnded  = errors.New("throttle context ended")
	// ErrThrottled is wrapped by [ThrottledError].
	ErrThrottled = errors.New("throttle retries exhausted")
)

// maxErrBodySize caps how much of the final throttled body is kept.
const maxErrBodySize = 4 << 10 // 4KB

// Config defines the limiter's
// Requests Per Second and Burst Rate
type Config struct {
	RPS   int
	Burst int
}

// Detector reports whether resp is a throttling response and, if the host
// supplied one, how long to wait before resending. A hint <= 0 means no
// usable hint was found.
type Detector func(resp *http.Response) (hint time.Duration, throttled bool)

// RetryConfig controls the retry RoundTripper.
//
// MaxAttempts is the total number of dispatches allowed for one request,
// the first one included. FallbackDelay is used when the host gives no
// usable hint, and always when IgnoreRetryHeader is set. A nil Detector
// means [DefaultDetector].
type RetryConfig struct {
	MaxAttempts       int
	FallbackDelay     time.Duration
	IgnoreRetryHeader bool
	Detector          Detector
}

// ThrottledError is returned when every allowed attempt was throttled.
// It keeps the final response's status, headers and a capped body.
type ThrottledError struct {
	Attempts   int
	Waited     time.Duration
	StatusCode int
	Header     http.Header
	Body       string
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("%v after %d attempts (waited %s): %d, body: %s", ErrThrottled, e.Attempts, e.Waited, e.StatusCode, e.Body)
}

func (e *ThrottledError) Unwrap() error {
	return ErrThrottled
}
