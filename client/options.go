package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/photosync/client/auth"
	"github.com/adamwoolhether/photosync/client/throttle"
)

const (
	// DefaultMaxAttempts is the number of dispatches allowed per request
	// before a throttled response becomes a [ThrottledError].
	DefaultMaxAttempts = 5
	// DefaultFallbackDelay is the wait used when a throttled response carries
	// no usable Retry-After hint.
	DefaultFallbackDelay = 2 * time.Second
)

// Option is a functional option for configuring a [Client] via [Build].
type Option func(*options) error
type options struct {
	client            *http.Client
	rt                http.RoundTripper
	timeout           *time.Duration
	userAgent         string
	throttle          *throttle.Config
	noFollowRedirects bool
	logger            *slog.Logger
	credentials       *auth.Config
	tokenSource       auth.Source
	refreshMargin     *time.Duration
	retry             throttle.RetryConfig
	fallbackDelay     *time.Duration
	tracer            trace.Tracer
}

// WithClient replaces the default [http.Client] used by the [Client].
func WithClient(hc *http.Client) Option {
	return func(c *options) error {
		if hc == nil {
			return errors.New("client must not be nil")
		}
		c.client = hc
		return nil
	}
}

// WithTransport sets a custom [http.RoundTripper] as the base transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *options) error {
		if rt == nil {
			return errors.New("transport must not be nil")
		}
		c.rt = rt
		return nil
	}
}

// WithTimeout bounds each dispatch to the host, from connect until the
// response body is closed. Throttle waits between dispatches do not count
// against it; bound the whole call with the request's context instead.
func WithTimeout(d time.Duration) Option {
	return func(c *options) error {
		if d < 0 {
			return errors.New("timeout must not be negative")
		}
		c.timeout = &d
		return nil
	}
}

// WithUserAgent adds a persistent User-Agent header to all outgoing requests.
func WithUserAgent(header string) Option {
	return func(c *options) error {
		c.userAgent = header
		return nil
	}
}

// WithThrottle enables token-bucket rate limiting with the given requests per second and burst capacity.
func WithThrottle(rps, burst int) Option {
	return func(c *options) error {
		if rps <= 0 || burst <= 0 {
			return fmt.Errorf("rps[%d] and burst[%d] %w", rps, burst, throttle.ErrMustNotBeZero)
		}
		c.throttle = &throttle.Config{RPS: rps, Burst: burst}
		return nil
	}
}

// WithNoFollowRedirects prevents the [Client] from following HTTP redirects.
func WithNoFollowRedirects() Option {
	return func(c *options) error {
		c.noFollowRedirects = true
		return nil
	}
}

// WithLogger injects a custom [slog.Logger] into the [Client].
func WithLogger(logger *slog.Logger) Option {
	return func(c *options) error {
		c.logger = logger
		return nil
	}
}

// WithCredentials enables bearer authentication using a client-credentials
// exchange described by cfg. The exchange goes through the base transport,
// so a custom transport or User-Agent applies to the identity provider too.
func WithCredentials(cfg auth.Config) Option {
	return func(c *options) error {
		c.credentials = &cfg
		return nil
	}
}

// WithTokenSource enables bearer authentication with tokens from src.
// It cannot be combined with [WithCredentials].
func WithTokenSource(src auth.Source) Option {
	return func(c *options) error {
		if src == nil {
			return errors.New("token source must not be nil")
		}
		c.tokenSource = src
		return nil
	}
}

// WithRefreshMargin overrides [auth.DefaultRefreshMargin], the window before
// expiry in which a held token is replaced.
func WithRefreshMargin(d time.Duration) Option {
	return func(c *options) error {
		if d < 0 {
			return errors.New("refresh margin must not be negative")
		}
		c.refreshMargin = &d
		return nil
	}
}

// WithMaxAttempts sets how many times one request may be dispatched while
// the host keeps throttling it. Defaults to [DefaultMaxAttempts].
func WithMaxAttempts(n int) Option {
	return func(c *options) error {
		if n <= 0 {
			return fmt.Errorf("max attempts[%d] %w", n, throttle.ErrMustNotBeZero)
		}
		c.retry.MaxAttempts = n
		return nil
	}
}

// WithFallbackDelay sets the wait used when the host gives no Retry-After hint.
// Defaults to [DefaultFallbackDelay].
func WithFallbackDelay(d time.Duration) Option {
	return func(c *options) error {
		if d < 0 {
			return errors.New("fallback delay must not be negative")
		}
		c.fallbackDelay = &d
		return nil
	}
}

// WithIgnoreRetryHeader makes every throttle wait use the fallback delay,
// whatever the host suggests.
func WithIgnoreRetryHeader() Option {
	return func(c *options) error {
		c.retry.IgnoreRetryHeader = true
		return nil
	}
}

// WithThrottleDetector replaces [throttle.DefaultDetector].
func WithThrottleDetector(fn throttle.Detector) Option {
	return func(c *options) error {
		if fn == nil {
			return errors.New("throttle detector must not be nil")
		}
		c.retry.Detector = fn
		return nil
	}
}

// WithTracer records a span for every [Client.Send] on tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *options) error {
		if tracer == nil {
			return errors.New("tracer must not be nil")
		}
		c.tracer = tracer
		return nil
	}
}

// userAgent is an http.RoundTripper, enabling the persistent User-Agent header.
type userAgent struct {
	value string
	base  http.RoundTripper
}

func (ua userAgent) RoundTrip(r *http.Request) (*http.Response, error) {
	cpy := r.Clone(r.Context())
	cpy.Header.Set("User-Agent", ua.value)
	return ua.base.RoundTrip(cpy)
}

// dispatchTimeout is an http.RoundTripper bounding one network call.
// The deadline stays armed until the response body is closed.
type dispatchTimeout struct {
	d    time.Duration
	base http.RoundTripper
}

func (dt dispatchTimeout) RoundTrip(r *http.Request) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(r.Context(), dt.d)

	resp, err := dt.base.RoundTrip(r.WithContext(ctx))
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}

	return resp, nil
}

type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// DoOption is a functional option for [Client.Do].
type DoOption func(options *doOpts) error

type doOpts struct {
	responseBody any
	useJSONNum   bool
	raw          *[]byte
}

// WithDestination decodes the HTTP response body into bodyTemplate.
// bodyTemplate must be a pointer.
func WithDestination[T any](bodyTemplate *T) DoOption {
	return func(opts *doOpts) error {
		opts.responseBody = bodyTemplate

		return nil
	}
}

// WithJSONNumb tells the JSON decoder to use [json.Decoder.UseNumber],
// preserving number precision as [json.Number] instead of float64.
func WithJSONNumb() DoOption {
	return func(opts *doOpts) error {
		opts.useJSONNum = true

		return nil
	}
}

// WithBytes copies the raw HTTP response body into dst.
// It cannot be combined with [WithDestination].
func WithBytes(dst *[]byte) DoOption {
	return func(opts *doOpts) error {
		if dst == nil {
			return errors.New("bytes destination must not be nil")
		}
		opts.raw = dst

		return nil
	}
}

// RequestOption is a functional option for [Request].
type RequestOption func(options *requestOpts) error

type requestOpts struct {
	body        any
	raw         []byte
	contentType *string
	cookies     []*http.Cookie
	headers     map[string][]string
}

// WithPayload sets the JSON-encoded request body.
func WithPayload(body any) RequestOption {
	return func(opts *requestOpts) error {
		opts.body = body

		return nil
	}
}

// WithRawPayload sends b unchanged as the request body. The Content-Type
// defaults to "application/octet-stream". It cannot be combined with [WithPayload].
func WithRawPayload(b []byte) RequestOption {
	return func(opts *requestOpts) error {
		opts.raw = b

		return nil
	}
}

// WithContentType overrides the default Content-Type header.
func WithContentType(contentType string) RequestOption {
	return func(opts *requestOpts) error {
		if contentType == "" {
			return errors.New("cannot use empty content type")
		}

		opts.contentType = &contentType

		return nil
	}
}

// WithHeaders adds custom headers to the outgoing request.
func WithHeaders(headers map[string][]string) RequestOption {
	return func(opts *requestOpts) error {
		opts.headers = headers

		return nil
	}
}

// WithCookies attaches the given cookies to the outgoing request.
func WithCookies(cookies ...*http.Cookie) RequestOption {
	return func(opts *requestOpts) error {
		opts.cookies = cookies

		return nil
	}
}

// URLOption is a functional option for [URL].
type URLOption func(options *urlOpts)

type urlOpts struct {
	queryStrings map[string]string
	port         *int
}

// WithQueryStrings appends query parameters to the URL.
func WithQueryStrings(queryKV map[string]string) URLOption {
	return func(opts *urlOpts) {
		opts.queryStrings = queryKV
	}
}

// WithPort sets the port number on the URL's host.
func WithPort(port int) URLOption {
	return func(opts *urlOpts) {
		opts.port = &port
	}
}
