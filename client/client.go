package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/adamwoolhether/photosync/client/auth"
	"github.com/adamwoolhether/photosync/client/download"
	"github.com/adamwoolhether/photosync/client/throttle"
)

// Client wraps the std-lib *http.Client
// It sets a default *http.Client and *http.Transport, which
// can be customized via optional funcs.
//
// Every request passes through a throttle retrier and, when credentials
// are configured, a bearer-token transport. A Client is safe for
// concurrent use.
type Client struct {
	c      *http.Client
	logger *slog.Logger
	tracer trace.Tracer
}

// Build constructs a [Client]. The transport chain, outermost first, is:
// throttle retry, rate limiter, bearer auth, User-Agent, dispatch timeout,
// base transport.
func Build(optFns ...Option) (*Client, error) {
	client := &Client{
		c:      &http.Client{},
		logger: slog.Default(),
		tracer: noop.NewTracerProvider().Tracer(""),
	}

	opts := options{
		retry: throttle.RetryConfig{MaxAttempts: DefaultMaxAttempts},
	}
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying client option: %w", err)
		}
	}

	if opts.credentials != nil && opts.tokenSource != nil {
		return nil, errors.New("credentials and token source are mutually exclusive")
	}

	if opts.client != nil {
		client.c = opts.client
	}

	if opts.logger != nil {
		client.logger = opts.logger
	}

	if opts.tracer != nil {
		client.tracer = opts.tracer
	}

	// The timeout moves below the retrier so it bounds single dispatches.
	timeout := client.c.Timeout
	if opts.timeout != nil {
		timeout = *opts.timeout
	}
	client.c.Timeout = 0

	if opts.noFollowRedirects {
		client.c.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	logFn := func() *slog.Logger { return client.logger }

	var transport http.RoundTripper
	switch {
	case opts.rt != nil:
		transport = opts.rt
	case opts.client != nil && opts.client.Transport != nil:
		transport = opts.client.Transport
	default:
		transport = http.DefaultTransport
	}
	if opts.userAgent != "" {
		transport = userAgent{value: opts.userAgent, base: transport}
	}
	if timeout > 0 {
		transport = dispatchTimeout{d: timeout, base: transport}
	}

	src := opts.tokenSource
	if opts.credentials != nil {
		exchange := &http.Client{Transport: transport}

		var err error
		src, err = auth.NewSource(*opts.credentials, exchange)
		if err != nil {
			return nil, fmt.Errorf("configuring credentials: %w", err)
		}
	}
	if src != nil {
		margin := auth.DefaultRefreshMargin
		if opts.refreshMargin != nil {
			margin = *opts.refreshMargin
		}

		rt, err := auth.NewRoundTripper(src, margin, logFn, transport)
		if err != nil {
			return nil, fmt.Errorf("configuring auth: %w", err)
		}
		transport = rt
	}

	if opts.throttle != nil {
		rt, err := throttle.NewLimiter(*opts.throttle, logFn, transport)
		if err != nil {
			return nil, fmt.Errorf("configuring throttle: %w", err)
		}
		transport = rt
	}

	opts.retry.FallbackDelay = DefaultFallbackDelay
	if opts.fallbackDelay != nil {
		opts.retry.FallbackDelay = *opts.fallbackDelay
	}
	rt, err := throttle.NewRetrier(opts.retry, logFn, transport)
	if err != nil {
		return nil, fmt.Errorf("configuring retry: %w", err)
	}
	client.c.Transport = rt

	return client, nil
}

// Send dispatches req and returns the host's response whatever its status.
// Throttled responses are retried inside the transport, so a returned
// response is never a throttle the retrier could still absorb.
//
// A non-nil error matches exactly one of [ErrCredential], [ErrThrottled],
// [ErrCancelled] or [ErrTransport]. The caller closes the response body.
func (c *Client) Send(req *http.Request) (*http.Response, error) {
	ctx, span := c.tracer.Start(req.Context(), "client.send", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("http.request.method", req.Method),
		attribute.String("server.address", req.URL.Host),
		attribute.String("url.path", req.URL.Path),
	)

	resp, err := c.c.Do(req.WithContext(ctx))
	if err != nil {
		err = classify(req.Context(), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	return resp, nil
}

// classify sorts a failed send into one error category.
func classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, auth.ErrCredential), errors.Is(err, throttle.ErrThrottled):
		return err
	case ctx.Err() != nil:
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	default:
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
}

// Do will fire the request, and write response to the given dest object if any.
func (c *Client) Do(req *http.Request, expCode int, opts ...DoOption) error {
	var settings doOpts
	for _, opt := range opts {
		err := opt(&settings)
		if err != nil {
			return err
		}
	}

	if settings.responseBody != nil && settings.raw != nil {
		return errors.New("destination and bytes are mutually exclusive")
	}

	doFunc := func(resp *http.Response) error {
		if settings.raw != nil {
			b, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("reading body: %w", err)
			}
			*settings.raw = b

			return nil
		}

		if settings.responseBody != nil {
			d := json.NewDecoder(resp.Body)

			if settings.useJSONNum {
				d.UseNumber()
			}

			if err := d.Decode(settings.responseBody); err != nil {
				return fmt.Errorf("decoding body: %w", err)
			}
		}

		return nil
	}

	return c.exec(req, expCode, doFunc)
}

// Download executes a request that's intended to stream the response body it to destPath.
// Data streams to a temp file in the same directory, then the temp file is renamed to
// destPath on success or cleared on failure
func (c *Client) Download(req *http.Request, expCode int, destPath string, opts ...download.Option) error {
	if destPath == "" {
		return errors.New("destPath must not be empty")
	}

	dlFunc := func(resp *http.Response) error {
		if err := download.Handle(req.Context(), resp.Body, resp.ContentLength, destPath, c.logger, opts...); err != nil {
			return fmt.Errorf("download: %w", err)
		}

		return nil
	}

	return c.exec(req, expCode, dlFunc)
}

// Request instantiates an *http.Request with the provided information.
// It's just a convenience method that wraps the public Request func.
func (c *Client) Request(ctx context.Context, reqURL *url.URL, method string, opts ...RequestOption) (*http.Request, error) {
	return Request(ctx, reqURL, method, opts...)
}

// URL creates a url.URL for use in Request.
// It's just a convenience method that wraps the public URL func.
func (c *Client) URL(scheme, host, path string, opts ...URLOption) *url.URL {
	return URL(scheme, host, path, opts...)
}

// exec runs the request and injected function on success after validating the expected status code.
func (c *Client) exec(req *http.Request, expCode int, fn execFn) error {
	resp, err := c.Send(req)
	if err != nil {
		return fmt.Errorf("exec send: %w", err)
	}

	discardBody := true
	defer func() {
		if discardBody {
			if _, err = io.Copy(io.Discard, resp.Body); err != nil {
				c.logger.Error("failed to discard unused body", "error", err)
			}
		}
		if err = resp.Body.Close(); err != nil {
			c.logger.Error("failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode != expCode {
		b, err := io.ReadAll(io.LimitReader(resp.Body, maxErrBodySize))
		if err != nil {
			b = []byte("unable to read body")
		}

		sentinel := ErrUnexpectedStatusCode
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			sentinel = errors.Join(ErrUnexpectedStatusCode, ErrAuthFailure)
		}

		return &UnexpectedStatusError{
			StatusCode: resp.StatusCode,
			Body:       string(b),
			Err:        sentinel,
		}
	}

	if err := fn(resp); err != nil {
		discardBody = false
		return fmt.Errorf("exec fn: %w", err)
	}

	return nil
}

// Request instantiates an *http.Request with the provided information.
// Content-Type defaults to `application/json` if unspecified via WithContentType,
// or `application/octet-stream` when the body is set by WithRawPayload.
func Request(ctx context.Context, reqURL *url.URL, method string, opts ...RequestOption) (*http.Request, error) {
	var settings requestOpts
	for _, opt := range opts {
		err := opt(&settings)
		if err != nil {
			return nil, err
		}
	}

	if settings.body != nil && settings.raw != nil {
		return nil, errors.New("payload and raw payload are mutually exclusive")
	}

	contentType := "application/json"

	var body io.Reader
	switch {
	case settings.raw != nil:
		contentType = "application/octet-stream"
		body = bytes.NewReader(settings.raw)
	default:
		var payload bytes.Buffer
		if settings.body != nil {
			if err := json.NewEncoder(&payload).Encode(settings.body); err != nil {
				return nil, fmt.Errorf("encoding request payload: %w", err)
			}
		}
		body = &payload
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("instantiating request: %w", err)
	}

	for _, cookie := range settings.cookies {
		req.AddCookie(cookie)
	}

	if settings.contentType != nil {
		contentType = *settings.contentType
	}

	req.Header.Set("Content-Type", contentType)
	for k, v := range settings.headers {
		for _, element := range v {
			req.Header.Add(k, element)
		}
	}

	return req, nil
}

// URL creates a url.URL for use in Request.
func URL(scheme, host, path string, opts ...URLOption) *url.URL {
	var settings urlOpts
	for _, opt := range opts {
		opt(&settings)
	}

	if settings.port != nil {
		host = fmt.Sprintf("%s:%d", host, *settings.port)
	}

	endpoint := url.URL{
		Scheme: scheme,
		Host:   host,
		Path:   path,
	}

	if settings.queryStrings != nil {
		queryParams := url.Values{}
		for k, v := range settings.queryStrings {
			queryParams.Add(k, v)
		}

		endpoint.RawQuery = queryParams.Encode()
	}

	return &endpoint
}
