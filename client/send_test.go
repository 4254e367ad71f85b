package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/adamwoolhether/photosync/client"
	"github.com/adamwoolhether/photosync/client/auth"
)

// identityProvider issues "token-<n>" on each exchange, or rejects every
// exchange when reject is set.
type identityProvider struct {
	*httptest.Server
	exchanges atomic.Int32
}

func newIdentityProvider(t *testing.T, reject bool) *identityProvider {
	t.Helper()

	idp := &identityProvider{}
	idp.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := idp.exchanges.Add(1)

		w.Header().Set("Content-Type", "application/json")
		if reject {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":             "invalid_client",
				"error_description": "AADSTS7000215: Invalid client secret provided.",
			})
			return
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "token-" + strconv.Itoa(int(n)),
			"token_type":   "Bearer",
			"expires_in":   3599,
		})
	}))
	t.Cleanup(idp.Close)

	return idp
}

func (idp *identityProvider) credentials() auth.Config {
	return auth.Config{
		ClientID:     "app-id",
		ClientSecret: "s3cret",
		Resource:     "https://contoso.sharepoint.com",
		TokenURL:     idp.URL + "/token",
	}
}

// targetHost replays statuses in order and repeats the last one forever.
type targetHost struct {
	*httptest.Server
	dispatches atomic.Int32

	mu      sync.Mutex
	bearers []string
}

func newTargetHost(t *testing.T, retryAfter string, statuses ...int) *targetHost {
	t.Helper()

	th := &targetHost{}
	th.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(th.dispatches.Add(1))

		th.mu.Lock()
		th.bearers = append(th.bearers, r.Header.Get("Authorization"))
		th.mu.Unlock()

		status := statuses[min(n, len(statuses))-1]
		if status == http.StatusTooManyRequests && retryAfter != "" {
			w.Header().Set("Retry-After", retryAfter)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"value":"ok"}`))
	}))
	t.Cleanup(th.Close)

	return th
}

func send(t *testing.T, c *client.Client, ctx context.Context, rawURL string) (*http.Response, error) {
	t.Helper()

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parsing url: %v", err)
	}

	req, err := client.Request(ctx, u, http.MethodGet)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}

	resp, err := c.Send(req)
	if err == nil {
		t.Cleanup(func() { _ = resp.Body.Close() })
	}

	return resp, err
}

func TestClient_Send_ThrottledThenSuccess(t *testing.T) {
	idp := newIdentityProvider(t, false)
	target := newTargetHost(t, "0", http.StatusTooManyRequests, http.StatusOK)

	c, err := client.Build(
		client.WithCredentials(idp.credentials()),
		client.WithFallbackDelay(10*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("building client: %v", err)
	}

	resp, err := send(t, c, t.Context(), target.URL)
	if err != nil {
		t.Fatalf("exp nil err, got: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("exp 200, got %d", resp.StatusCode)
	}

	if got := target.dispatches.Load(); got != 2 {
		t.Errorf("exp 2 dispatches, got %d", got)
	}
	if got := idp.exchanges.Load(); got != 1 {
		t.Errorf("exp 1 token acquisition, got %d", got)
	}
	for i, b := range target.bearers {
		if b != "Bearer token-1" {
			t.Errorf("dispatch %d: exp cached bearer, got %q", i, b)
		}
	}
}

func TestClient_Send_ThrottleRetries(t *testing.T) {
	testCases := map[string]struct {
		maxAttempts   int
		throttles     int
		expDispatches int32
		expErr        error
	}{
		"fewerThrottlesThanBudget": {maxAttempts: 3, throttles: 2, expDispatches: 3},
		"throttlesEqualBudget":     {maxAttempts: 3, throttles: 3, expDispatches: 3, expErr: client.ErrThrottled},
		"throttlesExceedBudget":    {maxAttempts: 2, throttles: 5, expDispatches: 2, expErr: client.ErrThrottled},
		"singleAttempt":            {maxAttempts: 1, throttles: 1, expDispatches: 1, expErr: client.ErrThrottled},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			statuses := make([]int, 0, tc.throttles+1)
			for range tc.throttles {
				statuses = append(statuses, http.StatusTooManyRequests)
			}
			statuses = append(statuses, http.StatusOK)

			target := newTargetHost(t, "", statuses...)

			c, err := client.Build(
				client.WithTokenSource(staticSource("tok")),
				client.WithMaxAttempts(tc.maxAttempts),
				client.WithFallbackDelay(time.Millisecond),
			)
			if err != nil {
				t.Fatalf("building client: %v", err)
			}

			_, err = send(t, c, t.Context(), target.URL)
			if !errors.Is(err, tc.expErr) {
				t.Fatalf("exp err: %v, got: %v", tc.expErr, err)
			}

			if got := target.dispatches.Load(); got != tc.expDispatches {
				t.Errorf("exp %d dispatches, got %d", tc.expDispatches, got)
			}

			if tc.expErr == nil {
				return
			}

			var throttled *client.ThrottledError
			if !errors.As(err, &throttled) {
				t.Fatalf("exp *ThrottledError, got %T", err)
			}
			if throttled.Attempts != tc.maxAttempts {
				t.Errorf("exp %d attempts, got %d", tc.maxAttempts, throttled.Attempts)
			}
			if throttled.StatusCode != http.StatusTooManyRequests {
				t.Errorf("exp last status 429, got %d", throttled.StatusCode)
			}
			if errors.Is(err, client.ErrTransport) || errors.Is(err, client.ErrCancelled) {
				t.Errorf("throttle exhaustion misclassified: %v", err)
			}
		})
	}
}

func TestClient_Send_CredentialRejected(t *testing.T) {
	idp := newIdentityProvider(t, true)
	target := newTargetHost(t, "", http.StatusOK)

	c, err := client.Build(client.WithCredentials(idp.credentials()))
	if err != nil {
		t.Fatalf("building client: %v", err)
	}

	_, err = send(t, c, t.Context(), target.URL)
	if !errors.Is(err, client.ErrCredential) {
		t.Fatalf("exp ErrCredential, got: %v", err)
	}

	var credErr *client.CredentialError
	if !errors.As(err, &credErr) {
		t.Fatalf("exp *CredentialError, got %T", err)
	}
	if credErr.Code != "invalid_client" {
		t.Errorf("exp invalid_client, got %q", credErr.Code)
	}

	if got := target.dispatches.Load(); got != 0 {
		t.Errorf("exp 0 dispatches, got %d", got)
	}
}

func TestClient_Send_TransportError(t *testing.T) {
	target := newTargetHost(t, "", http.StatusOK)
	addr := target.URL
	target.Close()

	c, err := client.Build(client.WithTokenSource(staticSource("tok")))
	if err != nil {
		t.Fatalf("building client: %v", err)
	}

	_, err = send(t, c, t.Context(), addr)
	if !errors.Is(err, client.ErrTransport) {
		t.Fatalf("exp ErrTransport, got: %v", err)
	}
	if errors.Is(err, client.ErrCancelled) || errors.Is(err, client.ErrThrottled) {
		t.Errorf("transport failure misclassified: %v", err)
	}
}

func TestClient_Send_NonThrottleStatusReturned(t *testing.T) {
	target := newTargetHost(t, "", http.StatusInternalServerError)

	c, err := client.Build(client.WithTokenSource(staticSource("tok")))
	if err != nil {
		t.Fatalf("building client: %v", err)
	}

	resp, err := send(t, c, t.Context(), target.URL)
	if err != nil {
		t.Fatalf("exp nil err, got: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("exp 500, got %d", resp.StatusCode)
	}
	if got := target.dispatches.Load(); got != 1 {
		t.Errorf("exp 1 dispatch, got %d", got)
	}
}

func TestClient_Send_CancelDuringBackoff(t *testing.T) {
	target := newTargetHost(t, "30", http.StatusTooManyRequests)

	c, err := client.Build(client.WithTokenSource(staticSource("tok")))
	if err != nil {
		t.Fatalf("building client: %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err = send(t, c, ctx, target.URL)
	elapsed := time.Since(start)

	if !errors.Is(err, client.ErrCancelled) {
		t.Fatalf("exp ErrCancelled, got: %v", err)
	}
	if elapsed > 5*time.Second {
		t.Errorf("cancellation not prompt: %v", elapsed)
	}
	if got := target.dispatches.Load(); got != 1 {
		t.Errorf("exp 1 dispatch, got %d", got)
	}
}

func TestClient_Send_IgnoreRetryHeader(t *testing.T) {
	target := newTargetHost(t, "30", http.StatusTooManyRequests, http.StatusOK)

	c, err := client.Build(
		client.WithTokenSource(staticSource("tok")),
		client.WithIgnoreRetryHeader(),
		client.WithFallbackDelay(20*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("building client: %v", err)
	}

	start := time.Now()
	if _, err := send(t, c, t.Context(), target.URL); err != nil {
		t.Fatalf("exp nil err, got: %v", err)
	}

	if elapsed := time.Since(start); elapsed < 20*time.Millisecond || elapsed > 5*time.Second {
		t.Errorf("exp the fallback delay to be observed, took %v", elapsed)
	}
}

func TestClient_Send_CustomDetector(t *testing.T) {
	target := newTargetHost(t, "", http.StatusServiceUnavailable, http.StatusOK)

	detector := func(resp *http.Response) (time.Duration, bool) {
		return 0, resp.StatusCode == http.StatusServiceUnavailable
	}

	c, err := client.Build(
		client.WithTokenSource(staticSource("tok")),
		client.WithThrottleDetector(detector),
		client.WithFallbackDelay(time.Millisecond),
	)
	if err != nil {
		t.Fatalf("building client: %v", err)
	}

	resp, err := send(t, c, t.Context(), target.URL)
	if err != nil {
		t.Fatalf("exp nil err, got: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("exp 200, got %d", resp.StatusCode)
	}
	if got := target.dispatches.Load(); got != 2 {
		t.Errorf("exp 2 dispatches, got %d", got)
	}
}

type recordingTracer struct {
	noop.Tracer

	mu    sync.Mutex
	spans []string
}

func (r *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	r.mu.Lock()
	r.spans = append(r.spans, name)
	r.mu.Unlock()

	return r.Tracer.Start(ctx, name, opts...)
}

func TestClient_Send_Tracing(t *testing.T) {
	target := newTargetHost(t, "", http.StatusOK)
	tracer := &recordingTracer{}

	c, err := client.Build(client.WithTracer(tracer))
	if err != nil {
		t.Fatalf("building client: %v", err)
	}

	if _, err := send(t, c, t.Context(), target.URL); err != nil {
		t.Fatalf("exp nil err, got: %v", err)
	}

	if len(tracer.spans) != 1 || tracer.spans[0] != "client.send" {
		t.Errorf("exp one client.send span, got %v", tracer.spans)
	}
}

func TestClient_Send_TimeoutExcludesThrottleWait(t *testing.T) {
	target := newTargetHost(t, "2", http.StatusTooManyRequests, http.StatusOK)

	c, err := client.Build(
		client.WithTokenSource(staticSource("tok")),
		client.WithTimeout(time.Second),
	)
	if err != nil {
		t.Fatalf("building client: %v", err)
	}

	start := time.Now()
	resp, err := send(t, c, t.Context(), target.URL)
	if err != nil {
		t.Fatalf("exp throttle absorbed, got: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("exp 200, got %d", resp.StatusCode)
	}
	if elapsed := time.Since(start); elapsed < 2*time.Second {
		t.Errorf("exp Retry-After of 2s honored, returned after %v", elapsed)
	}
	if got := target.dispatches.Load(); got != 2 {
		t.Errorf("exp 2 dispatches, got %d", got)
	}
}

func TestClient_Send_SlowDispatchIsTransport(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c, err := client.Build(
		client.WithTokenSource(staticSource("tok")),
		client.WithTimeout(50*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("building client: %v", err)
	}

	_, err = send(t, c, t.Context(), ts.URL)
	if !errors.Is(err, client.ErrTransport) {
		t.Fatalf("exp ErrTransport, got: %v", err)
	}
	if errors.Is(err, client.ErrCancelled) {
		t.Error("a dispatch timeout must not be reported as caller cancellation")
	}
}
