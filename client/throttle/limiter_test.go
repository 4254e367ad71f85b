package throttle

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func okScript() *script {
	return &script{responses: []func() *http.Response{
		func() *http.Response { return respond(http.StatusOK, nil, `{"d":{}}`) },
	}}
}

func profileRequest(t *testing.T, ctx context.Context) *http.Request {
	t.Helper()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"https://contoso-admin.sharepoint.com/_api/SP.UserProfiles.PeopleManager/GetPropertiesFor(accountName=@v)", nil)
	if err != nil {
		t.Fatal(err)
	}

	return req
}

func TestNewLimiter_Validation(t *testing.T) {
	testCases := []struct {
		name   string
		cfg    Config
		expErr error
	}{
		{name: "Zero rps", cfg: Config{RPS: 0, Burst: 1}, expErr: ErrMustNotBeZero},
		{name: "Zero burst", cfg: Config{RPS: 1, Burst: 0}, expErr: ErrMustNotBeZero},
		{name: "Negative rps", cfg: Config{RPS: -2, Burst: 1}, expErr: ErrMustNotBeZero},
		{name: "Valid", cfg: Config{RPS: 10, Burst: 2}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewLimiter(tc.cfg, nil, okScript())
			if !errors.Is(err, tc.expErr) {
				t.Errorf("exp err: %v, got: %v", tc.expErr, err)
			}
		})
	}
}

func TestLimiter_BurstAgainstOneHost(t *testing.T) {
	const (
		rps      = 20
		burst    = 2
		requests = 6
	)

	host := okScript()
	rt, err := NewLimiter(Config{RPS: rps, Burst: burst}, nil, host)
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	for i := range requests {
		resp, err := rt.RoundTrip(profileRequest(t, t.Context()))
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		resp.Body.Close()
	}
	elapsed := time.Since(start)

	// The first burst goes out at once; each later request waits 1/rps.
	minElapsed := time.Duration(requests-burst) * time.Second / rps
	if elapsed < minElapsed-20*time.Millisecond {
		t.Errorf("exp at least %v for %d requests, took %v", minElapsed, requests, elapsed)
	}
	if host.dispatches() != requests {
		t.Errorf("exp %d dispatches, got %d", requests, host.dispatches())
	}
}

func TestLimiter_WaitBoundByCallerContext(t *testing.T) {
	host := okScript()
	rt, err := NewLimiter(Config{RPS: 1, Burst: 1}, nil, host)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := rt.RoundTrip(profileRequest(t, t.Context()))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	// The next token is a second away, past this caller's deadline.
	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = rt.RoundTrip(profileRequest(t, ctx))
	if !errors.Is(err, ErrWaitingFailed) {
		t.Fatalf("exp ErrWaitingFailed, got: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("exp prompt failure, waited %v", elapsed)
	}
	if host.dispatches() != 1 {
		t.Errorf("exp 1 dispatch, got %d", host.dispatches())
	}
}

func TestLimiter_EndedContextSkipsDispatch(t *testing.T) {
	host := okScript()
	rt, err := NewLimiter(Config{RPS: 100, Burst: 10}, nil, host)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err = rt.RoundTrip(profileRequest(t, ctx))
	if !errors.Is(err, ErrContextEnded) {
		t.Errorf("exp ErrContextEnded, got: %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("exp context.Canceled in chain, got: %v", err)
	}
	if host.dispatches() != 0 {
		t.Errorf("exp 0 dispatches, got %d", host.dispatches())
	}
}

func TestLimiter_RetriesSpendTokens(t *testing.T) {
	const rps = 10

	// Two throttles then success, each resend passing back through the limiter.
	host := throttledThenOK(2)
	limited, err := NewLimiter(Config{RPS: rps, Burst: 1}, nil, host)
	if err != nil {
		t.Fatal(err)
	}
	rt, err := NewRetrier(RetryConfig{MaxAttempts: 5, IgnoreRetryHeader: true}, nil, limited)
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	resp, err := rt.RoundTrip(profileRequest(t, t.Context()))
	if err != nil {
		t.Fatalf("exp nil err, got: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("exp 200, got %d", resp.StatusCode)
	}
	if host.dispatches() != 3 {
		t.Errorf("exp 3 dispatches, got %d", host.dispatches())
	}

	minElapsed := 2 * time.Second / rps
	if elapsed := time.Since(start); elapsed < minElapsed-20*time.Millisecond {
		t.Errorf("exp resends to wait for limiter tokens (%v), took %v", minElapsed, elapsed)
	}
}
