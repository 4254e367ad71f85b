package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const (
	// DefaultRefreshMargin is how long before expiry a token is replaced.
	DefaultRefreshMargin = 5 * time.Minute
	// DefaultTokenLifetime is assumed for a token issued without an expiry.
	DefaultTokenLifetime = time.Hour
)

// bearer is an http.RoundTripper that attaches a cached bearer token,
// refreshing it from src when it nears expiry.
type bearer struct {
	src    Source
	margin time.Duration
	next   http.RoundTripper
	logFn  func() *slog.Logger
	now    func() time.Time

	// sem is a one-slot lock that waiters can abandon when their ctx ends.
	sem   chan struct{}
	token Token
}

// NewRoundTripper returns an http.RoundTripper that authorizes every request
// to next with a token from src. The token is refreshed when it expires
// within margin. logFn lazily resolves the logger and may return nil.
//
// Any Authorization header set by the caller is replaced.
func NewRoundTripper(src Source, margin time.Duration, logFn func() *slog.Logger, next http.RoundTripper) (http.RoundTripper, error) {
	if src == nil {
		return nil, errors.New("token source must not be nil")
	}
	if margin < 0 {
		return nil, errors.New("refresh margin must not be negative")
	}
	if logFn == nil {
		logFn = func() *slog.Logger { return nil }
	}

	b := &bearer{
		src:    src,
		margin: margin,
		next:   next,
		logFn:  logFn,
		now:    time.Now,
		sem:    make(chan struct{}, 1),
	}

	return b, nil
}

func (b *bearer) RoundTrip(r *http.Request) (*http.Response, error) {
	tok, err := b.current(r.Context())
	if err != nil {
		return nil, err
	}

	cpy := r.Clone(r.Context())
	cpy.Header.Set("Authorization", "Bearer "+tok.Value)

	return b.next.RoundTrip(cpy)
}

// current returns the cached token, refreshing it first when needed.
// Callers queue on sem so a refresh happens once for all of them.
func (b *bearer) current(ctx context.Context) (Token, error) {
	select {
	case b.sem <- struct{}{}:
	case <-ctx.Done():
		return Token{}, fmt.Errorf("waiting for token refresh: %w", ctx.Err())
	}
	defer func() { <-b.sem }()

	if b.token.Valid(b.now(), b.margin) {
		return b.token, nil
	}

	tok, err := b.src.Token(ctx)
	if err != nil {
		return Token{}, fmt.Errorf("acquiring token: %w", err)
	}
	if tok.Value == "" {
		return Token{}, &CredentialError{Description: "identity provider returned an empty token"}
	}
	if tok.ExpiresOn.IsZero() {
		tok.ExpiresOn = b.now().Add(DefaultTokenLifetime)
	}

	b.token = tok

	if logger := b.logFn(); logger != nil {
		logger.Debug("access token acquired", "expires", tok.ExpiresOn.Format(time.RFC3339))
	}

	return tok, nil
}
