package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Source obtains a fresh access token. Implementations are not expected
// to cache; caching is the RoundTripper's job.
type Source interface {
	Token(ctx context.Context) (Token, error)
}

// SourceFunc adapts a function to a [Source].
type SourceFunc func(ctx context.Context) (Token, error)

func (f SourceFunc) Token(ctx context.Context) (Token, error) {
	return f(ctx)
}

// clientCredentials performs the OAuth2 client-credentials grant.
type clientCredentials struct {
	cfg Config
	hc  *http.Client
	now func() time.Time
}

// NewSource returns a [Source] exchanging cfg's credential for tokens.
// hc is used for the exchange itself; nil means [http.DefaultClient].
func NewSource(cfg Config, hc *http.Client) (Source, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	s := &clientCredentials{
		cfg: cfg,
		hc:  hc,
		now: time.Now,
	}

	return s, nil
}

func (s *clientCredentials) Token(ctx context.Context) (Token, error) {
	tokenURL := s.cfg.tokenURL()

	cc := clientcredentials.Config{
		ClientID:     s.cfg.ClientID,
		ClientSecret: s.cfg.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{s.cfg.scope()},
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	// A new assertion per exchange; they are short-lived and single-use.
	if s.cfg.Certificate != nil {
		assertion, err := s.cfg.Certificate.assertion(s.cfg.ClientID, tokenURL, s.now())
		if err != nil {
			return Token{}, &CredentialError{Err: err}
		}
		cc.EndpointParams = url.Values{
			"client_assertion_type": {assertionType},
			"client_assertion":      {assertion},
		}
	}

	if s.hc != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.hc)
	}

	tok, err := cc.Token(ctx)
	if err != nil {
		return Token{}, classify(ctx, err)
	}

	return Token{Value: tok.AccessToken, ExpiresOn: tok.Expiry}, nil
}

// classify separates refusals by the identity provider from failures to
// reach it. Only the former become a CredentialError.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("token exchange: %w", err)
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		ce := &CredentialError{
			Code:        re.ErrorCode,
			Description: re.ErrorDescription,
		}
		if re.Response != nil {
			ce.StatusCode = re.Response.StatusCode
		}
		return ce
	}

	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("token exchange: %w", err)
	}

	// Malformed or empty token responses.
	return &CredentialError{Err: err}
}
