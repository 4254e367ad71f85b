package auth

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultAuthorityHost is the Microsoft Entra ID public cloud authority.
const DefaultAuthorityHost = "https://login.microsoftonline.com"

// Config identifies the application and the resource tokens are issued for.
// Exactly one of ClientSecret and Certificate must be set.
//
// Resource is the audience, e.g. "https://graph.microsoft.com" or
// "https://contoso.sharepoint.com"; the requested scope is
// "<Resource>/.default". TokenURL, when set, replaces the endpoint derived
// from AuthorityHost and TenantID.
type Config struct {
	AuthorityHost string
	TenantID      string
	ClientID      string
	ClientSecret  string
	Certificate   *Certificate
	Resource      string
	TokenURL      string
}

func (c Config) validate() error {
	var missing []string
	if c.TenantID == "" && c.TokenURL == "" {
		missing = append(missing, "tenant id")
	}
	if c.ClientID == "" {
		missing = append(missing, "client id")
	}
	if c.Resource == "" {
		missing = append(missing, "resource")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidConfig, strings.Join(missing, ", "))
	}

	switch {
	case c.ClientSecret == "" && c.Certificate == nil:
		return fmt.Errorf("%w: one of client secret or certificate is required", ErrInvalidConfig)
	case c.ClientSecret != "" && c.Certificate != nil:
		return fmt.Errorf("%w: client secret and certificate are mutually exclusive", ErrInvalidConfig)
	}

	if _, err := url.Parse(c.tokenURL()); err != nil {
		return fmt.Errorf("%w: token url: %w", ErrInvalidConfig, err)
	}

	return nil
}

// tokenURL returns the v2.0 token endpoint for the configured tenant.
func (c Config) tokenURL() string {
	if c.TokenURL != "" {
		return c.TokenURL
	}

	authority := c.AuthorityHost
	if authority == "" {
		authority = DefaultAuthorityHost
	}

	return fmt.Sprintf("%s/%s/oauth2/v2.0/token", strings.TrimRight(authority, "/"), url.PathEscape(c.TenantID))
}

// scope returns the static ".default" scope for Resource.
func (c Config) scope() string {
	return strings.TrimRight(c.Resource, "/") + "/.default"
}
