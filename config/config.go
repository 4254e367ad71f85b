// Package config loads photosync settings from the environment, optionally
// seeded from a dotenv file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/adamwoolhether/photosync/client/auth"
)

// Config holds everything the sync needs to reach Entra ID, Microsoft Graph
// and the SharePoint tenant.
type Config struct {
	TenantID        string `env:"PHOTOSYNC_TENANT_ID" validate:"required"`
	ClientID        string `env:"PHOTOSYNC_CLIENT_ID" validate:"required"`
	ClientSecret    string `env:"PHOTOSYNC_CLIENT_SECRET" validate:"required_without=CertificatePath,excluded_with=CertificatePath"`
	CertificatePath string `env:"PHOTOSYNC_CERTIFICATE_PATH" validate:"required_without=ClientSecret,omitempty,file"`
	AuthorityHost   string `env:"PHOTOSYNC_AUTHORITY_HOST" default:"https://login.microsoftonline.com" validate:"required,url"`

	// Tenant is the SharePoint tenant name, "contoso" for contoso.sharepoint.com.
	Tenant    string `env:"PHOTOSYNC_SHAREPOINT_TENANT" validate:"required,alphanum"`
	GraphHost string `env:"PHOTOSYNC_GRAPH_HOST" default:"graph.microsoft.com" validate:"required,hostname"`

	MaxAttempts   int           `env:"PHOTOSYNC_MAX_ATTEMPTS" default:"5" validate:"min=1,max=20"`
	FallbackDelay time.Duration `env:"PHOTOSYNC_FALLBACK_DELAY" default:"2s" validate:"min=0"`
	IgnoreRetry   bool          `env:"PHOTOSYNC_IGNORE_RETRY_AFTER" default:"false"`
	RPS           int           `env:"PHOTOSYNC_RPS" default:"0" validate:"min=0"`
	Burst         int           `env:"PHOTOSYNC_BURST" default:"1" validate:"min=1"`
	Timeout       time.Duration `env:"PHOTOSYNC_TIMEOUT" default:"60s" validate:"min=0"`
	UserAgent     string        `env:"PHOTOSYNC_USER_AGENT" default:"photosync/1.0"`
	LogLevel      string        `env:"PHOTOSYNC_LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// TraceFile receives finished spans as JSON lines. Empty disables tracing.
	TraceFile string `env:"PHOTOSYNC_TRACE_FILE"`
}

// Lookup retrieves the value of an environment variable.
type Lookup func(key string) (string, bool)

// Load reads path into the process environment, when it exists, and then
// parses the environment. An empty path means ".env" and may be absent.
func Load(path string) (Config, error) {
	optional := path == ""
	if optional {
		path = ".env"
	}

	if err := godotenv.Load(path); err != nil {
		if !optional || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("loading %s: %w", path, err)
		}
	}

	return Parse(os.LookupEnv)
}

// Parse fills a Config from lookup, applying defaults, and validates it.
func Parse(lookup Lookup) (Config, error) {
	var cfg Config

	v := reflect.ValueOf(&cfg).Elem()
	t := v.Type()
	for i := range t.NumField() {
		field := t.Field(i)

		raw, ok := lookup(field.Tag.Get("env"))
		if !ok || raw == "" {
			raw, ok = field.Tag.Lookup("default")
		}
		if !ok {
			continue
		}

		if err := set(v.Field(i), raw); err != nil {
			return Config{}, FieldErrors{{Field: field.Tag.Get("env"), Err: err.Error()}}
		}
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func set(fv reflect.Value, raw string) error {
	switch {
	case fv.Type() == reflect.TypeFor[time.Duration]():
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration %q", raw)
		}
		fv.SetInt(int64(d))
	case fv.Kind() == reflect.Int:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid integer %q", raw)
		}
		fv.SetInt(int64(n))
	case fv.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", raw)
		}
		fv.SetBool(b)
	default:
		fv.SetString(raw)
	}

	return nil
}

// AdminHost is the tenant's SharePoint admin site.
func (c Config) AdminHost() string {
	return c.Tenant + "-admin.sharepoint.com"
}

// MySiteHost is the tenant's personal sites host, where profile photos live.
func (c Config) MySiteHost() string {
	return c.Tenant + "-my.sharepoint.com"
}

// Certificate loads the configured client certificate, or returns nil when
// a client secret is used instead.
func (c Config) Certificate() (*auth.Certificate, error) {
	if c.CertificatePath == "" {
		return nil, nil
	}

	cert, err := auth.LoadCertificate(c.CertificatePath)
	if err != nil {
		return nil, fmt.Errorf("loading certificate: %w", err)
	}

	return cert, nil
}

// Credentials returns the exchange settings for tokens whose audience is host.
func (c Config) Credentials(host string, cert *auth.Certificate) auth.Config {
	cfg := auth.Config{
		AuthorityHost: c.AuthorityHost,
		TenantID:      c.TenantID,
		ClientID:      c.ClientID,
		Resource:      "https://" + host,
	}

	if cert != nil {
		cfg.Certificate = cert
	} else {
		cfg.ClientSecret = c.ClientSecret
	}

	return cfg
}
