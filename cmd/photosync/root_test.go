package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"

	"github.com/adamwoolhether/photosync/client"
	"github.com/adamwoolhether/photosync/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())

	return out.String(), err
}

func TestSync_Args(t *testing.T) {
	testCases := map[string]struct {
		args []string
		exp  string
	}{
		"noUsers":           {args: []string{"sync"}, exp: "requires at least 1 user principal name"},
		"allExternalAndUpn": {args: []string{"sync", "--all-external", "alice@contoso.com"}, exp: "does not take user arguments"},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := execute(t, tc.args...)
			if err == nil || !strings.Contains(err.Error(), tc.exp) {
				t.Fatalf("exp error containing %q, got: %v", tc.exp, err)
			}
		})
	}
}

func TestSync_InvalidConfig(t *testing.T) {
	t.Setenv("PHOTOSYNC_TENANT_ID", "")
	t.Setenv("PHOTOSYNC_CLIENT_ID", "")
	t.Setenv("PHOTOSYNC_LOG_LEVEL", "")

	_, err := execute(t, "--env-file", "testdata/invalid.env", "sync", "alice@contoso.com")
	if err == nil {
		t.Fatal("exp config error")
	}

	fe := config.GetFieldErrors(err)
	if fe == nil {
		t.Fatalf("exp field errors, got: %v", err)
	}
	if _, ok := fe.Fields()["PHOTOSYNC_SHAREPOINT_TENANT"]; !ok {
		t.Errorf("exp PHOTOSYNC_SHAREPOINT_TENANT error, got %v", fe.Fields())
	}
}

func TestNewLogger(t *testing.T) {
	testCases := map[string]struct {
		level   string
		json    bool
		verbose bool
		exp     string
		absent  string
	}{
		"textInfo":       {level: "info", exp: "level=INFO", absent: "level=DEBUG"},
		"jsonInfo":       {level: "info", json: true, exp: `"level":"INFO"`},
		"verboseWins":    {level: "error", verbose: true, exp: "level=DEBUG"},
		"errorDropsInfo": {level: "error", absent: "level=INFO"},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := newLogger(&buf, tc.level, tc.json, tc.verbose)
			if err != nil {
				t.Fatal(err)
			}

			logger.Debug("debug line")
			logger.Info("info line")

			if tc.exp != "" && !strings.Contains(buf.String(), tc.exp) {
				t.Errorf("exp %q in %q", tc.exp, buf.String())
			}
			if tc.absent != "" && strings.Contains(buf.String(), tc.absent) {
				t.Errorf("unexp %q in %q", tc.absent, buf.String())
			}
		})
	}

	if _, err := newLogger(&bytes.Buffer{}, "loud", false, false); err == nil {
		t.Error("exp error for unknown level")
	}
}

func TestNewSyncer(t *testing.T) {
	cfg, err := config.Parse(func(key string) (string, bool) {
		env := map[string]string{
			"PHOTOSYNC_TENANT_ID":          "contoso.onmicrosoft.com",
			"PHOTOSYNC_CLIENT_ID":          "app-id",
			"PHOTOSYNC_CLIENT_SECRET":      "s3cret",
			"PHOTOSYNC_SHAREPOINT_TENANT":  "contoso",
			"PHOTOSYNC_RPS":                "5",
			"PHOTOSYNC_IGNORE_RETRY_AFTER": "true",
		}
		v, ok := env[key]
		return v, ok
	})
	if err != nil {
		t.Fatalf("parsing config: %v", err)
	}

	logger, err := newLogger(&bytes.Buffer{}, cfg.LogLevel, false, false)
	if err != nil {
		t.Fatal(err)
	}

	s, err := newSyncer(cfg, logger)
	if err != nil {
		t.Fatalf("exp nil err, got: %v", err)
	}
	if s == nil {
		t.Fatal("exp syncer")
	}
}

func TestStartTracing_ExportsClientSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	path := filepath.Join(t.TempDir(), "spans.json")

	shutdown, err := startTracing(path)
	if err != nil {
		t.Fatalf("starting tracing: %v", err)
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c, err := client.Build(client.WithTracer(otel.Tracer(serviceName)))
	if err != nil {
		t.Fatal(err)
	}

	u, err := url.Parse(ts.URL + "/_api/web")
	if err != nil {
		t.Fatal(err)
	}
	req, err := client.Request(t.Context(), u, http.MethodGet)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Do(req, http.StatusOK); err != nil {
		t.Fatalf("exp nil err, got: %v", err)
	}

	if err := shutdown(t.Context()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	spans, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(spans), `"Name":"client.send"`) {
		t.Errorf("exp client.send span in %s", spans)
	}
}

func TestStartTracing_BadPath(t *testing.T) {
	if _, err := startTracing(filepath.Join(t.TempDir(), "missing", "spans.json")); err == nil {
		t.Error("exp error for unwritable trace file")
	}
}
