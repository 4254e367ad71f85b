package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/adamwoolhether/photosync"
	"github.com/adamwoolhether/photosync/client"
	"github.com/adamwoolhether/photosync/config"
	"github.com/adamwoolhether/photosync/imgsync"
)

// app carries what the subcommands share once the root has loaded config.
type app struct {
	envFile string
	json    bool
	verbose bool

	logger   *slog.Logger
	syncer   *imgsync.Syncer
	shutdown func(context.Context) error
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:     "photosync",
		Short:   "Copy Entra ID user photos into SharePoint Online profiles",
		Version: version,
		Long: `photosync fills in missing SharePoint Online profile pictures with the
user's photo from Microsoft Entra ID.

Settings are read from PHOTOSYNC_* environment variables, optionally
loaded from a .env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.ErrOrStderr())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.close(cmd.Context())
		},
	}

	root.PersistentFlags().StringVar(&a.envFile, "env-file", "", "dotenv file to load (default .env when present)")
	root.PersistentFlags().BoolVar(&a.json, "json", false, "write logs as JSON")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newSyncCmd(a), newExportCmd(a))

	return root
}

func (a *app) init(logOut io.Writer) error {
	cfg, err := config.Load(a.envFile)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	a.logger, err = newLogger(logOut, cfg.LogLevel, a.json, a.verbose)
	if err != nil {
		return err
	}

	if cfg.TraceFile != "" {
		a.shutdown, err = startTracing(cfg.TraceFile)
		if err != nil {
			return err
		}
		a.logger.Debug("tracing enabled", "file", cfg.TraceFile)
	}

	a.syncer, err = newSyncer(cfg, a.logger)
	if err != nil {
		return err
	}

	return nil
}

// close flushes any spans still held by the tracer provider.
func (a *app) close(ctx context.Context) error {
	if a.shutdown == nil {
		return nil
	}

	if err := a.shutdown(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("tracing shutdown: %w", err)
	}

	return nil
}

func newLogger(w io.Writer, level string, asJSON, verbose bool) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	if verbose {
		lvl = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if asJSON {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}

	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// newSyncer builds one client per host so that tokens and throttle state
// are never shared between Graph, the admin site and the my-site.
func newSyncer(cfg config.Config, logger *slog.Logger) (*imgsync.Syncer, error) {
	cert, err := cfg.Certificate()
	if err != nil {
		return nil, err
	}

	tracer := otel.Tracer("github.com/adamwoolhether/photosync")

	build := func(host string) (*client.Client, error) {
		opts := []client.Option{
			client.WithCredentials(cfg.Credentials(host, cert)),
			client.WithLogger(logger.With("host", host)),
			client.WithTracer(tracer),
			client.WithTimeout(cfg.Timeout),
			client.WithUserAgent(cfg.UserAgent),
			client.WithMaxAttempts(cfg.MaxAttempts),
			client.WithFallbackDelay(cfg.FallbackDelay),
		}
		if cfg.IgnoreRetry {
			opts = append(opts, client.WithIgnoreRetryHeader())
		}
		if cfg.RPS > 0 {
			opts = append(opts, client.WithThrottle(cfg.RPS, cfg.Burst))
		}

		c, err := photosync.NewClient(opts...)
		if err != nil {
			return nil, fmt.Errorf("client for %s: %w", host, err)
		}
		return c, nil
	}

	graphClient, err := build(cfg.GraphHost)
	if err != nil {
		return nil, err
	}
	adminClient, err := build(cfg.AdminHost())
	if err != nil {
		return nil, err
	}
	mySiteClient, err := build(cfg.MySiteHost())
	if err != nil {
		return nil, err
	}

	graph, err := imgsync.NewGraph(graphClient, "https://"+cfg.GraphHost+"/v1.0")
	if err != nil {
		return nil, err
	}
	admin, err := imgsync.NewSite(adminClient, "https://"+cfg.AdminHost())
	if err != nil {
		return nil, err
	}
	mySite, err := imgsync.NewSite(mySiteClient, "https://"+cfg.MySiteHost())
	if err != nil {
		return nil, err
	}

	return imgsync.NewSyncer(graph, admin, mySite, imgsync.WithLogger(logger))
}

var errSyncFailed = errors.New("sync failed")
