package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/brpsystems/applinks/internal/appinfo"
	"github.com/brpsystems/applinks/internal/config"
	"github.com/brpsystems/applinks/internal/logger"
	"github.com/brpsystems/applinks/internal/metrics"
	"github.com/brpsystems/applinks/internal/server"
	"github.com/brpsystems/applinks/internal/storage"
	"github.com/brpsystems/applinks/internal/visits"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// runtimeServer is the surface of server.Server that the commands need.
// Declared here so tests can substitute a stub via newRuntime.
type runtimeServer interface {
	Run(ctx context.Context) error
	Healthy(ctx context.Context) error
	Close()
}

// Seams for tests. Production always uses the defaults.
var (
	loadConfig       = config.Load
	registerMetrics  = metrics.Register
	newSignalContext = func(parent context.Context) (context.Context, context.CancelFunc) {
		return signal.NotifyContext(parent, syscall.SIGTERM, syscall.SIGINT)
	}
	newRuntime = func(cfg *config.Config) (runtimeServer, error) {
		store, err := openStore(cfg)
		if err != nil {
			return nil, err
		}
		apps := appinfo.NewClient(cfg.AppServiceURL)
		return server.New(cfg, store, apps, visits.NewLog(0)), nil
	}
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("fatal")
		os.Exit(1)
	}
}

// newRootCmd builds and returns the root cobra command. Extracted from main so
// that tests can invoke it directly without spawning a subprocess.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "applinks",
		Short: "Deferred deep-link attribution service",
		Long: `Serves provider landing pages and app-link verification files, and keeps
short-lived IP-keyed attribution records so a freshly installed app can pick
up the provider code from the page visit that led to the install.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServer,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Start the server (same as running without a subcommand)",
		RunE:  runServer,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "healthcheck",
		Short: "Check app-service connectivity (for Docker HEALTHCHECK)",
		RunE:  runHealthcheck,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "applinks %s (commit: %s, built: %s)\n", version, commit, date)
		},
	})

	return rootCmd
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	initLogging(cfg.LogLevel, cfg.LogFormat)

	registerMetrics()

	ctx, cancel := newSignalContext(context.Background())
	defer cancel()

	s, err := newRuntime(cfg)
	if err != nil {
		return fmt.Errorf("server init: %w", err)
	}
	defer s.Close()

	return s.Run(ctx)
}

func runHealthcheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	initLogging("error", cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.Healthy(ctx)
}

// openStore creates the configured record store backend.
func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.StorageBackend {
	case "bolt":
		return storage.Open(filepath.Join(cfg.DataDir, "records.db"), cfg.RecordTTL)
	default:
		return storage.NewMemStore(cfg.RecordTTL), nil
	}
}

func initLogging(level string, format string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	redacted := logger.NewRedactWriter(os.Stderr)
	if format == "text" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: redacted})
	} else {
		log.Logger = zerolog.New(redacted).With().Timestamp().Logger()
	}

	switch level {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
