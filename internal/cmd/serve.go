package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/blobfs/internal/metrics"
	"github.com/3leaps/blobfs/internal/observability"
	"github.com/3leaps/blobfs/internal/server"
	"github.com/3leaps/blobfs/internal/server/handlers"
	"github.com/3leaps/blobfs/pkg/listing"
	"github.com/3leaps/blobfs/pkg/provider"
	"github.com/3leaps/blobfs/pkg/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve listings and objects over HTTP",
	Long: `Start the HTTP server.

Endpoints:
  GET  /v1/list?path=&recursive=   JSONL directory listing
  GET  /v1/objects/{path}          file contents
  HEAD /v1/objects/{path}          file metadata
  GET  /health[/live|/ready|/startup]
  GET  /metrics                    Prometheus metrics
  GET  /version`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveHost string
	servePort int
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (default: server.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (default: server.port)")
}

// storageHealthChecker reports whether the backing container answers.
type storageHealthChecker struct {
	prov provider.Provider
}

func (c storageHealthChecker) CheckHealth(ctx context.Context) error {
	if c.prov == nil {
		return errors.New("storage provider not configured")
	}
	if hc, ok := c.prov.(provider.HealthChecker); ok {
		return hc.CheckHealth(ctx)
	}
	_, err := c.prov.List(ctx, provider.ListOptions{MaxKeys: 1})
	return err
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := currentConfig(ctx)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to load config", err)
	}
	if err := cfg.Validate(); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	observability.InitServerLogger(cfg.Logging.Level)
	log := observability.ServerLogger
	defer observability.Sync()

	host, port := cfg.Server.Host, cfg.Server.Port
	if serveHost != "" {
		host = serveHost
	}
	if cmd.Flags().Changed("port") {
		port = servePort
	}

	prov, err := openProvider(ctx, cfg)
	if err != nil {
		log.Error("Failed to create provider", zap.String("provider", cfg.Storage.Provider), zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to storage provider", err)
	}
	defer func() { _ = prov.Close() }()

	var m *metrics.Metrics
	adapterCfg := storage.Config{
		Listing: listing.Config{
			PageSize:  cfg.Listing.PageSize,
			RateLimit: cfg.Listing.RateLimit,
			Logger:    log,
		},
		Logger: log,
	}
	if cfg.Metrics.Enabled {
		m = metrics.New()
		adapterCfg.Listing.Observer = m
		adapterCfg.Observer = m
	}
	adapter := storage.New(prov, adapterCfg)

	if cfg.Health.Enabled {
		handlers.InitHealthManager(versionInfo.Version)
		handlers.GetHealthManager().RegisterChecker("storage", storageHealthChecker{prov: prov})
	}

	opts := []server.Option{
		server.WithAdapter(adapter, cfg.Storage.Provider),
		server.WithLogger(log),
		server.WithVersion(versionInfo.Version),
		server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout, cfg.Server.ShutdownTimeout),
	}
	if m != nil {
		opts = append(opts, server.WithMetrics(m, cfg.Metrics.Path))
	}
	srv := server.New(host, port, opts...)

	log.Info("Starting blobfs server",
		zap.String("addr", srv.Addr()),
		zap.String("provider", cfg.Storage.Provider),
		zap.String("container", containerName(cfg)),
		zap.String("version", versionInfo.Version),
	)
	if err := srv.Start(ctx); err != nil {
		log.Error("Server failed", zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Server failed", err)
	}
	if ctx.Err() != nil {
		log.Info("Server stopped", zap.String("reason", fmt.Sprint(context.Cause(ctx))))
	}
	return nil
}
