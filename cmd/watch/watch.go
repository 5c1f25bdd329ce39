package watch

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mongoconn/internal/common"
	"mongoconn/internal/connection"
	"mongoconn/internal/flags"
	"mongoconn/internal/logging"
	"mongoconn/internal/metrics"
)

// WatchCmd represents the watch command.
var WatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Connect and keep health-checking the topology",
	Long: `Connect to the database, expose Prometheus metrics and ping every node of
the topology periodically until interrupted.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := flags.LoadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		cfg.MetricsAddr = addr
	}
	if interval, _ := cmd.Flags().GetDuration("interval"); interval > 0 {
		cfg.HealthInterval = interval
	}
	if cfg.Database == "" {
		return &common.ConfigError{Op: "validate", Reason: "database name is required (--db or 'database' in config)"}
	}
	if cfg.HealthInterval <= 0 {
		return &common.ConfigError{Op: "validate", Reason: "health interval must be greater than 0"}
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	opts, err := flags.ConnectOptions(cmd, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.NewMetrics()
	manager := connection.NewManagerFromConfig(cfg,
		connection.WithLogger(logger),
		connection.WithMetrics(m),
	)
	defer func() {
		if err := manager.Close(context.Background()); err != nil {
			logger.Warn("failed to close connection", zap.Error(err))
		}
	}()

	if _, err := manager.Connect(ctx, cfg.Database, opts...); err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	logger.Info("watching topology",
		zap.String("metrics_addr", cfg.MetricsAddr),
		zap.Duration("interval", cfg.HealthInterval),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.StartMetricsServer(gctx, cfg.MetricsAddr)
	})
	g.Go(func() error {
		manager.Watch(gctx, cfg.HealthInterval)
		return nil
	})
	return g.Wait()
}

func init() {
	flags.AddConnectionFlags(WatchCmd)
	WatchCmd.Flags().String("metrics-addr", "", "Address to expose Prometheus metrics on (default from config, :9090).")
	WatchCmd.Flags().Duration("interval", 0, "Health check interval (default from config, 30s).")
}
