package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gravitational/trace"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/pkmiec/passenger/internal/agent"
	"github.com/pkmiec/passenger/internal/config"
	"github.com/pkmiec/passenger/internal/hooks"
	"github.com/pkmiec/passenger/internal/metrics"
	"github.com/pkmiec/passenger/internal/pool"
	"github.com/pkmiec/passenger/internal/spawningkit"
)

func newServeCommand() *cobra.Command {
	var (
		configPath  string
		maxFlag     int
		maxIdleFlag time.Duration
		debug       bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, maxFlag, maxIdleFlag, debug)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to the agent configuration file")
	cmd.Flags().IntVar(&maxFlag, "max", 0, "Total process budget (overrides config file)")
	cmd.Flags().DurationVar(&maxIdleFlag, "max-idle-time", 0, "Idle process eviction threshold (overrides config file)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, maxFlag int, maxIdleFlag time.Duration, debug bool) error {
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return trace.Wrap(err)
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		return trace.Wrap(err)
	}
	// Flags beat environment beats file.
	if maxFlag > 0 {
		cfg.Pool.Max = maxFlag
	}
	if maxIdleFlag > 0 {
		cfg.Pool.MaxIdleTime = maxIdleFlag
	}

	logger.Info("Starting passenger agent",
		"version", version,
		"max", cfg.Pool.Max,
		"max_idle_time", cfg.Pool.MaxIdleTime,
		"listen_addr", cfg.ListenAddr,
		"grpc_addr", cfg.GRPCAddr,
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	gauges := metrics.NewPoolGauges(registry)

	p, err := pool.New(pool.Config{
		Pool:    cfg.Pool,
		Spawner: spawningkit.NewCommandSpawner(logger),
		Logger:  logger,
		Hooks:   hooks.NewRunner(logger, cfg.Hooks),
		Gauges:  gauges,
	})
	if err != nil {
		return trace.Wrap(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := agent.NewServer(cfg, p, logger, registry)
	serveErr := server.Serve(ctx)

	logger.Info("Shutting down pool")
	p.PrepareForShutdown()
	p.Destroy()
	return trace.Wrap(serveErr)
}
