// Package main is the entry point for chainstream.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/fd1az/chainstream/business/blockstream"
	"github.com/fd1az/chainstream/business/feemarket"
	"github.com/fd1az/chainstream/internal/apm"
	"github.com/fd1az/chainstream/internal/config"
	"github.com/fd1az/chainstream/internal/health"
	"github.com/fd1az/chainstream/internal/logger"
	"github.com/fd1az/chainstream/internal/metrics"
	"github.com/fd1az/chainstream/internal/monolith"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "chainstream",
		Short:         "Follow an Ethereum chain head, detect reorgs and track the fee market",
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to configuration file")

	root.AddCommand(
		newWatchCmd(opts),
		newBackfillCmd(opts),
		newFeeCmd(opts),
	)
	return root
}

// application is the monolith plus its lifecycle methods.
type application interface {
	monolith.Monolith
	RegisterModules(modules ...monolith.Module) error
	StartModules(ctx context.Context, modules ...monolith.Module) error
	Close() error
}

// runtime is the process-wide infrastructure shared by every command.
type runtime struct {
	cfg     *config.Config
	log     *logger.Logger
	mono    application
	health  *health.Server
	tracer  apm.Tracer
	modules []monolith.Module

	closers []func()
}

// logOutput picks the log destination. A configured log file is rotated
// and is used in both modes; otherwise the CLI logs to stderr and the TUI
// discards logs so they do not corrupt the screen.
func logOutput(cfg config.AppConfig, tuiMode bool) (io.Writer, func()) {
	if cfg.LogFile != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSize,
			MaxBackups: cfg.LogBackups,
			Compress:   true,
		}
		return lj, func() { _ = lj.Close() }
	}
	if tuiMode {
		return io.Discard, func() {}
	}
	return os.Stderr, func() {}
}

// setup loads config and builds telemetry, the health server and the
// monolith with all modules registered.
func setup(ctx context.Context, opts *rootOptions, tuiMode bool) (_ *runtime, err error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Set TUI mode in config so modules know
	cfg.App.TUIMode = tuiMode

	out, closeLog := logOutput(cfg.App, tuiMode)
	log := logger.New(out, logger.ParseLevel(cfg.App.LogLevel), cfg.App.Name, nil)

	rt := &runtime{cfg: cfg, log: log, tracer: apm.NewTracer("chainstream")}
	rt.closers = append(rt.closers, closeLog)
	defer func() {
		if err != nil {
			rt.close()
		}
	}()

	if cfg.Telemetry.Enabled {
		if err := rt.startTelemetry(ctx); err != nil {
			return nil, err
		}
	}

	if cfg.Health.Port > 0 {
		rt.health = health.NewServer(cfg.Health.Port, version)
		if err := rt.health.Start(); err != nil {
			log.Warn(ctx, "failed to start health server", "error", err)
			rt.health = nil
		} else {
			log.Info(ctx, "health server started", "port", cfg.Health.Port)
			rt.closers = append(rt.closers, func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = rt.health.Stop(stopCtx)
			})
		}
	}

	// Create monolith (application container)
	mono, err := monolith.New(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create monolith: %w", err)
	}
	rt.mono = mono
	rt.closers = append(rt.closers, func() { _ = mono.Close() })

	// Define modules in dependency order
	rt.modules = []monolith.Module{
		&feemarket.Module{},
		&blockstream.Module{},
	}
	if err := mono.RegisterModules(rt.modules...); err != nil {
		return nil, fmt.Errorf("failed to register modules: %w", err)
	}

	return rt, nil
}

func (rt *runtime) startTelemetry(ctx context.Context) error {
	tel := rt.cfg.Telemetry

	tp, err := apm.NewTraceProvider(ctx, tel, rt.log)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	rt.closers = append(rt.closers, func() { _ = tp.Stop() })

	headers, err := apm.ParseHeaders(tel.OTLPHeaders)
	if err != nil {
		return fmt.Errorf("telemetry.otlp_headers: %w", err)
	}
	mp, err := metrics.NewMetricProvider(ctx, metrics.FromTelemetry(tel, headers)...)
	if err != nil {
		return fmt.Errorf("failed to init metrics: %w", err)
	}
	rt.closers = append(rt.closers, func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mp.Shutdown(stopCtx)
	})

	prom := metrics.NewPrometheusServer(metrics.WithPort(tel.PrometheusPort))
	if err := prom.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	rt.closers = append(rt.closers, func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = prom.Stop(stopCtx)
	})
	rt.log.Info(ctx, "prometheus metrics server started", "port", tel.PrometheusPort)

	return nil
}

// start runs Startup for the given modules, or all of them.
func (rt *runtime) start(ctx context.Context, modules ...monolith.Module) error {
	if len(modules) == 0 {
		modules = rt.modules
	}
	if err := rt.mono.StartModules(ctx, modules...); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}
	return nil
}

// close releases resources in reverse order of acquisition.
func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}
