// Package blockstream implements the block stream bounded context: head
// following, reorg detection and historical backfill over an Ethereum node.
package blockstream

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/fd1az/chainstream/business/blockstream/app"
	blockstreamDI "github.com/fd1az/chainstream/business/blockstream/di"
	"github.com/fd1az/chainstream/business/blockstream/infra/ethereum"
	"github.com/fd1az/chainstream/business/blockstream/infra/reporter"
	feemarket "github.com/fd1az/chainstream/business/feemarket/domain"
	"github.com/fd1az/chainstream/internal/config"
	"github.com/fd1az/chainstream/internal/di"
	"github.com/fd1az/chainstream/internal/health"
	"github.com/fd1az/chainstream/internal/logger"
	"github.com/fd1az/chainstream/internal/monolith"
	"github.com/fd1az/chainstream/internal/wsconn"
)

// Module implements the blockstream bounded context.
type Module struct{}

// RegisterServices registers all blockstream services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register Source (public - the fee commands read headers through it too)
	di.RegisterToken(c, blockstreamDI.Source, func(sr di.ServiceRegistry) app.BlockSource {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		client := sr.Get("rpcClient").(*rpc.Client)

		srcCfg := ethereum.DefaultRPCSourceConfig()
		srcCfg.RequestsPerSecond = cfg.Ethereum.RequestsPerSecond
		srcCfg.Burst = cfg.Ethereum.Burst

		src, err := ethereum.NewRPCSource(srcCfg, client, log)
		if err != nil {
			panic("failed to create rpc source: " + err.Error())
		}
		return src
	})

	// Register Reporter (private - renders events for the TUI or the console)
	di.RegisterToken(c, blockstreamDI.Reporter, func(sr di.ServiceRegistry) app.Handler {
		cfg := sr.Get("config").(*config.Config)

		params := mustParams(cfg)
		if cfg.App.TUIMode {
			return reporter.NewTUIReporter(params)
		}
		return reporter.NewConsoleReporter(params)
	})

	// Register Handler (private - fans events out to the reporter and the log)
	di.RegisterToken(c, blockstreamDI.Handler, func(sr di.ServiceRegistry) app.Handler {
		log := sr.Get("logger").(logger.LoggerInterface)
		return app.MultiHandler{blockstreamDI.GetReporter(sr), reporter.NewLogReporter(log)}
	})

	// Register Stream (public)
	di.RegisterToken(c, blockstreamDI.Stream, func(sr di.ServiceRegistry) *app.Stream {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		var opts []app.Option
		if cfg.Stream.UseHeadNotifier {
			wsCfg := wsconn.DefaultConfig(cfg.Ethereum.WebSocketURL, "eth-newheads")
			opts = append(opts, app.WithHeadNotifier(ethereum.NewHeadNotifier(wsCfg, log)))
		}

		s, err := app.NewStream(StreamConfig(cfg), blockstreamDI.GetSource(sr), blockstreamDI.GetHandler(sr), log, opts...)
		if err != nil {
			panic("failed to create stream: " + err.Error())
		}
		return s
	})

	// Register Backfiller (public)
	di.RegisterToken(c, blockstreamDI.Backfiller, func(sr di.ServiceRegistry) *app.Backfiller {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		b, err := app.NewBackfiller(BackfillConfig(cfg), blockstreamDI.GetSource(sr), blockstreamDI.GetHandler(sr), log)
		if err != nil {
			panic("failed to create backfiller: " + err.Error())
		}
		return b
	})

	return nil
}

// Startup initializes the blockstream module.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	cfg := mono.Config()

	// Fail fast on an unreachable node instead of inside the first poll.
	head, err := blockstreamDI.GetSource(mono.Services()).LatestHeader(ctx)
	if err != nil {
		return fmt.Errorf("fetch chain head: %w", err)
	}

	log.Info(ctx, "blockstream module started",
		"head", head.Number,
		"max_reorg_depth", cfg.Stream.MaxReorgDepth,
		"window_capacity", cfg.Stream.WindowCapacity,
		"head_notifier", cfg.Stream.UseHeadNotifier,
	)
	return nil
}

// StreamConfig maps the stream section of cfg onto app.Config.
func StreamConfig(cfg *config.Config) app.Config {
	return app.Config{
		PollingInterval:  cfg.Stream.PollingInterval,
		MaxReorgDepth:    cfg.Stream.MaxReorgDepth,
		RetryCount:       cfg.Stream.RetryCount,
		RetryDelay:       cfg.Stream.RetryDelay,
		MaxRetryDelay:    cfg.Stream.MaxRetryDelay,
		FetchTimeout:     cfg.Stream.FetchTimeout,
		WindowCapacity:   cfg.Stream.WindowCapacity,
		RequireFeeFields: true,
	}
}

// BackfillConfig maps the backfill section of cfg onto app.BackfillConfig.
// Retry settings are shared with the stream.
func BackfillConfig(cfg *config.Config) app.BackfillConfig {
	b := app.DefaultBackfillConfig()
	b.ChunkSize = cfg.Backfill.ChunkSize
	b.MinChunkSize = cfg.Backfill.MinChunkSize
	b.Concurrency = cfg.Backfill.Concurrency
	b.RetryCount = cfg.Stream.RetryCount
	b.RetryDelay = cfg.Stream.RetryDelay
	b.MaxRetryDelay = cfg.Stream.MaxRetryDelay
	return b
}

// HealthCheck reports a stream as healthy while it is watching the chain.
func HealthCheck(s *app.Stream) health.CheckFunc {
	return func(context.Context) (bool, string) {
		state := s.State()
		msg := state.String()
		if id, ok := s.LastEmitted(); ok {
			msg = fmt.Sprintf("%s, last block %s", state, id)
		}
		return state == app.StateWatching, msg
	}
}

func mustParams(cfg *config.Config) feemarket.Params {
	params, err := feemarket.ParamsForFork(cfg.FeeMarket.Fork)
	if err != nil {
		panic("invalid fee market fork: " + err.Error())
	}
	return params
}
