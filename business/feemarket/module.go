// Package feemarket implements the fee market bounded context: EIP-1559 and
// EIP-4844 fee rules plus an estimator fed by the connected node.
package feemarket

import (
	"context"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/fd1az/chainstream/business/feemarket/app"
	feemarketDI "github.com/fd1az/chainstream/business/feemarket/di"
	"github.com/fd1az/chainstream/business/feemarket/domain"
	"github.com/fd1az/chainstream/business/feemarket/infra/ethereum"
	"github.com/fd1az/chainstream/internal/config"
	"github.com/fd1az/chainstream/internal/di"
	"github.com/fd1az/chainstream/internal/logger"
	"github.com/fd1az/chainstream/internal/monolith"
)

// Module implements the feemarket bounded context.
type Module struct{}

// RegisterServices registers all feemarket services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register FeeOracle (private - internal dependency)
	di.RegisterToken(c, feemarketDI.FeeOracle, func(sr di.ServiceRegistry) app.FeeOracle {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		client := sr.Get("ethClient").(*ethclient.Client)

		oracleCfg := ethereum.DefaultFeeOracleConfig()
		oracleCfg.CacheTTL = cfg.FeeMarket.CacheTTL
		oracleCfg.MaxTipCap = cfg.FeeMarket.MaxTipCapWei()

		oracle, err := ethereum.NewFeeOracle(oracleCfg, client, log)
		if err != nil {
			panic("failed to create fee oracle: " + err.Error())
		}
		return oracle
	})

	// Register Estimator (public - exposed to other modules)
	di.RegisterToken(c, feemarketDI.Estimator, func(sr di.ServiceRegistry) *app.Estimator {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		params, err := domain.ParamsForFork(cfg.FeeMarket.Fork)
		if err != nil {
			panic("invalid fee market fork: " + err.Error())
		}
		return app.NewEstimator(params, feemarketDI.GetFeeOracle(sr), log)
	})

	return nil
}

// Startup initializes the feemarket module.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()

	est := feemarketDI.GetEstimator(mono.Services())
	p := est.Params()

	log.Info(ctx, "feemarket module started",
		"fork", p.Fork,
		"target_blobs", p.TargetBlobsPerBlock,
		"max_blobs", p.MaxBlobsPerBlock,
	)
	return nil
}
