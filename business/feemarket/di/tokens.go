// Package di contains dependency injection tokens for the feemarket context.
package di

import (
	"github.com/fd1az/chainstream/business/feemarket/app"
	"github.com/fd1az/chainstream/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Estimator = di.NewToken[*app.Estimator]("feemarket.Estimator")
)

// Private dependency tokens - internal to feemarket module
var (
	FeeOracle = di.NewToken[app.FeeOracle]("feemarket:feeOracle")
)

// Helper functions for type-safe access
func GetEstimator(c di.ServiceRegistry) *app.Estimator {
	return di.GetToken(c, Estimator)
}

func GetFeeOracle(c di.ServiceRegistry) app.FeeOracle {
	return di.GetToken(c, FeeOracle)
}
