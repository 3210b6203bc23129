package app

import (
	"context"
	"math/big"

	"github.com/fd1az/chainstream/business/feemarket/domain"
	"github.com/fd1az/chainstream/internal/apperror"
	"github.com/fd1az/chainstream/internal/logger"
)

// Estimator turns head state into fee recommendations.
type Estimator struct {
	params domain.Params
	oracle FeeOracle
	log    logger.LoggerInterface

	// Tip used when the oracle cannot suggest one.
	fallbackTip *big.Int
}

// NewEstimator creates an Estimator for the given blob schedule.
func NewEstimator(p domain.Params, oracle FeeOracle, log logger.LoggerInterface) *Estimator {
	return &Estimator{
		params:      p,
		oracle:      oracle,
		log:         log,
		fallbackTip: big.NewInt(1_000_000_000),
	}
}

// Params returns the blob schedule in use.
func (e *Estimator) Params() domain.Params {
	return e.params
}

// Estimate builds a FeeEstimate from the latest head.
func (e *Estimator) Estimate(ctx context.Context) (*domain.FeeEstimate, error) {
	head, err := e.oracle.HeadState(ctx)
	if err != nil {
		return nil, err
	}

	tip, err := e.oracle.SuggestTipCap(ctx)
	if err != nil {
		e.log.Warn(ctx, "tip suggestion failed, using fallback", "error", err, "fallback_wei", e.fallbackTip.String())
		tip = e.fallbackTip
	}

	return e.EstimateFrom(head, tip)
}

// EstimateFrom builds a FeeEstimate from an already known head.
func (e *Estimator) EstimateFrom(head HeadState, tip *big.Int) (*domain.FeeEstimate, error) {
	est, err := domain.NewFeeEstimate(e.params, head.Number, head.State, tip)
	if err != nil {
		return nil, apperror.New(apperror.CodeFeeMarketInvalidState,
			apperror.WithCause(err),
			apperror.WithContextf("block %d", head.Number))
	}
	return est, nil
}

// Project projects base fees n blocks ahead assuming the head's usage repeats.
func (e *Estimator) Project(ctx context.Context, n int) ([]domain.Projection, error) {
	head, err := e.oracle.HeadState(ctx)
	if err != nil {
		return nil, err
	}

	out, err := domain.ProjectBaseFees(e.params, head.State, n, head.State.GasUsed, head.State.BlobGasUsed)
	if err != nil {
		return nil, apperror.New(apperror.CodeFeeMarketInvalidState,
			apperror.WithCause(err),
			apperror.WithContextf("block %d", head.Number))
	}
	return out, nil
}
