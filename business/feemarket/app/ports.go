// Package app contains application services and port definitions for the fee market context.
package app

import (
	"context"
	"math/big"

	"github.com/fd1az/chainstream/business/feemarket/domain"
)

// HeadState is the fee state of a chain head.
type HeadState struct {
	Number uint64
	State  domain.State
}

// FeeOracle defines the interface for live fee inputs.
type FeeOracle interface {
	// HeadState returns the fee fields of the latest block.
	HeadState(ctx context.Context) (HeadState, error)

	// SuggestTipCap returns the node's suggested priority fee.
	SuggestTipCap(ctx context.Context) (*big.Int, error)
}
