package domain

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrFeeCapTooLow is returned when a transaction's max fee is below the base fee.
var ErrFeeCapTooLow = errors.New("max fee per gas below base fee")

// EffectiveGasPrice is the price a dynamic-fee transaction pays per gas.
type EffectiveGasPrice struct {
	Price    *big.Int // baseFee + miner fee
	MinerFee *big.Int // part paid to the block producer
}

// NewEffectiveGasPrice computes min(maxFee, baseFee + min(tip, maxFee-baseFee)).
func NewEffectiveGasPrice(baseFee, maxFee, maxPriorityFee *big.Int) (EffectiveGasPrice, error) {
	if maxFee.Cmp(baseFee) < 0 {
		return EffectiveGasPrice{}, fmt.Errorf("%w: max fee %s, base fee %s", ErrFeeCapTooLow, maxFee, baseFee)
	}

	miner := PriorityFee(baseFee, maxFee, maxPriorityFee)
	return EffectiveGasPrice{
		Price:    new(big.Int).Add(baseFee, miner),
		MinerFee: miner,
	}, nil
}

// PriorityFee returns min(maxPriorityFee, maxFee-baseFee), or zero when the
// cap does not cover the base fee.
func PriorityFee(baseFee, maxFee, maxPriorityFee *big.Int) *big.Int {
	headroom := new(big.Int).Sub(maxFee, baseFee)
	if headroom.Sign() <= 0 {
		return new(big.Int)
	}
	if maxPriorityFee.Cmp(headroom) < 0 {
		return new(big.Int).Set(maxPriorityFee)
	}
	return headroom
}

// CanIncludeTx reports whether fee caps cover the fees of the block following s.
// A nil maxBlobFee means the transaction carries no blobs.
func CanIncludeTx(p Params, s State, maxFee, maxBlobFee *big.Int) (bool, error) {
	next, err := NextState(p, s)
	if err != nil {
		return false, err
	}

	if maxFee.Cmp(next.BaseFeeBig()) < 0 {
		return false, nil
	}
	if maxBlobFee != nil && maxBlobFee.Cmp(next.BlobBaseFee(p)) < 0 {
		return false, nil
	}
	return true, nil
}
