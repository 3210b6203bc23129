package domain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// ErrInvalidState is returned for states that violate the fee market
// preconditions. It signals an upstream bug; values are never clamped.
var ErrInvalidState = errors.New("invalid fee market state")

// maxBaseFeeBits bounds BaseFee to a 128-bit unsigned integer.
const maxBaseFeeBits = 128

// State is an immutable snapshot of a block's fee market fields.
type State struct {
	GasUsed       uint64
	GasLimit      uint64
	BaseFee       uint256.Int // wei
	BlobGasUsed   uint64
	ExcessBlobGas uint64
}

// NewState builds a State from header-style values. A nil baseFee is an error.
func NewState(gasUsed, gasLimit uint64, baseFee *big.Int, blobGasUsed, excessBlobGas uint64) (State, error) {
	if baseFee == nil {
		return State{}, fmt.Errorf("%w: base fee is missing", ErrInvalidState)
	}
	if baseFee.Sign() < 0 {
		return State{}, fmt.Errorf("%w: base fee %s is negative", ErrInvalidState, baseFee)
	}

	fee, overflow := uint256.FromBig(baseFee)
	if overflow {
		return State{}, fmt.Errorf("%w: base fee %s overflows 256 bits", ErrInvalidState, baseFee)
	}

	s := State{
		GasUsed:       gasUsed,
		GasLimit:      gasLimit,
		BaseFee:       *fee,
		BlobGasUsed:   blobGasUsed,
		ExcessBlobGas: excessBlobGas,
	}
	return s, nil
}

// BaseFeeBig returns a copy of the base fee as a big.Int.
func (s State) BaseFeeBig() *big.Int {
	return s.BaseFee.ToBig()
}

// GasTarget returns the gas target for the state's gas limit.
func (s State) GasTarget() uint64 {
	return GasTarget(s.GasLimit)
}

// WithUsage returns a copy of s with the given gas and blob gas usage.
func (s State) WithUsage(gasUsed, blobGasUsed uint64) State {
	s.GasUsed = gasUsed
	s.BlobGasUsed = blobGasUsed
	return s
}

// BlobBaseFee returns the blob base fee implied by the state's excess blob gas.
func (s State) BlobBaseFee(p Params) *big.Int {
	return BlobBaseFee(p, s.ExcessBlobGas)
}

// Validate checks the preconditions of NextState.
func (s State) Validate(p Params) error {
	if s.GasUsed > s.GasLimit {
		return fmt.Errorf("%w: gas used %d exceeds gas limit %d", ErrInvalidState, s.GasUsed, s.GasLimit)
	}
	if s.BaseFee.BitLen() > maxBaseFeeBits {
		return fmt.Errorf("%w: base fee %s exceeds 128 bits", ErrInvalidState, s.BaseFee.Dec())
	}
	if s.BaseFee.Lt(uint256.NewInt(MinBaseFee)) {
		return fmt.Errorf("%w: base fee %s is below the minimum %d", ErrInvalidState, s.BaseFee.Dec(), MinBaseFee)
	}
	if s.BlobGasUsed > p.MaxBlobGas() {
		return fmt.Errorf("%w: blob gas used %d exceeds max %d", ErrInvalidState, s.BlobGasUsed, p.MaxBlobGas())
	}
	if s.BlobGasUsed%BlobGasPerBlob != 0 {
		return fmt.Errorf("%w: blob gas used %d is not a multiple of %d", ErrInvalidState, s.BlobGasUsed, BlobGasPerBlob)
	}
	return nil
}

// GasTarget returns gasLimit / ElasticityMultiplier, never less than 1.
func GasTarget(gasLimit uint64) uint64 {
	target := gasLimit / ElasticityMultiplier
	if target == 0 {
		return 1
	}
	return target
}

// NextState computes the starting fee state of the block following s.
// The returned state carries the next base fee and excess blob gas, keeps
// the gas limit, and has zero usage.
func NextState(p Params, s State) (State, error) {
	if err := s.Validate(p); err != nil {
		return State{}, err
	}

	next := State{
		GasLimit:      s.GasLimit,
		BaseFee:       nextBaseFee(&s.BaseFee, s.GasUsed, GasTarget(s.GasLimit)),
		ExcessBlobGas: NextExcessBlobGas(p, s.ExcessBlobGas, s.BlobGasUsed),
	}

	if next.BaseFee.BitLen() > maxBaseFeeBits {
		return State{}, fmt.Errorf("%w: next base fee %s exceeds 128 bits", ErrInvalidState, next.BaseFee.Dec())
	}

	return next, nil
}

// ForkBlockBaseFee returns the base fee of the first EIP-1559 block, derived
// from InitialBaseFee and the parent's gas usage. A parent with no recorded
// usage leaves InitialBaseFee unchanged.
func ForkBlockBaseFee(parentGasUsed, parentGasLimit uint64) *big.Int {
	initial := uint256.NewInt(InitialBaseFee)
	if parentGasUsed == 0 {
		return initial.ToBig()
	}
	fee := nextBaseFee(initial, parentGasUsed, GasTarget(parentGasLimit))
	return fee.ToBig()
}

// NextBaseFee is NextState reduced to the base fee.
func NextBaseFee(p Params, s State) (*big.Int, error) {
	next, err := NextState(p, s)
	if err != nil {
		return nil, err
	}
	return next.BaseFeeBig(), nil
}

func nextBaseFee(baseFee *uint256.Int, gasUsed, gasTarget uint64) uint256.Int {
	var out uint256.Int

	switch {
	case gasUsed == gasTarget:
		out.Set(baseFee)

	case gasUsed > gasTarget:
		delta := feeDelta(baseFee, gasUsed-gasTarget, gasTarget)
		if delta.IsZero() {
			delta.SetOne()
		}
		out.Add(baseFee, delta)

	default:
		delta := feeDelta(baseFee, gasTarget-gasUsed, gasTarget)
		floor := uint256.NewInt(MinBaseFee)
		if baseFee.Cmp(delta) <= 0 {
			out.Set(floor)
			break
		}
		out.Sub(baseFee, delta)
		if out.Lt(floor) {
			out.Set(floor)
		}
	}

	return out
}

// feeDelta computes baseFee * gasDelta / gasTarget / BaseFeeMaxChangeDenominator.
// baseFee is at most 128 bits and gasDelta 64, so the product fits in 256.
func feeDelta(baseFee *uint256.Int, gasDelta, gasTarget uint64) *uint256.Int {
	d := new(uint256.Int).Mul(baseFee, uint256.NewInt(gasDelta))
	d.Div(d, uint256.NewInt(gasTarget))
	return d.Div(d, uint256.NewInt(BaseFeeMaxChangeDenominator))
}
