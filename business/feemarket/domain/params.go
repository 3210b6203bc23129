// Package domain contains the EIP-1559 and EIP-4844 fee market rules.
package domain

import (
	"fmt"
	"strings"
)

// EIP-1559 constants.
const (
	ElasticityMultiplier        = 2
	BaseFeeMaxChangeDenominator = 8
	MinBaseFee                  = 7

	// InitialBaseFee is the base fee of the parent of the fork block, in wei.
	InitialBaseFee = 1_000_000_000
)

// EIP-4844 constants.
const (
	BlobGasPerBlob = 1 << 17
	MinBlobBaseFee = 1

	// FieldElementsPerBlob * 31 usable bytes, minus the 4-byte length prefix.
	UsableBytesPerBlob = 4096*31 - 4
)

// Params holds the fork-dependent blob gas parameters.
type Params struct {
	Fork                string
	TargetBlobsPerBlock uint64
	MaxBlobsPerBlock    uint64
	UpdateFraction      uint64
}

// TargetBlobGas returns the blob gas a block is expected to use.
func (p Params) TargetBlobGas() uint64 {
	return p.TargetBlobsPerBlock * BlobGasPerBlob
}

// MaxBlobGas returns the blob gas ceiling per block.
func (p Params) MaxBlobGas() uint64 {
	return p.MaxBlobsPerBlock * BlobGasPerBlob
}

// Cancun returns the blob schedule activated with EIP-4844.
func Cancun() Params {
	return Params{
		Fork:                "cancun",
		TargetBlobsPerBlock: 3,
		MaxBlobsPerBlock:    6,
		UpdateFraction:      3338477,
	}
}

// Prague returns the blob schedule raised by EIP-7691.
func Prague() Params {
	return Params{
		Fork:                "prague",
		TargetBlobsPerBlock: 6,
		MaxBlobsPerBlock:    9,
		UpdateFraction:      5376681,
	}
}

// DefaultParams returns the Cancun schedule.
func DefaultParams() Params {
	return Cancun()
}

// ParamsForFork looks a schedule up by fork name.
func ParamsForFork(fork string) (Params, error) {
	switch strings.ToLower(fork) {
	case "", "cancun":
		return Cancun(), nil
	case "prague":
		return Prague(), nil
	default:
		return Params{}, fmt.Errorf("unknown fork %q", fork)
	}
}
