package domain

import (
	"math"
	"math/big"
	"math/bits"
)

// NextExcessBlobGas returns max(0, excess + used - target), saturating
// instead of wrapping.
func NextExcessBlobGas(p Params, excessBlobGas, blobGasUsed uint64) uint64 {
	target := p.TargetBlobGas()

	sum, carry := bits.Add64(excessBlobGas, blobGasUsed, 0)
	if carry != 0 {
		// The true sum is 2^64 + sum; it only fits if target pulls it back.
		if sum >= target {
			return math.MaxUint64
		}
		return sum - target
	}

	if sum < target {
		return 0
	}
	return sum - target
}

// BlobBaseFee returns the blob base fee for the given excess blob gas.
func BlobBaseFee(p Params, excessBlobGas uint64) *big.Int {
	return fakeExponential(
		big.NewInt(MinBlobBaseFee),
		new(big.Int).SetUint64(excessBlobGas),
		new(big.Int).SetUint64(p.UpdateFraction),
	)
}

// fakeExponential approximates factor * e ** (numerator / denominator) using
// Taylor expansion, iterating until the next term is zero.
func fakeExponential(factor, numerator, denominator *big.Int) *big.Int {
	var (
		output = new(big.Int)
		accum  = new(big.Int).Mul(factor, denominator)
		div    = new(big.Int)
	)
	for i := int64(1); accum.Sign() > 0; i++ {
		output.Add(output, accum)

		accum.Mul(accum, numerator)
		div.Mul(denominator, big.NewInt(i))
		accum.Div(accum, div)
	}
	return output.Div(output, denominator)
}

// BlobGasForBlobs returns the blob gas consumed by n blobs.
func BlobGasForBlobs(n uint64) uint64 {
	return n * BlobGasPerBlob
}

// EstimateBlobCount returns how many blobs are needed to carry dataLen bytes.
func EstimateBlobCount(dataLen uint64) uint64 {
	if dataLen == 0 {
		return 0
	}
	return (dataLen + UsableBytesPerBlob - 1) / UsableBytesPerBlob
}

// BlobTxFee returns the blob fee paid by a transaction carrying blobs at the
// state's blob base fee.
func BlobTxFee(p Params, s State, blobs uint64) *big.Int {
	gas := new(big.Int).SetUint64(BlobGasForBlobs(blobs))
	return gas.Mul(gas, s.BlobBaseFee(p))
}
