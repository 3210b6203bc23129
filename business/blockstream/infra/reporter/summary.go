// Package reporter contains stream handlers that render events for humans.
package reporter

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/fd1az/chainstream/business/blockstream/domain"
	feemarket "github.com/fd1az/chainstream/business/feemarket/domain"
)

// blockSummary is a header's fee picture, ready for display.
type blockSummary struct {
	GasUsedPct  float64
	BaseFee     decimal.Decimal // gwei
	NextBaseFee decimal.Decimal // gwei
	NextBlobFee *big.Int        // wei
	HasFees     bool
}

// summarize derives the next block's fees from h. Pre-London headers come
// back with HasFees false.
func summarize(p feemarket.Params, h domain.Header) blockSummary {
	var s blockSummary
	if h.GasLimit > 0 {
		s.GasUsedPct = float64(h.GasUsed) * 100 / float64(h.GasLimit)
	}

	state, err := h.FeeState()
	if err != nil {
		return s
	}
	next, err := feemarket.NextState(p, state)
	if err != nil {
		return s
	}

	s.HasFees = true
	s.BaseFee = feemarket.WeiToGwei(h.BaseFee)
	s.NextBaseFee = feemarket.WeiToGwei(next.BaseFeeBig())
	s.NextBlobFee = next.BlobBaseFee(p)
	return s
}
