package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// FeeEstimate is a fee recommendation for a transaction targeting the next block.
type FeeEstimate struct {
	BlockNumber     uint64 // head the estimate was derived from
	BaseFee         *big.Int
	NextBaseFee     *big.Int
	NextBlobBaseFee *big.Int
	TipCap          *big.Int
	MaxFee          *big.Int // 2 * NextBaseFee + TipCap
	Timestamp       time.Time
}

// NewFeeEstimate derives a recommendation from the head state and a tip.
func NewFeeEstimate(p Params, blockNumber uint64, head State, tip *big.Int) (*FeeEstimate, error) {
	next, err := NextState(p, head)
	if err != nil {
		return nil, err
	}

	nextBase := next.BaseFeeBig()
	maxFee := new(big.Int).Lsh(nextBase, 1)
	maxFee.Add(maxFee, tip)

	return &FeeEstimate{
		BlockNumber:     blockNumber,
		BaseFee:         head.BaseFeeBig(),
		NextBaseFee:     nextBase,
		NextBlobBaseFee: next.BlobBaseFee(p),
		TipCap:          new(big.Int).Set(tip),
		MaxFee:          maxFee,
		Timestamp:       time.Now(),
	}, nil
}

// NextBaseFeeGwei returns the next base fee in gwei.
func (e *FeeEstimate) NextBaseFeeGwei() decimal.Decimal {
	return WeiToGwei(e.NextBaseFee)
}

// MaxFeeGwei returns the suggested max fee in gwei.
func (e *FeeEstimate) MaxFeeGwei() decimal.Decimal {
	return WeiToGwei(e.MaxFee)
}

// TxCost returns the worst-case cost of a transaction using gasLimit gas.
func (e *FeeEstimate) TxCost(gasLimit uint64) *big.Int {
	return new(big.Int).Mul(e.MaxFee, new(big.Int).SetUint64(gasLimit))
}
