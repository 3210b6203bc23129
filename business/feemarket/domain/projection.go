package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Projection is the expected fee state of a future block.
type Projection struct {
	Offset      int // blocks after the current one
	BaseFee     *big.Int
	BlobBaseFee *big.Int
}

// ProjectBaseFees applies NextState blocks times assuming every block uses
// gasUsed gas and blobGasUsed blob gas.
func ProjectBaseFees(p Params, s State, blocks int, gasUsed, blobGasUsed uint64) ([]Projection, error) {
	out := make([]Projection, 0, blocks)

	cur := s
	for i := 1; i <= blocks; i++ {
		next, err := NextState(p, cur)
		if err != nil {
			return nil, err
		}

		out = append(out, Projection{
			Offset:      i,
			BaseFee:     next.BaseFeeBig(),
			BlobBaseFee: next.BlobBaseFee(p),
		})

		cur = next.WithUsage(gasUsed, blobGasUsed)
	}

	return out, nil
}

// WeiToGwei converts a wei amount to gwei without losing precision.
func WeiToGwei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -9)
}

// FormatGwei renders a wei amount as gwei with the given decimal places.
func FormatGwei(wei *big.Int, places int32) string {
	return WeiToGwei(wei).StringFixed(places)
}
