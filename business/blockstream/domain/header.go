// Package domain contains the block stream model: headers, the chain
// window and the events delivered to handlers.
package domain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	feemarket "github.com/fd1az/chainstream/business/feemarket/domain"
)

// BlockID identifies a block by number and hash.
type BlockID struct {
	Number uint64
	Hash   common.Hash
}

func (id BlockID) String() string {
	return fmt.Sprintf("#%d (%s)", id.Number, id.Hash.TerminalString())
}

// Header is the subset of a block header the stream works with.
type Header struct {
	Number     uint64
	Hash       common.Hash
	ParentHash common.Hash
	Timestamp  time.Time
	GasLimit   uint64
	GasUsed    uint64
	BaseFee    *big.Int // nil before London

	BlobGasUsed   *uint64 // nil before Cancun
	ExcessBlobGas *uint64 // nil before Cancun
}

// ID returns the header's BlockID.
func (h Header) ID() BlockID {
	return BlockID{Number: h.Number, Hash: h.Hash}
}

// IsParentOf reports whether child directly extends h.
func (h Header) IsParentOf(child Header) bool {
	return child.ParentHash == h.Hash && child.Number == h.Number+1
}

// FeeState returns the header's fee market fields as a feemarket state.
func (h Header) FeeState() (feemarket.State, error) {
	var blobGasUsed, excess uint64
	if h.BlobGasUsed != nil {
		blobGasUsed = *h.BlobGasUsed
	}
	if h.ExcessBlobGas != nil {
		excess = *h.ExcessBlobGas
	}
	return feemarket.NewState(h.GasUsed, h.GasLimit, h.BaseFee, blobGasUsed, excess)
}

// Validate checks the structural fields every header must carry.
// requireFees additionally demands a London base fee.
func (h Header) Validate(requireFees bool) error {
	if h.Hash == (common.Hash{}) {
		return fmt.Errorf("%w: block %d has zero hash", ErrMalformedHeader, h.Number)
	}
	if h.Number > 0 && h.ParentHash == (common.Hash{}) {
		return fmt.Errorf("%w: block %d has zero parent hash", ErrMalformedHeader, h.Number)
	}
	if h.ParentHash == h.Hash {
		return fmt.Errorf("%w: block %d is its own parent", ErrMalformedHeader, h.Number)
	}
	if h.GasUsed > h.GasLimit {
		return fmt.Errorf("%w: block %d uses %d gas over limit %d", ErrMalformedHeader, h.Number, h.GasUsed, h.GasLimit)
	}
	if requireFees && h.BaseFee == nil {
		return fmt.Errorf("%w: block %d has no base fee", ErrMalformedHeader, h.Number)
	}
	return nil
}
