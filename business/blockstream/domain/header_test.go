package domain

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestHeader_Validate(t *testing.T) {
	good := Header{Number: 10, Hash: hashOf(10, 0), ParentHash: hashOf(9, 0), GasLimit: 100, GasUsed: 50, BaseFee: big.NewInt(7)}

	tests := []struct {
		name        string
		mutate      func(h *Header)
		requireFees bool
		wantErr     bool
	}{
		{name: "valid", mutate: func(*Header) {}},
		{name: "valid_without_fees", mutate: func(h *Header) { h.BaseFee = nil }},
		{name: "genesis_zero_parent", mutate: func(h *Header) { h.Number = 0; h.ParentHash = common.Hash{} }},
		{name: "zero_hash", mutate: func(h *Header) { h.Hash = common.Hash{} }, wantErr: true},
		{name: "zero_parent", mutate: func(h *Header) { h.ParentHash = common.Hash{} }, wantErr: true},
		{name: "self_parent", mutate: func(h *Header) { h.ParentHash = h.Hash }, wantErr: true},
		{name: "gas_over_limit", mutate: func(h *Header) { h.GasUsed = 101 }, wantErr: true},
		{name: "missing_base_fee", mutate: func(h *Header) { h.BaseFee = nil }, requireFees: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := good
			tt.mutate(&h)
			err := h.Validate(tt.requireFees)
			if tt.wantErr != (err != nil) {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrMalformedHeader) {
				t.Errorf("err = %v, want ErrMalformedHeader", err)
			}
		})
	}
}

func TestHeader_FeeState(t *testing.T) {
	blobs := uint64(2 << 17)
	excess := uint64(1 << 20)
	h := Header{GasUsed: 15_000_000, GasLimit: 30_000_000, BaseFee: big.NewInt(1_000_000_000), BlobGasUsed: &blobs, ExcessBlobGas: &excess}

	s, err := h.FeeState()
	if err != nil {
		t.Fatalf("FeeState: %v", err)
	}
	if s.BlobGasUsed != blobs || s.ExcessBlobGas != excess || s.BaseFeeBig().Int64() != 1_000_000_000 {
		t.Errorf("state = %+v", s)
	}

	h.BaseFee = nil
	if _, err := h.FeeState(); err == nil {
		t.Error("expected error for pre-London header")
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(NewTransportError("latest", errors.New("eof"))) {
		t.Error("transport error should be transient")
	}
	if IsTransient(ErrNotFound) || IsTransient(ErrMalformedHeader) {
		t.Error("sentinels should not be transient")
	}
}
