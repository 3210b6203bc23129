package app

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/fd1az/chainstream/business/feemarket/domain"
	"github.com/fd1az/chainstream/internal/apperror"
	"github.com/fd1az/chainstream/internal/logger"
)

type fakeOracle struct {
	head    HeadState
	headErr error
	tip     *big.Int
	tipErr  error
}

func (f *fakeOracle) HeadState(context.Context) (HeadState, error) {
	return f.head, f.headErr
}

func (f *fakeOracle) SuggestTipCap(context.Context) (*big.Int, error) {
	return f.tip, f.tipErr
}

func headAt(t *testing.T, gasUsed uint64, baseFee int64) HeadState {
	t.Helper()
	s, err := domain.NewState(gasUsed, 30_000_000, big.NewInt(baseFee), 0, 0)
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	return HeadState{Number: 100, State: s}
}

func TestEstimator_Estimate(t *testing.T) {
	oracle := &fakeOracle{
		head: headAt(t, 30_000_000, 1_000_000_000),
		tip:  big.NewInt(2_000_000_000),
	}
	est := NewEstimator(domain.Cancun(), oracle, logger.NewNop())

	got, err := est.Estimate(context.Background())
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}

	if got.BlockNumber != 100 {
		t.Errorf("BlockNumber = %d, want 100", got.BlockNumber)
	}
	if got.NextBaseFee.Cmp(big.NewInt(1_125_000_000)) != 0 {
		t.Errorf("NextBaseFee = %s, want 1125000000", got.NextBaseFee)
	}
	// 2 * 1.125 gwei + 2 gwei
	if got.MaxFee.Cmp(big.NewInt(4_250_000_000)) != 0 {
		t.Errorf("MaxFee = %s, want 4250000000", got.MaxFee)
	}
	if got.MaxFeeGwei().String() != "4.25" {
		t.Errorf("MaxFeeGwei = %s, want 4.25", got.MaxFeeGwei())
	}
	if got.TxCost(21_000).Cmp(big.NewInt(21_000*4_250_000_000)) != 0 {
		t.Errorf("TxCost = %s", got.TxCost(21_000))
	}
}

func TestEstimator_FallbackTip(t *testing.T) {
	oracle := &fakeOracle{
		head:   headAt(t, 15_000_000, 1_000_000_000),
		tipErr: errors.New("eth_maxPriorityFeePerGas unsupported"),
	}
	est := NewEstimator(domain.Cancun(), oracle, logger.NewNop())

	got, err := est.Estimate(context.Background())
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if got.TipCap.Cmp(big.NewInt(1_000_000_000)) != 0 {
		t.Errorf("TipCap = %s, want fallback 1 gwei", got.TipCap)
	}
}

func TestEstimator_InvalidHead(t *testing.T) {
	s := domain.State{GasUsed: 2, GasLimit: 1}
	oracle := &fakeOracle{head: HeadState{Number: 7, State: s}, tip: big.NewInt(1)}
	est := NewEstimator(domain.Cancun(), oracle, logger.NewNop())

	_, err := est.Estimate(context.Background())
	if !apperror.IsCode(err, apperror.CodeFeeMarketInvalidState) {
		t.Fatalf("err = %v, want CodeFeeMarketInvalidState", err)
	}
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Error("expected domain.ErrInvalidState in chain")
	}
}

func TestEstimator_Project(t *testing.T) {
	oracle := &fakeOracle{head: headAt(t, 0, 1_000_000_000), tip: big.NewInt(1)}
	est := NewEstimator(domain.Cancun(), oracle, logger.NewNop())

	got, err := est.Project(context.Background(), 2)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	want := []int64{875_000_000, 765_625_000}
	for i, w := range want {
		if got[i].BaseFee.Cmp(big.NewInt(w)) != 0 {
			t.Errorf("[%d] BaseFee = %s, want %d", i, got[i].BaseFee, w)
		}
	}
}
