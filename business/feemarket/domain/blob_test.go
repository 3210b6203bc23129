package domain

import (
	"math"
	"math/big"
	"testing"
)

func TestFakeExponential(t *testing.T) {
	tests := []struct {
		factor, numerator, denominator int64
		want                           int64
	}{
		{1, 0, 1, 1},
		{38493, 0, 1000, 38493},
		{0, 1234, 2345, 0},
		{1, 2, 1, 6},
		{1, 4, 2, 6},
		{1, 3, 1, 16},
		{1, 6, 2, 18},
		{1, 4, 1, 49},
		{1, 8, 2, 50},
		{10, 8, 2, 542},
		{11, 8, 2, 596},
		{1, 5, 1, 136},
		{1, 5, 2, 11},
		{2, 5, 2, 23},
		{1, 50000000, 2225652, 5709098764},
	}

	for _, tt := range tests {
		got := fakeExponential(big.NewInt(tt.factor), big.NewInt(tt.numerator), big.NewInt(tt.denominator))
		if got.Cmp(big.NewInt(tt.want)) != 0 {
			t.Errorf("fakeExponential(%d, %d, %d) = %s, want %d",
				tt.factor, tt.numerator, tt.denominator, got, tt.want)
		}
	}
}

func TestBlobBaseFee(t *testing.T) {
	cancun := Cancun()

	tests := []struct {
		name   string
		excess uint64
		want   int64
	}{
		{name: "zero_excess", excess: 0, want: MinBlobBaseFee},
		{name: "one_target", excess: cancun.TargetBlobGas(), want: 1},
		{name: "update_fraction", excess: cancun.UpdateFraction, want: 2},
		{name: "ten_megagas", excess: 10 * (1 << 20), want: 23},
		{name: "ten_update_fractions", excess: 10 * cancun.UpdateFraction, want: 22026},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BlobBaseFee(cancun, tt.excess); got.Cmp(big.NewInt(tt.want)) != 0 {
				t.Errorf("BlobBaseFee(%d) = %s, want %d", tt.excess, got, tt.want)
			}
		})
	}
}

func TestBlobBaseFee_MonotonicInExcess(t *testing.T) {
	for _, p := range []Params{Cancun(), Prague()} {
		prev := BlobBaseFee(p, 0)
		for excess := uint64(0); excess <= 40*p.UpdateFraction; excess += p.UpdateFraction / 7 {
			cur := BlobBaseFee(p, excess)
			if cur.Cmp(prev) < 0 {
				t.Fatalf("%s: fee dropped at excess %d: %s < %s", p.Fork, excess, cur, prev)
			}
			prev = cur
		}
	}
}

func TestNextExcessBlobGas(t *testing.T) {
	cancun := Cancun()
	target := cancun.TargetBlobGas()

	tests := []struct {
		name         string
		excess, used uint64
		want         uint64
	}{
		{name: "below_target_saturates", excess: 0, used: BlobGasPerBlob, want: 0},
		{name: "exactly_target", excess: 0, used: target, want: 0},
		{name: "above_target", excess: 0, used: cancun.MaxBlobGas(), want: 3 * BlobGasPerBlob},
		{name: "drains_excess", excess: 2 * BlobGasPerBlob, used: 0, want: 0},
		{name: "accumulates", excess: 5 * BlobGasPerBlob, used: 4 * BlobGasPerBlob, want: 6 * BlobGasPerBlob},
		{name: "no_wrap_near_max", excess: math.MaxUint64 - 10, used: target, want: math.MaxUint64 - 10},
		{name: "saturates_at_max", excess: math.MaxUint64 - 10, used: 2 * target, want: math.MaxUint64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextExcessBlobGas(cancun, tt.excess, tt.used); got != tt.want {
				t.Errorf("NextExcessBlobGas(%d, %d) = %d, want %d", tt.excess, tt.used, got, tt.want)
			}
		})
	}
}

func TestNextState_BlobFee(t *testing.T) {
	p := Cancun()
	s := mustState(t, 15_000_000, 30_000_000, 1_000_000_000).WithUsage(15_000_000, p.MaxBlobGas())

	next, err := NextState(p, s)
	if err != nil {
		t.Fatalf("NextState: %v", err)
	}

	if next.ExcessBlobGas != 3*BlobGasPerBlob {
		t.Errorf("excess = %d, want %d", next.ExcessBlobGas, 3*BlobGasPerBlob)
	}
	if want := BlobBaseFee(p, next.ExcessBlobGas); next.BlobBaseFee(p).Cmp(want) != 0 {
		t.Errorf("blob base fee = %s, want %s", next.BlobBaseFee(p), want)
	}
}

func TestEstimateBlobCount(t *testing.T) {
	tests := []struct {
		bytes uint64
		want  uint64
	}{
		{0, 0},
		{1, 1},
		{UsableBytesPerBlob, 1},
		{UsableBytesPerBlob + 1, 2},
		{3 * UsableBytesPerBlob, 3},
	}

	for _, tt := range tests {
		if got := EstimateBlobCount(tt.bytes); got != tt.want {
			t.Errorf("EstimateBlobCount(%d) = %d, want %d", tt.bytes, got, tt.want)
		}
	}
}

func TestBlobTxFee(t *testing.T) {
	p := Cancun()
	s := mustState(t, 0, 30_000_000, 1_000)
	s.ExcessBlobGas = p.UpdateFraction // blob base fee 2

	got := BlobTxFee(p, s, 3)
	want := big.NewInt(3 * BlobGasPerBlob * 2)
	if got.Cmp(want) != 0 {
		t.Errorf("BlobTxFee = %s, want %s", got, want)
	}
}

func TestParamsForFork(t *testing.T) {
	for _, fork := range []string{"", "cancun", "Prague"} {
		if _, err := ParamsForFork(fork); err != nil {
			t.Errorf("ParamsForFork(%q): %v", fork, err)
		}
	}
	if _, err := ParamsForFork("osaka"); err == nil {
		t.Error("expected error for unknown fork")
	}

	p := Prague()
	if p.TargetBlobGas() != 6*BlobGasPerBlob || p.MaxBlobGas() != 9*BlobGasPerBlob {
		t.Errorf("prague blob gas = %d/%d", p.TargetBlobGas(), p.MaxBlobGas())
	}
}
