package reporter

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/chainstream/business/blockstream/domain"
	feemarket "github.com/fd1az/chainstream/business/feemarket/domain"
	"github.com/fd1az/chainstream/internal/logger"
	"github.com/fd1az/chainstream/pkg/ui"
)

func header(n uint64, fork byte, gasUsed uint64) domain.Header {
	excess := uint64(0)
	used := uint64(0)
	return domain.Header{
		Number:        n,
		Hash:          common.Hash{fork, byte(n)},
		ParentHash:    common.Hash{fork, byte(n - 1)},
		Timestamp:     time.Unix(1_700_000_000, 0),
		GasLimit:      30_000_000,
		GasUsed:       gasUsed,
		BaseFee:       big.NewInt(1_000_000_000),
		BlobGasUsed:   &used,
		ExcessBlobGas: &excess,
	}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name     string
		header   domain.Header
		wantNext string
		wantFees bool
	}{
		{name: "at_target", header: header(1, 0, 15_000_000), wantNext: "1", wantFees: true},
		{name: "full_block", header: header(1, 0, 30_000_000), wantNext: "1.125", wantFees: true},
		{name: "pre_london", header: domain.Header{Number: 1, GasLimit: 10, GasUsed: 5}, wantFees: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := summarize(feemarket.Cancun(), tt.header)
			if s.HasFees != tt.wantFees {
				t.Fatalf("HasFees = %v, want %v", s.HasFees, tt.wantFees)
			}
			if s.GasUsedPct == 0 {
				t.Error("gas used pct not computed")
			}
			if tt.wantFees && s.NextBaseFee.String() != tt.wantNext {
				t.Errorf("next base fee = %s gwei, want %s", s.NextBaseFee, tt.wantNext)
			}
		})
	}
}

func TestConsoleReporter(t *testing.T) {
	var out bytes.Buffer
	r := NewConsoleReporterTo(&out, feemarket.Cancun())
	ctx := context.Background()

	events := []domain.Event{
		domain.NewBlock{Header: header(1, 0, 30_000_000)},
		domain.Reorg{
			CommonAncestor: header(1, 0, 0),
			Reverted:       []domain.Header{header(2, 0, 0)},
			New:            []domain.Header{header(2, 1, 0), header(3, 1, 0)},
		},
		domain.Aborted{Reason: domain.ReasonRetriesExhausted, Err: errors.New("node down")},
	}
	for _, ev := range events {
		if err := r.HandleEvent(ctx, ev); err != nil {
			t.Fatalf("HandleEvent: %v", err)
		}
	}

	got := out.String()
	for _, want := range []string{
		"block #1",
		"next 1.125 gwei",
		"CHAIN REORGANIZATION",
		"Depth:           1",
		"  + #3",
		"stream stopped: retries exhausted (node down)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestTUIReporter(t *testing.T) {
	var msgs []tea.Msg
	r := NewTUIReporterWith(feemarket.Cancun(), func(m tea.Msg) { msgs = append(msgs, m) })
	ctx := context.Background()

	_ = r.HandleEvent(ctx, domain.Reorg{
		CommonAncestor: header(1, 0, 0),
		Reverted:       []domain.Header{header(3, 0, 0), header(2, 0, 0)},
		New:            []domain.Header{header(2, 1, 15_000_000)},
	})
	_ = r.HandleEvent(ctx, domain.Aborted{Reason: domain.ReasonCancelled})

	// Reorg, then block + fee for the new branch, then the abort.
	if len(msgs) != 4 {
		t.Fatalf("got %d messages: %#v", len(msgs), msgs)
	}

	reorg, ok := msgs[0].(ui.ReorgMsg)
	if !ok || reorg.Depth != 2 || reorg.Added != 1 || reorg.Ancestor != 1 {
		t.Errorf("reorg msg = %#v", msgs[0])
	}
	block, ok := msgs[1].(ui.BlockMsg)
	if !ok || block.Number != 2 || !block.Reorged {
		t.Errorf("block msg = %#v", msgs[1])
	}
	fee, ok := msgs[2].(ui.FeeMsg)
	if !ok || fee.Fork != "cancun" || fee.NextBaseFee.String() != "1" {
		t.Errorf("fee msg = %#v", msgs[2])
	}
	if ab, ok := msgs[3].(ui.AbortedMsg); !ok || ab.Reason != "cancelled" {
		t.Errorf("aborted msg = %#v", msgs[3])
	}
}

func TestLogReporter(t *testing.T) {
	tests := []struct {
		name    string
		event   domain.Event
		want    []string
		wantNil bool
	}{
		{
			name:  "new_block",
			event: domain.NewBlock{Header: header(5, 0, 15_000_000)},
			want:  []string{`"level":"DEBUG"`, `"msg":"new block"`, `"block":"#5`},
		},
		{
			name: "reorg",
			event: domain.Reorg{
				CommonAncestor: header(4, 0, 0),
				Reverted:       []domain.Header{header(6, 0, 0), header(5, 0, 0)},
				New:            []domain.Header{header(5, 1, 0), header(6, 1, 0), header(7, 1, 0)},
			},
			want: []string{`"level":"WARN"`, `"msg":"chain reorganization"`, `"depth":2`, `"new":3`},
		},
		{
			name:  "aborted",
			event: domain.Aborted{Reason: domain.ReasonRetriesExhausted, Err: errors.New("node down")},
			want:  []string{`"level":"ERROR"`, `"msg":"stream aborted"`, `"reason":"retries exhausted"`, "node down"},
		},
		{
			name:    "cancelled_is_quiet",
			event:   domain.Aborted{Reason: domain.ReasonCancelled, Err: context.Canceled},
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			r := NewLogReporter(logger.New(&buf, logger.LevelDebug, "test", nil))

			if err := r.HandleEvent(context.Background(), tt.event); err != nil {
				t.Fatalf("HandleEvent: %v", err)
			}

			out := buf.String()
			if tt.wantNil {
				if out != "" {
					t.Errorf("unexpected log output: %s", out)
				}
				return
			}
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("log output missing %s:\n%s", w, out)
				}
			}
		})
	}
}
