package reporter

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fd1az/chainstream/business/blockstream/domain"
	feemarket "github.com/fd1az/chainstream/business/feemarket/domain"
	"github.com/fd1az/chainstream/pkg/ui"
)

// TUIReporter implements app.Handler by forwarding events to the Bubble Tea
// program as ui messages.
type TUIReporter struct {
	params feemarket.Params
	send   func(tea.Msg)
}

// NewTUIReporter creates a TUIReporter sending to the running ui program.
func NewTUIReporter(params feemarket.Params) *TUIReporter {
	return NewTUIReporterWith(params, ui.Send)
}

// NewTUIReporterWith creates a TUIReporter using send.
func NewTUIReporterWith(params feemarket.Params, send func(tea.Msg)) *TUIReporter {
	return &TUIReporter{params: params, send: send}
}

// HandleEvent converts ev into ui messages. It never fails.
func (r *TUIReporter) HandleEvent(_ context.Context, ev domain.Event) error {
	switch e := ev.(type) {
	case domain.NewBlock:
		r.block(e.Header, false)
	case domain.Reorg:
		msg := ui.ReorgMsg{
			Depth:    e.Depth(),
			Added:    len(e.New),
			Ancestor: e.CommonAncestor.Number,
			NewHead:  e.Head().ID().String(),
		}
		if len(e.Reverted) > 0 {
			msg.OldHead = e.Reverted[0].ID().String()
		}
		r.send(msg)
		for _, h := range e.New {
			r.block(h, true)
		}
	case domain.Aborted:
		r.send(ui.AbortedMsg{Reason: string(e.Reason), Err: e.Err})
	}
	return nil
}

func (r *TUIReporter) block(h domain.Header, reorged bool) {
	s := summarize(r.params, h)

	r.send(ui.BlockMsg{
		Number:      h.Number,
		Hash:        h.Hash.TerminalString(),
		Timestamp:   h.Timestamp,
		GasUsedPct:  s.GasUsedPct,
		BaseFeeGwei: s.BaseFee,
		NextFeeGwei: s.NextBaseFee,
		Reorged:     reorged,
	})

	if s.HasFees {
		r.send(ui.FeeMsg{
			Fork:        r.params.Fork,
			BlockNumber: h.Number,
			BaseFee:     s.BaseFee,
			NextBaseFee: s.NextBaseFee,
			BlobBaseFee: feemarket.WeiToGwei(s.NextBlobFee),
		})
	}
}
