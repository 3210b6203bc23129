package reporter

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/fd1az/chainstream/business/blockstream/domain"
	feemarket "github.com/fd1az/chainstream/business/feemarket/domain"
)

// ConsoleReporter implements app.Handler for CLI output.
type ConsoleReporter struct {
	out    io.Writer
	params feemarket.Params

	alert *color.Color
	added *color.Color
	gone  *color.Color
}

// NewConsoleReporter creates a ConsoleReporter writing to stdout.
func NewConsoleReporter(params feemarket.Params) *ConsoleReporter {
	return NewConsoleReporterTo(os.Stdout, params)
}

// NewConsoleReporterTo creates a ConsoleReporter writing to out.
func NewConsoleReporterTo(out io.Writer, params feemarket.Params) *ConsoleReporter {
	r := &ConsoleReporter{
		out:    out,
		params: params,
		alert:  color.New(color.FgRed, color.Bold),
		added:  color.New(color.FgGreen),
		gone:   color.New(color.FgYellow),
	}
	// Escape codes only go to the terminal.
	if out != os.Stdout {
		r.alert.DisableColor()
		r.added.DisableColor()
		r.gone.DisableColor()
	}
	return r
}

// Start prints the banner.
func (r *ConsoleReporter) Start(ctx context.Context) error {
	fmt.Fprintln(r.out, "chainstream started")
	fmt.Fprintln(r.out, "===================")
	return nil
}

// HandleEvent prints one event.
func (r *ConsoleReporter) HandleEvent(_ context.Context, ev domain.Event) error {
	switch e := ev.(type) {
	case domain.NewBlock:
		r.block(e.Header)
	case domain.Reorg:
		r.reorg(e)
	case domain.Aborted:
		r.aborted(e)
	}
	return nil
}

func (r *ConsoleReporter) block(h domain.Header) {
	s := summarize(r.params, h)

	line := fmt.Sprintf("[%s] block #%d %s gas %5.1f%%",
		h.Timestamp.UTC().Format("15:04:05"), h.Number, h.Hash.TerminalString(), s.GasUsedPct)
	if s.HasFees {
		line += fmt.Sprintf("  base %s gwei  next %s gwei  blob %s wei",
			s.BaseFee.StringFixed(3), s.NextBaseFee.StringFixed(3), s.NextBlobFee)
	}
	fmt.Fprintln(r.out, line)
}

func (r *ConsoleReporter) reorg(e domain.Reorg) {
	fmt.Fprintln(r.out, "")
	fmt.Fprintln(r.out, "================================================================================")
	r.alert.Fprintln(r.out, "CHAIN REORGANIZATION")
	fmt.Fprintln(r.out, "================================================================================")
	fmt.Fprintf(r.out, "Common ancestor: %s\n", e.CommonAncestor.ID())
	fmt.Fprintf(r.out, "Depth:           %d\n", e.Depth())
	fmt.Fprintln(r.out, "--------------------------------------------------------------------------------")
	fmt.Fprintln(r.out, "REVERTED")
	for _, h := range e.Reverted {
		r.gone.Fprintf(r.out, "  - %s\n", h.ID())
	}
	fmt.Fprintln(r.out, "NEW")
	for _, h := range e.New {
		r.added.Fprintf(r.out, "  + %s\n", h.ID())
	}
	fmt.Fprintln(r.out, "================================================================================")
}

func (r *ConsoleReporter) aborted(e domain.Aborted) {
	r.alert.Fprintf(r.out, "[%s] stream stopped: %s", time.Now().Format("15:04:05"), e.Reason)
	if e.Err != nil {
		fmt.Fprintf(r.out, " (%v)", e.Err)
	}
	fmt.Fprintln(r.out)
}

// Stop prints the closing line.
func (r *ConsoleReporter) Stop() error {
	fmt.Fprintln(r.out, "")
	fmt.Fprintln(r.out, "chainstream stopped")
	return nil
}
