package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

// FeeSnapshot holds the fee figures for the next block, in gwei.
type FeeSnapshot struct {
	Fork        string
	BlockNumber uint64
	BaseFee     decimal.Decimal
	NextBaseFee decimal.Decimal
	BlobBaseFee decimal.Decimal
	TipCap      decimal.Decimal
	MaxFee      decimal.Decimal
}

// FeesComponent renders the fee market panel.
type FeesComponent struct {
	snapshot *FeeSnapshot
	history  []decimal.Decimal // next base fees, oldest first
	maxHist  int
}

// NewFeesComponent creates a new fees component.
func NewFeesComponent(history int) *FeesComponent {
	return &FeesComponent{maxHist: history}
}

// Update replaces the snapshot and records the next base fee.
func (f *FeesComponent) Update(s FeeSnapshot) {
	f.snapshot = &s
	f.history = append(f.history, s.NextBaseFee)
	if len(f.history) > f.maxHist {
		f.history = f.history[len(f.history)-f.maxHist:]
	}
}

// View renders the fees component.
func (f *FeesComponent) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true)
	upStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	downStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))

	if f.snapshot == nil {
		return headerStyle.Render("FEE MARKET") + "\n\n" + dimStyle.Render("  Waiting for fee data...")
	}
	s := f.snapshot

	var sb strings.Builder
	sb.WriteString(headerStyle.Render(fmt.Sprintf("FEE MARKET (%s, head #%d)", s.Fork, s.BlockNumber)))
	sb.WriteString("\n\n")

	trend := downStyle.Render("▼")
	if s.NextBaseFee.GreaterThan(s.BaseFee) {
		trend = upStyle.Render("▲")
	} else if s.NextBaseFee.Equal(s.BaseFee) {
		trend = dimStyle.Render("=")
	}

	sb.WriteString(fmt.Sprintf("  Base fee:       %s gwei\n", valueStyle.Render(s.BaseFee.StringFixed(3))))
	sb.WriteString(fmt.Sprintf("  Next base fee:  %s gwei %s\n", valueStyle.Render(s.NextBaseFee.StringFixed(3)), trend))
	sb.WriteString(fmt.Sprintf("  Blob base fee:  %s gwei\n", valueStyle.Render(s.BlobBaseFee.StringFixed(9))))
	if !s.TipCap.IsZero() {
		sb.WriteString(fmt.Sprintf("  Suggested tip:  %s gwei\n", valueStyle.Render(s.TipCap.StringFixed(3))))
		sb.WriteString(fmt.Sprintf("  Max fee:        %s gwei\n", valueStyle.Render(s.MaxFee.StringFixed(3))))
	}

	if len(f.history) > 1 {
		sb.WriteString("\n")
		sb.WriteString(dimStyle.Render("  Next base fee trend  "))
		sb.WriteString(Sparkline(f.history))
		sb.WriteString("\n")
	}

	return sb.String()
}

var sparkBars = []rune("▁▂▃▄▅▆▇█")

// Sparkline renders values as a one-line bar chart scaled to their range.
func Sparkline(values []decimal.Decimal) string {
	if len(values) == 0 {
		return ""
	}

	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = decimal.Min(lo, v)
		hi = decimal.Max(hi, v)
	}

	span := hi.Sub(lo)
	top := decimal.NewFromInt(int64(len(sparkBars) - 1))

	out := make([]rune, len(values))
	for i, v := range values {
		idx := 0
		if span.IsPositive() {
			idx = int(v.Sub(lo).Div(span).Mul(top).Round(0).IntPart())
		}
		out[i] = sparkBars[idx]
	}
	return string(out)
}
