// Package components provides reusable TUI components.
package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

// BlockRow is one accepted block in the recent blocks table.
type BlockRow struct {
	Number      uint64
	Hash        string // short form
	Time        string
	GasUsedPct  float64
	BaseFeeGwei decimal.Decimal
	NextFeeGwei decimal.Decimal
	Reorged     bool // arrived as part of a reorg
}

// BlocksComponent renders the most recent blocks, newest first.
type BlocksComponent struct {
	rows    []BlockRow
	maxRows int
	offset  int
}

// NewBlocksComponent creates a new blocks component.
func NewBlocksComponent(maxRows int) *BlocksComponent {
	return &BlocksComponent{
		rows:    make([]BlockRow, 0, maxRows),
		maxRows: maxRows,
	}
}

// Add prepends a block. Rows at or above the new block's number are
// dropped first since they belonged to a replaced branch.
func (b *BlocksComponent) Add(row BlockRow) {
	kept := b.rows[:0]
	for _, r := range b.rows {
		if r.Number < row.Number {
			kept = append(kept, r)
		}
	}
	b.rows = append([]BlockRow{row}, kept...)
	if len(b.rows) > b.maxRows {
		b.rows = b.rows[:b.maxRows]
	}
}

// Rows returns the rows, newest first.
func (b *BlocksComponent) Rows() []BlockRow {
	return b.rows
}

// Clear clears all rows.
func (b *BlocksComponent) Clear() {
	b.rows = b.rows[:0]
	b.offset = 0
}

// ScrollUp moves the view towards newer blocks.
func (b *BlocksComponent) ScrollUp() {
	if b.offset > 0 {
		b.offset--
	}
}

// ScrollDown moves the view towards older blocks.
func (b *BlocksComponent) ScrollDown() {
	if b.offset < len(b.rows)-1 {
		b.offset++
	}
}

// View renders up to visible rows.
func (b *BlocksComponent) View(visible int) string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	upStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	downStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	reorgStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)

	var sb strings.Builder
	sb.WriteString(headerStyle.Render("RECENT BLOCKS"))
	sb.WriteString("\n\n")

	if len(b.rows) == 0 {
		sb.WriteString(dimStyle.Render("  Waiting for blocks..."))
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("  %-10s %-12s %-9s %6s %12s %12s\n",
		"Block", "Hash", "Time", "Gas", "Base fee", "Next"))
	sb.WriteString(dimStyle.Render("  "+strings.Repeat("─", 66)) + "\n")

	end := min(len(b.rows), b.offset+visible)
	for _, row := range b.rows[b.offset:end] {
		next := downStyle
		if row.NextFeeGwei.GreaterThan(row.BaseFeeGwei) {
			next = upStyle
		}

		line := fmt.Sprintf("  %-10d %-12s %-9s %5.1f%% %12s ",
			row.Number, row.Hash, row.Time, row.GasUsedPct, row.BaseFeeGwei.StringFixed(3))
		line += next.Render(fmt.Sprintf("%12s", row.NextFeeGwei.StringFixed(3)))
		if row.Reorged {
			line += reorgStyle.Render(" ↺")
		}
		sb.WriteString(line + "\n")
	}

	if len(b.rows) > visible {
		sb.WriteString(dimStyle.Render(fmt.Sprintf("  %d-%d of %d", b.offset+1, end, len(b.rows))))
	}
	return sb.String()
}
