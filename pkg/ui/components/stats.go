package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Stats holds stream statistics for display.
type Stats struct {
	Blocks       int64
	Reorgs       int64
	MaxReorg     int
	BlocksRolled int64 // blocks reverted by reorgs
	WindowSize   int
	Errors       int64
}

// StatsComponent renders statistics.
type StatsComponent struct {
	stats Stats
}

// NewStatsComponent creates a new stats component.
func NewStatsComponent() *StatsComponent {
	return &StatsComponent{}
}

// Update replaces the statistics.
func (s *StatsComponent) Update(stats Stats) {
	s.stats = stats
}

// Stats returns the current statistics.
func (s *StatsComponent) Stats() Stats {
	return s.stats
}

// View renders the stats component.
func (s *StatsComponent) View() string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true)
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)

	reorgs := valueStyle.Render(fmt.Sprintf("%d", s.stats.Reorgs))
	if s.stats.Reorgs > 0 {
		reorgs = warnStyle.Render(fmt.Sprintf("%d", s.stats.Reorgs))
	}

	errorsDisplay := valueStyle.Render(fmt.Sprintf("%d", s.stats.Errors))
	if s.stats.Errors > 0 {
		errorsDisplay = errorStyle.Render(fmt.Sprintf("%d", s.stats.Errors))
	}

	return style.Render("STATS") + "\n" +
		fmt.Sprintf("Blocks: %s  │  Reorgs: %s  │  Deepest: %s  │  Reverted: %s\n",
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Blocks)),
			reorgs,
			valueStyle.Render(fmt.Sprintf("%d", s.stats.MaxReorg)),
			valueStyle.Render(fmt.Sprintf("%d", s.stats.BlocksRolled)),
		) +
		fmt.Sprintf("Window: %s  │  Errors: %s",
			valueStyle.Render(fmt.Sprintf("%d", s.stats.WindowSize)),
			errorsDisplay,
		)
}
