package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// ConnectionStatus represents a connection's status.
type ConnectionStatus struct {
	Name       string
	Connected  bool
	Detail     string // e.g. "polling" or "ws push"
	LastBlock  uint64
	LastUpdate time.Time
}

// StatusComponent renders connection status.
type StatusComponent struct {
	connections []ConnectionStatus
}

// NewStatusComponent creates a new status component.
func NewStatusComponent() *StatusComponent {
	return &StatusComponent{
		connections: make([]ConnectionStatus, 0),
	}
}

// Update updates a connection's status.
func (s *StatusComponent) Update(status ConnectionStatus) {
	for i, conn := range s.connections {
		if conn.Name == status.Name {
			s.connections[i] = status
			return
		}
	}
	s.connections = append(s.connections, status)
}

// View renders the status component as a single line.
func (s *StatusComponent) View() string {
	if len(s.connections) == 0 {
		return "No connections"
	}

	parts := make([]string, 0, len(s.connections))
	for _, conn := range s.connections {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
		icon := "●"
		if !conn.Connected {
			style = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
			icon = "○"
		}

		label := conn.Name
		if conn.Detail != "" {
			label += " (" + conn.Detail + ")"
		}
		parts = append(parts, style.Render(fmt.Sprintf("%s %s", icon, label)))
	}

	return strings.Join(parts, "  │  ")
}
