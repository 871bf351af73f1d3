// Package components provides reusable status view components.
package components

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ChainStatus is one row of the chain table.
type ChainStatus struct {
	ID           string
	Name         string
	State        string
	Availability string
	Retries      int
	Symbol       string
	Decimals     int
	LastError    string
}

var (
	readyStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	reconnectingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)
	unavailableStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	mutedStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

// StatusComponent renders chain readiness.
type StatusComponent struct {
	chains []ChainStatus
}

// NewStatusComponent creates a new status component.
func NewStatusComponent() *StatusComponent {
	return &StatusComponent{}
}

// Update inserts or replaces the row for status.ID.
func (s *StatusComponent) Update(status ChainStatus) {
	for i, c := range s.chains {
		if c.ID == status.ID {
			s.chains[i] = status
			return
		}
	}
	s.chains = append(s.chains, status)
	sort.Slice(s.chains, func(i, j int) bool { return s.chains[i].ID < s.chains[j].ID })
}

// Rows returns a copy of the rows in id order.
func (s *StatusComponent) Rows() []ChainStatus {
	return append([]ChainStatus(nil), s.chains...)
}

// View renders the status component.
func (s *StatusComponent) View() string {
	if len(s.chains) == 0 {
		return "No chains configured"
	}

	var b strings.Builder
	for _, c := range s.chains {
		var marker string
		switch c.Availability {
		case "ready":
			marker = readyStyle.Render("● " + c.State)
		case "reconnecting":
			marker = reconnectingStyle.Render("◐ " + c.State)
		default:
			marker = unavailableStyle.Render("○ " + c.State)
		}

		line := fmt.Sprintf("├─ %-12s %s", c.Name, marker)
		if c.Symbol != "" {
			line += mutedStyle.Render(fmt.Sprintf("  %s/%d", c.Symbol, c.Decimals))
		}
		if c.Retries > 0 {
			line += mutedStyle.Render(fmt.Sprintf("  retries=%d", c.Retries))
		}
		if c.LastError != "" {
			line += mutedStyle.Render("  " + c.LastError)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}
