package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fd1az/chain-wallet/pkg/ui/components"
)

// DefaultInterval is how often the dashboard polls its source.
const DefaultInterval = time.Second

// maxErrors bounds the error panel.
const maxErrors = 3

// ErrorEntry represents an error with timestamp.
type ErrorEntry struct {
	Message   string
	Timestamp time.Time
}

// SnapshotFunc returns the current dashboard state. It is called from the
// Bubble Tea command goroutine and must be safe for concurrent use.
type SnapshotFunc func() Snapshot

// Model is the Bubble Tea model for the wallet dashboard.
type Model struct {
	chains   *components.StatusComponent
	balances *components.BalancesComponent

	keys    KeyMap
	help    help.Model
	spinner spinner.Model

	source   SnapshotFunc
	interval time.Duration

	width      int
	quitting   bool
	lastUpdate time.Time
	errors     []ErrorEntry
}

// New creates a dashboard that polls source every interval.
func New(source SnapshotFunc, interval time.Duration) Model {
	if interval <= 0 {
		interval = DefaultInterval
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(ColorPrimary)

	return Model{
		chains:   components.NewStatusComponent(),
		balances: components.NewBalancesComponent(),
		keys:     DefaultKeyMap(),
		help:     help.New(),
		spinner:  sp,
		source:   source,
		interval: interval,
		errors:   make([]ErrorEntry, 0, maxErrors),
	}
}

// Init starts polling.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetchCmd(), m.tickCmd())
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg {
		return TickMsg{}
	})
}

func (m Model) fetchCmd() tea.Cmd {
	source := m.source
	return func() tea.Msg {
		if source == nil {
			return nil
		}
		return SnapshotMsg{Snapshot: source()}
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Refresh):
			return m, m.fetchCmd()
		case key.Matches(msg, m.keys.Errors):
			m.errors = m.errors[:0]
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case TickMsg:
		return m, tea.Batch(m.fetchCmd(), m.tickCmd())

	case SnapshotMsg:
		m.apply(msg.Snapshot)

	case ErrorMsg:
		if msg.Error != nil {
			m.errors = append(m.errors, ErrorEntry{Message: msg.Error.Error(), Timestamp: time.Now()})
			if len(m.errors) > maxErrors {
				m.errors = m.errors[len(m.errors)-maxErrors:]
			}
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *Model) apply(s Snapshot) {
	for _, c := range s.Chains {
		m.chains.Update(c)
	}
	for _, b := range s.Balances {
		m.balances.Update(b)
	}
	m.lastUpdate = time.Now()
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	header := TitleStyle.Render("chain-wallet")
	if m.lastUpdate.IsZero() {
		header += " " + m.spinner.View() + MutedValue.Render(" connecting")
	} else {
		header += MutedValue.Render(" updated " + m.lastUpdate.Format("15:04:05"))
	}

	sections := []string{
		header,
		Panel("Chains", m.chains.View()),
		Panel("Balances", m.balances.View()),
	}
	if len(m.errors) > 0 {
		var body string
		for _, e := range m.errors {
			body += fmt.Sprintf("[%s] %s\n", e.Timestamp.Format("15:04:05"), e.Message)
		}
		sections = append(sections, Panel("Errors", ErrorStyle.Render(body)))
	}
	sections = append(sections, m.help.View(m.keys))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
