package ui

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/chain-wallet/pkg/ui/components"
)

func snapshot() Snapshot {
	return Snapshot{
		Chains: []components.ChainStatus{
			{ID: "polkadot", Name: "Polkadot", State: "ready", Availability: "ready", Symbol: "DOT", Decimals: 10},
		},
		Balances: []components.BalanceRow{
			{ChainID: "polkadot", Key: "15oF4uVJwmo4TdGW7VfQxNLavjCXviqxT9S1MgbjMNHr6Sp5", Amount: "1.5 DOT", Exists: true},
		},
	}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

func TestModel_Snapshot(t *testing.T) {
	m := New(snapshot, 0)
	assert.Contains(t, m.View(), "connecting")

	msg := m.fetchCmd()()
	m, _ = update(t, m, msg)

	view := m.View()
	assert.Contains(t, view, "Polkadot")
	assert.Contains(t, view, "1.5 DOT")
	assert.Contains(t, view, "updated")
}

func TestModel_Errors(t *testing.T) {
	m := New(nil, 0)
	for i := 0; i < 5; i++ {
		m, _ = update(t, m, ErrorMsg{Error: errors.New("boom")})
	}
	assert.Len(t, m.errors, maxErrors)
	assert.Contains(t, m.View(), "boom")

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("e")})
	assert.Empty(t, m.errors)
}

func TestModel_Quit(t *testing.T) {
	m := New(snapshot, 0)
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.True(t, m.quitting)
	assert.Empty(t, m.View())
}

func TestModel_NilSource(t *testing.T) {
	m := New(nil, 0)
	assert.Nil(t, m.fetchCmd()())
}
