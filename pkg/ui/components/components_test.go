package components

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusComponent_View(t *testing.T) {
	s := NewStatusComponent()
	assert.Equal(t, "No chains configured", s.View())

	s.Update(ChainStatus{ID: "polkadot", Name: "Polkadot", State: "ready", Availability: "ready", Symbol: "DOT", Decimals: 10})
	s.Update(ChainStatus{ID: "kusama", Name: "Kusama", State: "connecting", Availability: "reconnecting", Retries: 2})
	s.Update(ChainStatus{ID: "polkadot", Name: "Polkadot", State: "failed", Availability: "unavailable", LastError: "boom"})

	view := s.View()
	lines := strings.Split(strings.TrimSpace(view), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Kusama")
	assert.Contains(t, lines[0], "retries=2")
	assert.Contains(t, lines[1], "failed")
	assert.Contains(t, lines[1], "boom")
}

func TestBalancesComponent_View(t *testing.T) {
	c := NewBalancesComponent()
	c.Update(BalanceRow{ChainID: "polkadot", Key: "15oF4uVJwmo4TdGW7VfQxNLavjCXviqxT9S1MgbjMNHr6Sp5", Amount: "1.5 DOT", Exists: true})
	c.Update(BalanceRow{ChainID: "kusama", Key: "short", Exists: false})

	view := c.View()
	assert.Contains(t, view, "1.5 DOT")
	assert.Contains(t, view, "no account")
	assert.Contains(t, view, "15oF4uVJ")
	assert.Less(t, strings.Index(view, "kusama"), strings.Index(view, "polkadot"))
}
