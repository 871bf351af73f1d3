package components

import (
	"fmt"
	"sort"
	"strings"
)

// BalanceRow is the latest known balance of one watched key.
type BalanceRow struct {
	ChainID string
	Key     string
	Amount  string
	Block   string
	Exists  bool
}

// BalancesComponent renders watched balances.
type BalancesComponent struct {
	rows map[string]BalanceRow
}

// NewBalancesComponent creates an empty component.
func NewBalancesComponent() *BalancesComponent {
	return &BalancesComponent{rows: map[string]BalanceRow{}}
}

// Update records the latest row for its chain and key.
func (c *BalancesComponent) Update(r BalanceRow) {
	c.rows[r.ChainID+"/"+r.Key] = r
}

// Rows returns the rows ordered by chain then key.
func (c *BalancesComponent) Rows() []BalanceRow {
	keys := make([]string, 0, len(c.rows))
	for k := range c.rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]BalanceRow, len(keys))
	for i, k := range keys {
		out[i] = c.rows[k]
	}
	return out
}

// View renders rows ordered by chain then key.
func (c *BalancesComponent) View() string {
	if len(c.rows) == 0 {
		return mutedStyle.Render("no watched accounts")
	}

	var b strings.Builder
	for _, r := range c.Rows() {
		amount := r.Amount
		if !r.Exists {
			amount = mutedStyle.Render("no account")
		}
		fmt.Fprintf(&b, "%-10s %s  %s\n", r.ChainID, shorten(r.Key), amount)
	}
	return b.String()
}

func shorten(s string) string {
	if len(s) <= 16 {
		return s
	}
	return s[:8] + "…" + s[len(s)-6:]
}
