package main

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	connapp "github.com/fd1az/chain-wallet/business/connection/app"
	conndomain "github.com/fd1az/chain-wallet/business/connection/domain"
	subdomain "github.com/fd1az/chain-wallet/business/subscription/domain"
	"github.com/fd1az/chain-wallet/pkg/ui"
	"github.com/fd1az/chain-wallet/pkg/ui/components"
)

// statusView holds the latest chain and balance state for rendering.
type statusView struct {
	mu       sync.Mutex
	chains   *components.StatusComponent
	balances *components.BalancesComponent
}

func newStatusView() *statusView {
	return &statusView{
		chains:   components.NewStatusComponent(),
		balances: components.NewBalancesComponent(),
	}
}

func (v *statusView) refresh(reg *connapp.Registry) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, conn := range reg.All() {
		row := components.ChainStatus{
			ID:           conn.ChainID(),
			Name:         conn.Chain().Name(),
			State:        conn.State().String(),
			Availability: conn.Availability().String(),
			Retries:      conn.RetryCount(),
		}
		if md, ok := conn.Metadata(); ok {
			row.Symbol = md.Symbol()
			row.Decimals = md.Decimals()
			if md.ChainName != "" {
				row.Name = md.ChainName
			}
		}
		if err := conn.LastError(); err != nil && conn.State() != conndomain.StateReady {
			row.LastError = err.Error()
		}
		v.chains.Update(row)
	}
}

func (v *statusView) balance(chainID, key string, md conndomain.Metadata, b subdomain.AccountBalance) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balances.Update(components.BalanceRow{
		ChainID: chainID,
		Key:     key,
		Amount:  md.FormatAmount(&b.Free),
		Exists:  b.Present,
	})
}

// snapshot refreshes from reg and returns the dashboard state.
func (v *statusView) snapshot(reg *connapp.Registry) ui.Snapshot {
	v.refresh(reg)

	v.mu.Lock()
	defer v.mu.Unlock()
	return ui.Snapshot{Chains: v.chains.Rows(), Balances: v.balances.Rows()}
}

func (v *statusView) render() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return lipgloss.JoinVertical(lipgloss.Left,
		ui.Panel("Chains", v.chains.View()),
		ui.Panel("Balances", v.balances.View()),
	)
}

// awaitSettled waits until every connection is Ready or Failed, or until
// timeout.
func awaitSettled(ctx context.Context, reg *connapp.Registry, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		settled := true
		for _, conn := range reg.All() {
			if s := conn.State(); s != conndomain.StateReady && s != conndomain.StateFailed {
				settled = false
				break
			}
		}
		if settled {
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

func allReady(reg *connapp.Registry) bool {
	for _, conn := range reg.All() {
		if conn.State() != conndomain.StateReady {
			return false
		}
	}
	return true
}
