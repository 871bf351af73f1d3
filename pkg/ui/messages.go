package ui

import "github.com/fd1az/chain-wallet/pkg/ui/components"

// Message types for TUI updates

// Snapshot is the full dashboard state at one instant.
type Snapshot struct {
	Chains   []components.ChainStatus
	Balances []components.BalanceRow
}

// SnapshotMsg carries a fresh snapshot.
type SnapshotMsg struct {
	Snapshot Snapshot
}

// ErrorMsg is sent when an error occurs.
type ErrorMsg struct {
	Error error
}

// TickMsg is sent periodically to poll for a new snapshot.
type TickMsg struct{}
