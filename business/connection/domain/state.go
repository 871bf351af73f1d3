// Package domain contains the connection bounded context's core types.
package domain

import "time"

// State is the readiness state of one chain connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Availability is the coarse status shown to users.
type Availability int

const (
	AvailabilityUnavailable Availability = iota
	AvailabilityReconnecting
	AvailabilityReady
)

func (a Availability) String() string {
	switch a {
	case AvailabilityReady:
		return "ready"
	case AvailabilityReconnecting:
		return "reconnecting"
	default:
		return "unavailable"
	}
}

// Transition records one state change. Version is the readiness version
// current after the change.
type Transition struct {
	ChainID string
	From    State
	To      State
	Version uint64
	Err     error
	At      time.Time
}
