package domain

import "time"

// BatchInfo describes an open batch.
type BatchInfo struct {
	ID      uint64
	Name    string
	ChainID string
	Keys    []string
	Version uint64
	Opened  time.Time
}
