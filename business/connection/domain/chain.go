package domain

import (
	"fmt"
	"strings"
)

// Family selects the decoding and initialization rules for a group of chains.
type Family string

const (
	FamilySubstrate Family = "substrate"
	FamilyEVM       Family = "evm"
)

// ParseFamily parses a configured family name.
func ParseFamily(s string) (Family, error) {
	switch f := Family(strings.ToLower(strings.TrimSpace(s))); f {
	case FamilySubstrate, FamilyEVM:
		return f, nil
	default:
		return "", fmt.Errorf("unknown chain family %q", s)
	}
}

// Default metadata values used when a chain exposes no properties.
const (
	DefaultSubstrateDecimals = 12
	DefaultSubstrateSymbol   = "Unit"
	DefaultSS58Prefix        = 42
	DefaultEVMDecimals       = 18
	DefaultEVMSymbol         = "ETH"
)

// ChainConfig is the read-only description of one chain.
type ChainConfig struct {
	ID          string
	Endpoint    string
	Family      Family
	DisplayName string

	DefaultDecimals int
	DefaultSymbol   string
	DefaultSS58     uint16

	// Overrides replace decoded properties when set.
	Overrides PropertyOverrides

	// Methods renames RPC methods for nodes with non-default names.
	Methods map[string]string

	RateLimit float64
	Burst     int
}

// PropertyOverrides are custom decoding rules for one chain.
type PropertyOverrides struct {
	Decimals   *int
	Symbol     string
	SS58Format *uint16
}

// NewChainConfig returns a config carrying the family's default decimals,
// symbol and address prefix.
func NewChainConfig(id, endpoint string, family Family) ChainConfig {
	c := ChainConfig{
		ID:       id,
		Endpoint: endpoint,
		Family:   family,
		Methods:  map[string]string{},
	}
	switch family {
	case FamilySubstrate:
		c.DefaultDecimals = DefaultSubstrateDecimals
		c.DefaultSymbol = DefaultSubstrateSymbol
		c.DefaultSS58 = DefaultSS58Prefix
	case FamilyEVM:
		c.DefaultDecimals = DefaultEVMDecimals
		c.DefaultSymbol = DefaultEVMSymbol
	}
	return c
}

// Name returns the display name, falling back to the id.
func (c ChainConfig) Name() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return c.ID
}
