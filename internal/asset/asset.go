package asset

import "fmt"

// MaxDecimals is the largest precision whose unit still fits a 256-bit value.
const MaxDecimals = 77

// Asset is the display metadata of a chain's native token.
// The symbol is NOT identity; two assets are equal when chain and symbol
// and decimals all match.
type Asset struct {
	chainID  string
	symbol   string
	decimals uint8
}

// NewAsset creates an Asset for chainID.
func NewAsset(chainID, symbol string, decimals int) (*Asset, error) {
	if decimals < 0 || decimals > MaxDecimals {
		return nil, fmt.Errorf("asset: decimals out of range: %d", decimals)
	}
	return &Asset{chainID: chainID, symbol: symbol, decimals: uint8(decimals)}, nil
}

// ChainID returns the chain the asset lives on.
func (a *Asset) ChainID() string {
	return a.chainID
}

// Symbol returns the ticker symbol (e.g., "DOT", "ETH"). May be empty.
func (a *Asset) Symbol() string {
	return a.symbol
}

// Decimals returns the number of decimal places.
func (a *Asset) Decimals() uint8 {
	return a.decimals
}

// String returns a human-readable representation.
func (a *Asset) String() string {
	if a.symbol == "" {
		return a.chainID
	}
	return a.symbol
}

// Equals compares two Assets.
func (a *Asset) Equals(other *Asset) bool {
	if a == nil || other == nil {
		return a == other
	}
	return *a == *other
}
