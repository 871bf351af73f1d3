package domain

import (
	"time"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/fd1az/chain-wallet/internal/asset"
)

// Address schemes.
const (
	AddressSS58 = "ss58"
	AddressHex  = "hex"
)

// AddressFormat describes how account addresses are encoded on a chain.
type AddressFormat struct {
	Scheme string
	Prefix uint16 // SS58 network prefix; unused for hex
}

// Token is one token the chain reports, the first being native.
type Token struct {
	Symbol   string
	Decimals int
}

// Metadata is the chain-level display and formatting data resolved once a
// connection is open. It is only served while the connection is Ready.
type Metadata struct {
	ChainID       string
	ChainName     string
	ChainType     string
	ClientName    string
	ClientVersion string
	NetworkID     string
	AddressFormat AddressFormat
	Tokens        []Token
	SpecName      string
	SpecVersion   uint32
	FetchedAt     time.Time
}

// Native returns the chain's native token.
func (m Metadata) Native() Token {
	if len(m.Tokens) == 0 {
		return Token{}
	}
	return m.Tokens[0]
}

// Decimals returns the native token's decimals.
func (m Metadata) Decimals() int {
	return m.Native().Decimals
}

// Symbol returns the native token's symbol.
func (m Metadata) Symbol() string {
	return m.Native().Symbol
}

// Clone returns a copy that shares no memory with m.
func (m Metadata) Clone() Metadata {
	if m.Tokens != nil {
		tokens := make([]Token, len(m.Tokens))
		copy(tokens, m.Tokens)
		m.Tokens = tokens
	}
	return m
}

// NativeAsset returns the native token as an asset. Decimals beyond what a
// 256-bit value can scale are clamped.
func (m Metadata) NativeAsset() *asset.Asset {
	a, _ := asset.NewAsset(m.ChainID, m.Symbol(), min(max(m.Decimals(), 0), asset.MaxDecimals))
	return a
}

// Amount converts a planck/wei amount into whole native units.
func (m Metadata) Amount(raw *uint256.Int) decimal.Decimal {
	return asset.NewAmount(m.NativeAsset(), raw).ToDecimal()
}

// FormatAmount renders raw as "<units> <symbol>".
func (m Metadata) FormatAmount(raw *uint256.Int) string {
	return asset.NewAmount(m.NativeAsset(), raw).String()
}

// ParseAmount converts user input in whole native units into planck/wei.
func (m Metadata) ParseAmount(s string) (*uint256.Int, error) {
	amt, err := asset.ParseString(m.NativeAsset(), s)
	if err != nil {
		return nil, err
	}
	return amt.Raw(), nil
}
