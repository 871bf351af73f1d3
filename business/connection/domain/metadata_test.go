package domain

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
)

func TestMetadata_FormatAmount(t *testing.T) {
	md := Metadata{Tokens: []Token{{Symbol: "DOT", Decimals: 10}}}

	assert.Equal(t, "1.5 DOT", md.FormatAmount(uint256.NewInt(15_000_000_000)))
	assert.Equal(t, "0 DOT", md.FormatAmount(nil))
	assert.Equal(t, 10, md.Decimals())
}

func TestMetadata_ParseAmount(t *testing.T) {
	md := Metadata{ChainID: "kusama", Tokens: []Token{{Symbol: "KSM", Decimals: 12}}}

	raw, err := md.ParseAmount("0.25")
	assert.NoError(t, err)
	assert.Equal(t, uint64(250_000_000_000), raw.Uint64())
	assert.Equal(t, "0.25 KSM", md.FormatAmount(raw))

	_, err = md.ParseAmount("0.0000000000001")
	assert.Error(t, err)
}

func TestMetadata_CloneIsIndependent(t *testing.T) {
	md := Metadata{Tokens: []Token{{Symbol: "KSM", Decimals: 12}}}
	cp := md.Clone()
	cp.Tokens[0].Symbol = "XXX"

	assert.Equal(t, "KSM", md.Symbol())
}

func TestMetadata_NoTokens(t *testing.T) {
	var md Metadata
	assert.Equal(t, 0, md.Decimals())
	assert.Equal(t, "", md.Symbol())
}

func TestNewChainConfig_Defaults(t *testing.T) {
	sub := NewChainConfig("demo", "ws://127.0.0.1:9944", FamilySubstrate)
	assert.Equal(t, 12, sub.DefaultDecimals)
	assert.Equal(t, "Unit", sub.DefaultSymbol)
	assert.Equal(t, uint16(42), sub.DefaultSS58)
	assert.Equal(t, "demo", sub.Name())

	evm := NewChainConfig("moonbeam", "ws://127.0.0.1:8546", FamilyEVM)
	assert.Equal(t, 18, evm.DefaultDecimals)
}

func TestParseFamily(t *testing.T) {
	f, err := ParseFamily(" Substrate ")
	assert.NoError(t, err)
	assert.Equal(t, FamilySubstrate, f)

	_, err = ParseFamily("cosmos")
	assert.Error(t, err)
}
