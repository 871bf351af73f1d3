package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
app:
  log_level: debug
transport:
  backoff: constant
  initial_backoff: 2s
chains:
  polkadot:
    endpoint: wss://rpc.polkadot.io
    family: substrate
    default_decimals: 10
    default_symbol: DOT
    default_ss58: 0
  westend:
    endpoint: wss://westend-rpc.polkadot.io
    family: substrate
    disabled: true
    methods:
      chain_getBlockHash: chain_getHead
  moonbeam:
    endpoint: wss://wss.api.moonbeam.network
    family: evm
    rate_limit: 20
    burst: 5
    properties:
      decimals: 18
      symbol: GLMR
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, "chain-wallet", cfg.App.Name)
	assert.Equal(t, BackoffConstant, cfg.Transport.Backoff)
	assert.Equal(t, 2*time.Second, cfg.Transport.InitialBackoff)
	assert.Equal(t, 30*time.Second, cfg.Transport.MaxBackoff)
	assert.Equal(t, int64(16<<20), cfg.Transport.MaxMessageSize)

	assert.Equal(t, []string{"moonbeam", "polkadot", "westend"}, cfg.ChainIDs())
	assert.Equal(t, []string{"moonbeam", "polkadot"}, cfg.EnabledChainIDs())

	dot := cfg.Chains["polkadot"]
	require.NotNil(t, dot.DefaultDecimals)
	assert.Equal(t, 10, *dot.DefaultDecimals)
	require.NotNil(t, dot.DefaultSS58)
	assert.Equal(t, uint16(0), *dot.DefaultSS58)

	assert.Equal(t, "chain_getHead", cfg.Chains["westend"].Methods["chain_getblockhash"])

	glmr := cfg.Chains["moonbeam"]
	assert.Equal(t, FamilyEVM, glmr.Family)
	assert.Equal(t, 20.0, glmr.RateLimit)
	assert.Equal(t, "GLMR", glmr.Properties.Symbol)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("WALLET_LOG_LEVEL", "warn")
	t.Setenv("WALLET_MAX_RECONNECTS", "7")

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.App.LogLevel)
	assert.Equal(t, 7, cfg.Transport.MaxReconnects)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		chain ChainConfig
		ok    bool
	}{
		{"valid substrate", ChainConfig{Endpoint: "ws://127.0.0.1:9944", Family: FamilySubstrate}, true},
		{"missing endpoint", ChainConfig{Family: FamilySubstrate}, false},
		{"http endpoint", ChainConfig{Endpoint: "http://127.0.0.1:9933", Family: FamilySubstrate}, false},
		{"unknown family", ChainConfig{Endpoint: "ws://127.0.0.1:9944", Family: "cosmos"}, false},
		{"negative rate", ChainConfig{Endpoint: "ws://127.0.0.1:8546", Family: FamilyEVM, RateLimit: -1}, false},
		{"ss58 too large", ChainConfig{Endpoint: "ws://127.0.0.1:9944", Family: FamilySubstrate, DefaultSS58: ptr[uint16](20000)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Transport: TransportConfig{Backoff: BackoffExponential},
				Chains:    map[string]ChainConfig{"demo": tt.chain},
			}
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_NoChains(t *testing.T) {
	cfg := &Config{Transport: TransportConfig{Backoff: BackoffExponential}}
	assert.Error(t, cfg.Validate())
}

func ptr[T any](v T) *T { return &v }
