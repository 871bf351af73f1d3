package evm

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/chain-wallet/business/connection/app"
	"github.com/fd1az/chain-wallet/business/connection/domain"
	"github.com/fd1az/chain-wallet/internal/apperror"
)

const (
	addrA = "0x52908400098527886E0F7030069857D2E4169EE7"
	addrB = "0x8617e340b3d01fa5f11f306f4090fd50e238070d"
)

type fakeCaller struct {
	mu       sync.Mutex
	results  map[string]string
	balances map[string]string
	failing  map[string]bool
	sub      *fakeSub
}

func (f *fakeCaller) Call(_ context.Context, method string, result any, params ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if method == MethodGetBalance {
		addr := params[0].(string)
		if f.failing[addr] {
			return apperror.New(apperror.CodeRPCError, apperror.WithContext(addr))
		}
		return json.Unmarshal([]byte(`"`+f.balances[addr]+`"`), result)
	}
	raw, ok := f.results[method]
	if !ok {
		return apperror.New(apperror.CodeRPCError, apperror.WithContext(method))
	}
	return json.Unmarshal([]byte(raw), result)
}

func (f *fakeCaller) Subscribe(context.Context, string, string, ...any) (app.Subscription, error) {
	return f.sub, nil
}

type fakeSub struct {
	ch chan json.RawMessage
}

func (s *fakeSub) ID() string                            { return "0x1" }
func (s *fakeSub) Notifications() <-chan json.RawMessage { return s.ch }
func (s *fakeSub) Err() <-chan error                     { return nil }
func (s *fakeSub) Unsubscribe(context.Context) error     { return nil }

func TestResolver_Resolve(t *testing.T) {
	caller := &fakeCaller{results: map[string]string{
		MethodChainID:       `"0x504"`,
		MethodNetVersion:    `"1284"`,
		MethodClientVersion: `"moonbeam/v0.35.0-abc/linux"`,
	}}

	chain := domain.NewChainConfig("moonbeam", "wss://wss.api.moonbeam.network", domain.FamilyEVM)
	chain.DisplayName = "Moonbeam"
	chain.DefaultSymbol = "GLMR"

	md, err := NewResolver().Resolve(context.Background(), caller, chain)
	require.NoError(t, err)
	assert.Equal(t, "Moonbeam", md.ChainName)
	assert.Equal(t, "1284", md.NetworkID)
	assert.Equal(t, "moonbeam", md.ClientName)
	assert.Equal(t, "v0.35.0-abc", md.ClientVersion)
	assert.Equal(t, 18, md.Decimals())
	assert.Equal(t, "GLMR", md.Symbol())
	assert.Equal(t, domain.AddressHex, md.AddressFormat.Scheme)
}

func TestResolver_ChainIDFallback(t *testing.T) {
	caller := &fakeCaller{results: map[string]string{MethodChainID: `"0x1"`}}

	md, err := NewResolver().Resolve(context.Background(), caller,
		domain.NewChainConfig("mainnet", "wss://eth.example", domain.FamilyEVM))
	require.NoError(t, err)
	assert.Equal(t, "1", md.NetworkID)
	assert.Equal(t, "ETH", md.Symbol())
}

func TestResolver_BadChainID(t *testing.T) {
	caller := &fakeCaller{results: map[string]string{MethodChainID: `"banana"`}}

	_, err := NewResolver().Resolve(context.Background(), caller,
		domain.NewChainConfig("mainnet", "wss://eth.example", domain.FamilyEVM))
	assert.True(t, apperror.IsCode(err, apperror.CodeMetadataResolutionError))
}

func TestBatchSource_NormalizeKeys(t *testing.T) {
	keys, err := NewBatchSource().NormalizeKeys(domain.Metadata{}, []string{addrB})
	require.NoError(t, err)
	assert.Equal(t, []string{"0x8617E340B3D01FA5F11F306F4090FD50E238070D"}, keys)

	_, err = NewBatchSource().NormalizeKeys(domain.Metadata{}, []string{"0x1234"})
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidKey))
}

func TestBatchSource_FetchesOnOpenAndOnHead(t *testing.T) {
	src := NewBatchSource()
	keys, err := src.NormalizeKeys(domain.Metadata{}, []string{addrA, addrB})
	require.NoError(t, err)

	sub := &fakeSub{ch: make(chan json.RawMessage, 1)}
	caller := &fakeCaller{
		balances: map[string]string{keys[0]: "0xde0b6b3a7640000", keys[1]: "0x0"},
		sub:      sub,
	}

	stream, err := src.Open(context.Background(), caller, keys)
	require.NoError(t, err)
	defer stream.Close(context.Background())

	first := receive(t, stream)
	assert.Equal(t, "latest", first.Block)
	bal, err := DecodeBalance(first.Values[0])
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000_000_000_000), bal.Free.Uint64())

	assert.Nil(t, first.Values[1])
	assert.NoError(t, first.Err(1))
	zero, err := DecodeBalance(first.Values[1])
	require.NoError(t, err)
	assert.False(t, zero.Present)
	assert.True(t, zero.Free.IsZero())

	caller.mu.Lock()
	caller.failing = map[string]bool{keys[1]: true}
	caller.mu.Unlock()
	sub.ch <- json.RawMessage(`{"number":"0x10","hash":"0xabc"}`)

	second := receive(t, stream)
	assert.Equal(t, "0x10", second.Block)
	assert.NoError(t, second.Err(0))
	assert.True(t, apperror.IsCode(second.Err(1), apperror.CodeRPCError))
	assert.Nil(t, second.Values[1])
}

func TestDecodeBalance(t *testing.T) {
	b, err := DecodeBalance(nil)
	require.NoError(t, err)
	assert.False(t, b.Present)

	_, err = DecodeBalance(make([]byte, 33))
	assert.True(t, apperror.IsCode(err, apperror.CodeDecodeError))
}

func receive(t *testing.T, s app.BatchStream) domain.RawBatch {
	t.Helper()
	select {
	case b := <-s.Deliveries():
		return b
	case <-time.After(time.Second):
		t.Fatal("no delivery")
		return domain.RawBatch{}
	}
}
