package substrate

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/chain-wallet/business/connection/app"
	"github.com/fd1az/chain-wallet/business/connection/domain"
	"github.com/fd1az/chain-wallet/internal/apperror"
)

const (
	aliceSS58      = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"
	alicePolkadot  = "15oF4uVJwmo4TdGW7VfQxNLavjCXviqxT9S1MgbjMNHr6Sp5"
	alicePublicKey = "d43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d"
	aliceAccount   = "0x26aa394eea5630e07c48ae0c9558cef7b99d880ec681799c0cf30e8886371da9" +
		"de1e86a9a8c739864cf3cc5ec2bea59f" + alicePublicKey
)

func aliceID(t *testing.T) [32]byte {
	t.Helper()
	raw, err := hex.DecodeString(alicePublicKey)
	require.NoError(t, err)
	var id [32]byte
	copy(id[:], raw)
	return id
}

func TestDecodeSS58(t *testing.T) {
	addr, err := DecodeSS58(aliceSS58)
	require.NoError(t, err)
	assert.Equal(t, uint16(42), addr.Prefix)
	assert.Equal(t, aliceID(t), addr.AccountID)

	addr, err = DecodeSS58(alicePolkadot)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), addr.Prefix)
	assert.Equal(t, aliceID(t), addr.AccountID)
}

func TestDecodeSS58_Invalid(t *testing.T) {
	tests := []string{
		"",
		"not-base58-0OIl",
		aliceSS58[:len(aliceSS58)-1] + "Z", // checksum
		"5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGK",
	}
	for _, s := range tests {
		_, err := DecodeSS58(s)
		assert.True(t, apperror.IsCode(err, apperror.CodeInvalidKey), "input %q", s)
	}
}

func TestEncodeSS58_RoundTrip(t *testing.T) {
	id := aliceID(t)

	s, err := EncodeSS58(42, id)
	require.NoError(t, err)
	assert.Equal(t, aliceSS58, s)

	for _, prefix := range []uint16{64, 1284, maxPrefix} {
		s, err := EncodeSS58(prefix, id)
		require.NoError(t, err)
		addr, err := DecodeSS58(s)
		require.NoError(t, err, "prefix %d", prefix)
		assert.Equal(t, prefix, addr.Prefix)
		assert.Equal(t, id, addr.AccountID)
	}

	_, err = EncodeSS58(maxPrefix+1, id)
	assert.Error(t, err)
}

func TestStorageKeys(t *testing.T) {
	assert.Equal(t, "26aa394eea5630e07c48ae0c9558cef7", hex.EncodeToString(Twox128([]byte("System"))))
	assert.Equal(t, "b99d880ec681799c0cf30e8886371da9", hex.EncodeToString(Twox128([]byte("Account"))))
	assert.Equal(t, aliceAccount, AccountStorageKey(aliceID(t)))
}

func TestNormalizeKey(t *testing.T) {
	key, err := NormalizeKey(aliceSS58, 42)
	require.NoError(t, err)
	assert.Equal(t, aliceAccount, key)

	key, err = NormalizeKey("0xABCD", 42)
	require.NoError(t, err)
	assert.Equal(t, "0xabcd", key)

	_, err = NormalizeKey(aliceSS58, 0)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidKey))

	_, err = NormalizeKey("0xzz", 42)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidKey))
}

func accountInfo(nonce uint32, free, reserved, frozen uint64) []byte {
	raw := make([]byte, accountInfoLen)
	binary.LittleEndian.PutUint32(raw[0:], nonce)
	binary.LittleEndian.PutUint32(raw[8:], 1) // providers
	binary.LittleEndian.PutUint64(raw[16:], free)
	binary.LittleEndian.PutUint64(raw[32:], reserved)
	binary.LittleEndian.PutUint64(raw[48:], frozen)
	return raw
}

func TestDecodeAccountInfo(t *testing.T) {
	b, err := DecodeAccountInfo(accountInfo(7, 1_500_000_000_000, 20, 500))
	require.NoError(t, err)
	assert.True(t, b.Present)
	assert.Equal(t, uint32(7), b.Nonce)
	assert.Equal(t, uint64(1_500_000_000_000), b.Free.Uint64())
	assert.Equal(t, uint64(20), b.Reserved.Uint64())
	assert.Equal(t, uint64(1_499_999_999_500), b.Transferable().Uint64())

	empty, err := DecodeAccountInfo(nil)
	require.NoError(t, err)
	assert.False(t, empty.Present)
	assert.True(t, empty.Free.IsZero())

	_, err = DecodeAccountInfo([]byte{1, 2, 3})
	assert.True(t, apperror.IsCode(err, apperror.CodeDecodeError))
}

func TestDecodeAccountInfo_FrozenLayouts(t *testing.T) {
	// misc_frozen 500, fee_frozen 900: the larger one locks the balance
	legacy := accountInfo(0, 1_000, 0, 500)
	binary.LittleEndian.PutUint64(legacy[64:], 900)
	b, err := DecodeAccountInfo(legacy)
	require.NoError(t, err)
	assert.Equal(t, uint64(900), b.Frozen.Uint64())
	assert.Equal(t, uint64(100), b.Transferable().Uint64())

	// frozen 500 with the new-logic flag in the last word
	current := accountInfo(0, 1_000, 0, 500)
	current[79] = 0x80
	b, err = DecodeAccountInfo(current)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), b.Frozen.Uint64())

	// pre-sufficients layout has no flags word
	noSuff := make([]byte, accountInfoNoSuffLen)
	binary.LittleEndian.PutUint64(noSuff[12:], 1_000)
	binary.LittleEndian.PutUint64(noSuff[44:], 200)
	binary.LittleEndian.PutUint64(noSuff[60:], 300)
	b, err = DecodeAccountInfo(noSuff)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), b.Frozen.Uint64())
}

func TestDecodeAccountInfo_LargeFree(t *testing.T) {
	raw := accountInfo(0, 0, 0, 0)
	for i := 16; i < 32; i++ {
		raw[i] = 0xff
	}
	b, err := DecodeAccountInfo(raw)
	require.NoError(t, err)
	assert.Equal(t, 128, b.Free.BitLen())
}

func TestParseProperties(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		prefix   *uint16
		decimals []int
		symbols  []string
		wantErr  bool
	}{
		{name: "empty", raw: `{}`},
		{name: "null", raw: `null`},
		{name: "scalar", raw: `{"ss58Format":0,"tokenDecimals":10,"tokenSymbol":"DOT"}`, prefix: ptr(uint16(0)), decimals: []int{10}, symbols: []string{"DOT"}},
		{name: "array", raw: `{"tokenDecimals":[12,18],"tokenSymbol":["KAR","KUSD"]}`, decimals: []int{12, 18}, symbols: []string{"KAR", "KUSD"}},
		{name: "bad decimals", raw: `{"tokenDecimals":"twelve"}`, wantErr: true},
		{name: "negative decimals", raw: `{"tokenDecimals":-1}`, wantErr: true},
		{name: "decimals too large", raw: `{"tokenDecimals":78}`, wantErr: true},
		{name: "not an object", raw: `[1,2]`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseProperties(json.RawMessage(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.prefix, p.SS58Format)
			assert.Equal(t, tt.decimals, p.Decimals)
			assert.Equal(t, tt.symbols, p.Symbols)
		})
	}
}

func ptr[T any](v T) *T { return &v }

// fakeCaller answers calls from a method table.
type fakeCaller struct {
	results map[string]string
	errs    map[string]error
	sub     *fakeSub
	params  []any
}

func (f *fakeCaller) Call(_ context.Context, method string, result any, _ ...any) error {
	if err, ok := f.errs[method]; ok {
		return err
	}
	raw, ok := f.results[method]
	if !ok {
		return apperror.New(apperror.CodeRPCError, apperror.WithContext(method))
	}
	return json.Unmarshal([]byte(raw), result)
}

func (f *fakeCaller) Subscribe(_ context.Context, _, _ string, params ...any) (app.Subscription, error) {
	f.params = params
	return f.sub, nil
}

type fakeSub struct {
	ch           chan json.RawMessage
	errs         chan error
	unsubscribed chan struct{}
}

func newFakeSub() *fakeSub {
	return &fakeSub{
		ch:           make(chan json.RawMessage, 8),
		errs:         make(chan error, 1),
		unsubscribed: make(chan struct{}),
	}
}

func (s *fakeSub) ID() string                            { return "sub-1" }
func (s *fakeSub) Notifications() <-chan json.RawMessage { return s.ch }
func (s *fakeSub) Err() <-chan error                     { return s.errs }
func (s *fakeSub) Unsubscribe(context.Context) error {
	close(s.unsubscribed)
	return nil
}

func TestResolver_Resolve(t *testing.T) {
	caller := &fakeCaller{results: map[string]string{
		MethodChain:          `"Polkadot"`,
		MethodChainType:      `"Live"`,
		MethodName:           `"Parity Polkadot"`,
		MethodVersion:        `"1.9.0"`,
		MethodProperties:     `{"ss58Format":0,"tokenDecimals":10,"tokenSymbol":"DOT"}`,
		MethodRuntimeVersion: `{"specName":"polkadot","specVersion":1002000}`,
	}}

	chain := domain.NewChainConfig("polkadot", "wss://rpc.polkadot.io", domain.FamilySubstrate)
	md, err := NewResolver().Resolve(context.Background(), caller, chain)
	require.NoError(t, err)

	assert.Equal(t, "Polkadot", md.ChainName)
	assert.Equal(t, "Live", md.ChainType)
	assert.Equal(t, "Parity Polkadot", md.ClientName)
	assert.Equal(t, 10, md.Decimals())
	assert.Equal(t, "DOT", md.Symbol())
	assert.Equal(t, domain.AddressFormat{Scheme: domain.AddressSS58, Prefix: 0}, md.AddressFormat)
	assert.Equal(t, "polkadot", md.SpecName)
	assert.Equal(t, uint32(1002000), md.SpecVersion)
}

func TestResolver_DefaultsWithoutProperties(t *testing.T) {
	caller := &fakeCaller{results: map[string]string{
		MethodChain:      `"Development"`,
		MethodChainType:  `{"Custom":"local"}`,
		MethodName:       `"substrate-node"`,
		MethodVersion:    `"4.0.0"`,
		MethodProperties: `{}`,
	}}

	chain := domain.NewChainConfig("demo", "ws://localhost:9944", domain.FamilySubstrate)
	md, err := NewResolver().Resolve(context.Background(), caller, chain)
	require.NoError(t, err)

	assert.Equal(t, 12, md.Decimals())
	assert.Equal(t, "Unit", md.Symbol())
	assert.Equal(t, uint16(42), md.AddressFormat.Prefix)
	assert.Equal(t, "local", md.ChainType)
}

func TestResolver_Overrides(t *testing.T) {
	caller := &fakeCaller{results: map[string]string{
		MethodChain:      `"Custom"`,
		MethodName:       `"node"`,
		MethodVersion:    `"1"`,
		MethodProperties: `{"ss58Format":5,"tokenDecimals":18,"tokenSymbol":"ABC"}`,
	}}

	chain := domain.NewChainConfig("custom", "ws://localhost:9944", domain.FamilySubstrate)
	chain.Overrides = domain.PropertyOverrides{Decimals: ptr(8), Symbol: "XYZ", SS58Format: ptr(uint16(7))}

	md, err := NewResolver().Resolve(context.Background(), caller, chain)
	require.NoError(t, err)
	assert.Equal(t, 8, md.Decimals())
	assert.Equal(t, "XYZ", md.Symbol())
	assert.Equal(t, uint16(7), md.AddressFormat.Prefix)
}

func TestResolver_UndecodableProperties(t *testing.T) {
	caller := &fakeCaller{results: map[string]string{
		MethodChain:      `"Broken"`,
		MethodName:       `"node"`,
		MethodVersion:    `"1"`,
		MethodProperties: `{"tokenDecimals":{"nested":true}}`,
	}}

	chain := domain.NewChainConfig("broken", "ws://localhost:9944", domain.FamilySubstrate)
	_, err := NewResolver().Resolve(context.Background(), caller, chain)
	assert.True(t, apperror.IsCode(err, apperror.CodeMetadataResolutionError))
}

func TestResolver_RequiredCallFails(t *testing.T) {
	caller := &fakeCaller{
		results: map[string]string{MethodName: `"node"`, MethodVersion: `"1"`},
		errs:    map[string]error{MethodChain: apperror.New(apperror.CodeConnectionClosed)},
	}

	chain := domain.NewChainConfig("demo", "ws://localhost:9944", domain.FamilySubstrate)
	_, err := NewResolver().Resolve(context.Background(), caller, chain)
	assert.True(t, apperror.IsCode(err, apperror.CodeConnectionClosed))
}

func TestBatchSource_MergesChanges(t *testing.T) {
	src := NewBatchSource()
	md := domain.Metadata{AddressFormat: domain.AddressFormat{Scheme: domain.AddressSS58, Prefix: 42}}

	keys, err := src.NormalizeKeys(md, []string{aliceSS58, "0xAB"})
	require.NoError(t, err)
	require.Equal(t, []string{aliceAccount, "0xab"}, keys)

	sub := newFakeSub()
	caller := &fakeCaller{sub: sub}
	stream, err := src.Open(context.Background(), caller, keys)
	require.NoError(t, err)
	assert.Equal(t, []any{keys}, caller.params)

	value := "0x" + hex.EncodeToString(accountInfo(1, 100, 0, 0))
	sub.ch <- json.RawMessage(`{"block":"0x01","changes":[["` + aliceAccount + `","` + value + `"],["0xab",null]]}`)

	first := receive(t, stream)
	assert.Equal(t, "0x01", first.Block)
	require.Len(t, first.Values, 2)
	assert.NotNil(t, first.Values[0])
	assert.Nil(t, first.Values[1])

	// only the second key changes; the first keeps its cached value
	sub.ch <- json.RawMessage(`{"block":"0x02","changes":[["0xab","0x01"]]}`)
	second := receive(t, stream)
	assert.Equal(t, first.Values[0], second.Values[0])
	assert.Equal(t, []byte{1}, second.Values[1])

	sub.ch <- json.RawMessage(`{"block":"0x03","changes":[["0xab","0xnothex"]]}`)
	third := receive(t, stream)
	assert.True(t, apperror.IsCode(third.Err(1), apperror.CodeDecodeError))
	assert.NoError(t, third.Err(0))

	require.NoError(t, stream.Close(context.Background()))
	select {
	case <-sub.unsubscribed:
	case <-time.After(time.Second):
		t.Fatal("not unsubscribed")
	}
}

func TestBatchSource_StreamEndsWithError(t *testing.T) {
	sub := newFakeSub()
	stream, err := NewBatchSource().Open(context.Background(), &fakeCaller{sub: sub}, []string{"0xab"})
	require.NoError(t, err)

	sub.errs <- apperror.New(apperror.CodeConnectionClosed)
	close(sub.ch)

	select {
	case err := <-stream.Err():
		assert.True(t, apperror.IsCode(err, apperror.CodeConnectionClosed))
	case <-time.After(time.Second):
		t.Fatal("no stream error")
	}
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
