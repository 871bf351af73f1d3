package substrate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fd1az/chain-wallet/business/connection/app"
	"github.com/fd1az/chain-wallet/business/connection/domain"
	"github.com/fd1az/chain-wallet/internal/apperror"
	"github.com/fd1az/chain-wallet/internal/asset"
)

// RPC methods used during resolution.
const (
	MethodChain          = "system_chain"
	MethodChainType      = "system_chainType"
	MethodName           = "system_name"
	MethodVersion        = "system_version"
	MethodProperties     = "system_properties"
	MethodRuntimeVersion = "state_getRuntimeVersion"
)

// Resolver fetches Substrate chain metadata.
type Resolver struct {
	now func() time.Time
}

// NewResolver creates a Substrate metadata resolver.
func NewResolver() *Resolver {
	return &Resolver{now: time.Now}
}

var _ app.MetadataResolver = (*Resolver)(nil)

type runtimeVersion struct {
	SpecName    string `json:"specName"`
	SpecVersion uint32 `json:"specVersion"`
}

// Properties is the decoded system_properties response.
type Properties struct {
	SS58Format *uint16
	Decimals   []int
	Symbols    []string
}

// Resolve queries the node in parallel and merges the answer with the
// chain's configured defaults and overrides.
func (r *Resolver) Resolve(ctx context.Context, caller app.Caller, chain domain.ChainConfig) (domain.Metadata, error) {
	var (
		chainName, clientName, clientVersion string
		chainType                            json.RawMessage
		rawProps                             json.RawMessage
		runtime                              runtimeVersion
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return caller.Call(gctx, MethodChain, &chainName) })
	g.Go(func() error { return caller.Call(gctx, MethodName, &clientName) })
	g.Go(func() error { return caller.Call(gctx, MethodVersion, &clientVersion) })
	g.Go(func() error { return optional(caller.Call(gctx, MethodChainType, &chainType)) })
	g.Go(func() error { return optional(caller.Call(gctx, MethodProperties, &rawProps)) })
	g.Go(func() error { return optional(caller.Call(gctx, MethodRuntimeVersion, &runtime)) })
	if err := g.Wait(); err != nil {
		return domain.Metadata{}, err
	}

	props, err := ParseProperties(rawProps)
	if err != nil {
		return domain.Metadata{}, apperror.MetadataResolution(chain.ID, err)
	}

	md := domain.Metadata{
		ChainID:       chain.ID,
		ChainName:     chainName,
		ChainType:     parseChainType(chainType),
		ClientName:    clientName,
		ClientVersion: clientVersion,
		SpecName:      runtime.SpecName,
		SpecVersion:   runtime.SpecVersion,
		FetchedAt:     r.now(),
	}
	if md.ChainName == "" {
		md.ChainName = chain.Name()
	}

	prefix := chain.DefaultSS58
	if props.SS58Format != nil {
		prefix = *props.SS58Format
	}
	if o := chain.Overrides.SS58Format; o != nil {
		prefix = *o
	}
	md.AddressFormat = domain.AddressFormat{Scheme: domain.AddressSS58, Prefix: prefix}
	md.Tokens = tokens(props, chain)
	return md, nil
}

// ParseProperties decodes a system_properties object. tokenDecimals and
// tokenSymbol may each be a scalar or an array. Empty input yields empty
// properties.
func ParseProperties(raw json.RawMessage) (Properties, error) {
	var props Properties
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return props, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return props, fmt.Errorf("properties: %w", err)
	}

	if v, ok := fields["ss58Format"]; ok && !isNull(v) {
		var p uint16
		if err := json.Unmarshal(v, &p); err != nil {
			return props, fmt.Errorf("ss58Format: %w", err)
		}
		if p > maxPrefix {
			return props, fmt.Errorf("ss58Format %d out of range", p)
		}
		props.SS58Format = &p
	}
	if v, ok := fields["tokenDecimals"]; ok {
		d, err := scalarOrArray[int](v)
		if err != nil {
			return props, fmt.Errorf("tokenDecimals: %w", err)
		}
		for _, n := range d {
			if n < 0 || n > asset.MaxDecimals {
				return props, fmt.Errorf("tokenDecimals: %d out of range", n)
			}
		}
		props.Decimals = d
	}
	if v, ok := fields["tokenSymbol"]; ok {
		s, err := scalarOrArray[string](v)
		if err != nil {
			return props, fmt.Errorf("tokenSymbol: %w", err)
		}
		props.Symbols = s
	}
	return props, nil
}

func tokens(props Properties, chain domain.ChainConfig) []domain.Token {
	n := max(len(props.Decimals), len(props.Symbols), 1)
	out := make([]domain.Token, n)
	for i := range out {
		t := domain.Token{Decimals: chain.DefaultDecimals, Symbol: chain.DefaultSymbol}
		if i < len(props.Decimals) {
			t.Decimals = props.Decimals[i]
		}
		if i < len(props.Symbols) && props.Symbols[i] != "" {
			t.Symbol = props.Symbols[i]
		}
		out[i] = t
	}

	if d := chain.Overrides.Decimals; d != nil {
		out[0].Decimals = *d
	}
	if s := chain.Overrides.Symbol; s != "" {
		out[0].Symbol = s
	}
	return out
}

func scalarOrArray[T any](raw json.RawMessage) ([]T, error) {
	if isNull(raw) {
		return nil, nil
	}
	var one T
	if err := json.Unmarshal(raw, &one); err == nil {
		return []T{one}, nil
	}
	var many []T
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, err
	}
	return many, nil
}

// parseChainType reads "Live", "Development" or {"Custom":"name"}.
func parseChainType(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj map[string]string
	if err := json.Unmarshal(raw, &obj); err == nil {
		for k, v := range obj {
			if v != "" {
				return v
			}
			return k
		}
	}
	return ""
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// optional swallows node-side errors for methods some nodes do not expose.
func optional(err error) error {
	if apperror.IsCode(err, apperror.CodeRPCError) {
		return nil
	}
	return err
}
