// Package evm implements the EVM chain family: metadata resolution, the
// newHeads balance batch source and the balance decoder.
package evm

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/sync/errgroup"

	"github.com/fd1az/chain-wallet/business/connection/app"
	"github.com/fd1az/chain-wallet/business/connection/domain"
	"github.com/fd1az/chain-wallet/internal/apperror"
)

const (
	MethodChainID       = "eth_chainId"
	MethodNetVersion    = "net_version"
	MethodClientVersion = "web3_clientVersion"

	chainTypeLive = "Live"
)

// Resolver fetches EVM chain metadata.
type Resolver struct {
	now func() time.Time
}

// NewResolver creates an EVM metadata resolver.
func NewResolver() *Resolver {
	return &Resolver{now: time.Now}
}

var _ app.MetadataResolver = (*Resolver)(nil)

// Resolve queries the node in parallel. EVM nodes expose no token
// properties, so the native token comes from chain config.
func (r *Resolver) Resolve(ctx context.Context, caller app.Caller, chain domain.ChainConfig) (domain.Metadata, error) {
	var chainIDHex, netVersion, clientVersion string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return caller.Call(gctx, MethodChainID, &chainIDHex) })
	g.Go(func() error { return optional(caller.Call(gctx, MethodNetVersion, &netVersion)) })
	g.Go(func() error { return optional(caller.Call(gctx, MethodClientVersion, &clientVersion)) })
	if err := g.Wait(); err != nil {
		return domain.Metadata{}, err
	}

	chainID, err := hexutil.DecodeUint64(chainIDHex)
	if err != nil {
		return domain.Metadata{}, apperror.MetadataResolution(chain.ID,
			apperror.Decode("eth_chainId "+chainIDHex, err))
	}

	networkID := strconv.FormatUint(chainID, 10)
	if netVersion != "" {
		networkID = netVersion
	}

	clientName, version := splitClientVersion(clientVersion)
	token := domain.Token{Symbol: chain.DefaultSymbol, Decimals: chain.DefaultDecimals}
	if d := chain.Overrides.Decimals; d != nil {
		token.Decimals = *d
	}
	if s := chain.Overrides.Symbol; s != "" {
		token.Symbol = s
	}

	return domain.Metadata{
		ChainID:       chain.ID,
		ChainName:     chain.Name(),
		ChainType:     chainTypeLive,
		ClientName:    clientName,
		ClientVersion: version,
		NetworkID:     networkID,
		AddressFormat: domain.AddressFormat{Scheme: domain.AddressHex},
		Tokens:        []domain.Token{token},
		FetchedAt:     r.now(),
	}, nil
}

// splitClientVersion splits "Geth/v1.13.5-stable/linux-amd64/go1.21" into
// its name and version.
func splitClientVersion(s string) (string, string) {
	parts := strings.Split(s, "/")
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], parts[1]
	}
}

func optional(err error) error {
	if apperror.IsCode(err, apperror.CodeRPCError) {
		return nil
	}
	return err
}
