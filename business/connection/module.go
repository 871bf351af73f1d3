// Package connection implements the connection bounded context: one
// reconnecting socket per chain and the readiness state machine on top.
package connection

import (
	"context"
	"fmt"

	"github.com/fd1az/chain-wallet/business/connection/app"
	connectionDI "github.com/fd1az/chain-wallet/business/connection/di"
	"github.com/fd1az/chain-wallet/business/connection/domain"
	"github.com/fd1az/chain-wallet/business/connection/infra/evm"
	"github.com/fd1az/chain-wallet/business/connection/infra/rpc"
	"github.com/fd1az/chain-wallet/business/connection/infra/substrate"
	"github.com/fd1az/chain-wallet/internal/config"
	"github.com/fd1az/chain-wallet/internal/di"
	"github.com/fd1az/chain-wallet/internal/logger"
	"github.com/fd1az/chain-wallet/internal/monolith"
)

// Module implements the connection bounded context.
type Module struct{}

// RegisterServices registers all connection services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register StrategyTable (private - internal dependency)
	di.RegisterToken(c, connectionDI.Strategies, func(sr di.ServiceRegistry) *app.StrategyTable {
		return DefaultStrategies()
	})

	// Register TransportFactory (private - internal dependency)
	di.RegisterToken(c, connectionDI.TransportFactory, func(sr di.ServiceRegistry) app.TransportFactory {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		return rpc.NewFactory(FactoryConfig(cfg.Transport), log)
	})

	// Register Registry (public - exposed to other modules)
	di.RegisterToken(c, connectionDI.Registry, func(sr di.ServiceRegistry) *app.Registry {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		chains, err := ChainConfigs(cfg)
		if err != nil {
			panic("failed to build chain configs: " + err.Error())
		}
		reg, err := app.NewRegistry(chains,
			connectionDI.GetStrategies(sr),
			connectionDI.GetTransportFactory(sr),
			log)
		if err != nil {
			panic("failed to create connection registry: " + err.Error())
		}
		return reg
	})

	return nil
}

// Startup connects every enabled chain. Connections converge to Ready in
// the background.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	reg := connectionDI.GetRegistry(mono.Services())

	if err := reg.ConnectAll(); err != nil {
		return fmt.Errorf("connect chains: %w", err)
	}

	log.Info(ctx, "connection module started", "chains", reg.Chains())
	return nil
}

// Shutdown disconnects every chain.
func (m *Module) Shutdown(ctx context.Context, mono monolith.Monolith) error {
	connectionDI.GetRegistry(mono.Services()).Close()
	mono.Logger().Info(ctx, "connection module stopped")
	return nil
}

// DefaultStrategies returns the built-in family table.
func DefaultStrategies() *app.StrategyTable {
	return app.NewStrategyTable(
		app.Strategy{
			Family:   domain.FamilySubstrate,
			Resolver: substrate.NewResolver(),
			Batch:    substrate.NewBatchSource(),
		},
		app.Strategy{
			Family:   domain.FamilyEVM,
			Resolver: evm.NewResolver(),
			Batch:    evm.NewBatchSource(),
		},
	)
}

// FactoryConfig maps the transport config section onto the rpc factory.
func FactoryConfig(t config.TransportConfig) rpc.FactoryConfig {
	fc := rpc.DefaultFactoryConfig()
	if t.Backoff != "" {
		fc.Backoff = t.Backoff
	}
	if t.InitialBackoff > 0 {
		fc.InitialBackoff = t.InitialBackoff
	}
	if t.MaxBackoff > 0 {
		fc.MaxBackoff = t.MaxBackoff
	}
	fc.MaxReconnects = t.MaxReconnects
	if t.PingInterval > 0 {
		fc.PingInterval = t.PingInterval
	}
	if t.PongTimeout > 0 {
		fc.PongTimeout = t.PongTimeout
	}
	if t.DialTimeout > 0 {
		fc.DialTimeout = t.DialTimeout
	}
	if t.WriteTimeout > 0 {
		fc.WriteTimeout = t.WriteTimeout
	}
	if t.MaxMessageSize > 0 {
		fc.MaxMessageSize = t.MaxMessageSize
	}
	if t.BreakerThreshold > 0 {
		fc.BreakerThreshold = t.BreakerThreshold
	}
	if t.BreakerTimeout > 0 {
		fc.BreakerTimeout = t.BreakerTimeout
	}
	return fc
}

// ChainConfigs converts the enabled config chains to domain chains, sorted
// by id.
func ChainConfigs(cfg *config.Config) ([]domain.ChainConfig, error) {
	ids := cfg.EnabledChainIDs()
	out := make([]domain.ChainConfig, 0, len(ids))
	for _, id := range ids {
		c := cfg.Chains[id]
		family, err := domain.ParseFamily(c.Family)
		if err != nil {
			return nil, fmt.Errorf("chain %s: %w", id, err)
		}

		ch := domain.NewChainConfig(id, c.Endpoint, family)
		ch.DisplayName = c.DisplayName
		if c.DefaultDecimals != nil {
			ch.DefaultDecimals = *c.DefaultDecimals
		}
		if c.DefaultSymbol != "" {
			ch.DefaultSymbol = c.DefaultSymbol
		}
		if c.DefaultSS58 != nil {
			ch.DefaultSS58 = *c.DefaultSS58
		}
		ch.Overrides = domain.PropertyOverrides{
			Decimals:   c.Properties.Decimals,
			Symbol:     c.Properties.Symbol,
			SS58Format: c.Properties.SS58Format,
		}
		for from, to := range c.Methods {
			ch.Methods[from] = to
		}
		ch.RateLimit = c.RateLimit
		ch.Burst = c.Burst
		out = append(out, ch)
	}
	return out, nil
}
