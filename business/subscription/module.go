// Package subscription implements the subscription bounded context: batched
// per-key updates over a ready connection.
package subscription

import (
	"context"

	"github.com/fd1az/chain-wallet/business/subscription/app"
	subscriptionDI "github.com/fd1az/chain-wallet/business/subscription/di"
	"github.com/fd1az/chain-wallet/internal/di"
	"github.com/fd1az/chain-wallet/internal/logger"
	"github.com/fd1az/chain-wallet/internal/monolith"
)

// Module implements the subscription bounded context.
type Module struct{}

// RegisterServices registers the multiplexer with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, subscriptionDI.Multiplexer, func(sr di.ServiceRegistry) *app.Multiplexer {
		log := sr.Get("logger").(logger.LoggerInterface)

		mux, err := app.NewMultiplexer(log)
		if err != nil {
			panic("failed to create multiplexer: " + err.Error())
		}
		return mux
	})
	return nil
}

// Startup initializes the subscription module.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	subscriptionDI.GetMultiplexer(mono.Services())
	mono.Logger().Info(ctx, "subscription module started")
	return nil
}

// Shutdown closes every open batch.
func (m *Module) Shutdown(ctx context.Context, mono monolith.Monolith) error {
	subscriptionDI.GetMultiplexer(mono.Services()).CloseAll()
	mono.Logger().Info(ctx, "subscription module stopped")
	return nil
}
