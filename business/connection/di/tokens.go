// Package di contains dependency injection tokens for the connection context.
package di

import (
	"github.com/fd1az/chain-wallet/business/connection/app"
	"github.com/fd1az/chain-wallet/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Registry = di.NewToken[*app.Registry]("connection.Registry")
)

// Private dependency tokens - internal to connection module
var (
	Strategies       = di.NewToken[*app.StrategyTable]("connection:strategies")
	TransportFactory = di.NewToken[app.TransportFactory]("connection:transportFactory")
)

// Helper functions for type-safe access
func GetRegistry(c di.ServiceRegistry) *app.Registry {
	return di.GetToken(c, Registry)
}

func GetStrategies(c di.ServiceRegistry) *app.StrategyTable {
	return di.GetToken(c, Strategies)
}

func GetTransportFactory(c di.ServiceRegistry) app.TransportFactory {
	return di.GetToken(c, TransportFactory)
}
