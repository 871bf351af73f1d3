// Package di contains dependency injection tokens for the subscription context.
package di

import (
	"github.com/fd1az/chain-wallet/business/subscription/app"
	"github.com/fd1az/chain-wallet/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Multiplexer = di.NewToken[*app.Multiplexer]("subscription.Multiplexer")
)

func GetMultiplexer(c di.ServiceRegistry) *app.Multiplexer {
	return di.GetToken(c, Multiplexer)
}
