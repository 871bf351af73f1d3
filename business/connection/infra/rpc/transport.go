// Package rpc adapts the JSON-RPC websocket client to the connection
// context's Transport port.
package rpc

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/fd1az/chain-wallet/business/connection/app"
	"github.com/fd1az/chain-wallet/business/connection/domain"
	"github.com/fd1az/chain-wallet/internal/circuitbreaker"
	"github.com/fd1az/chain-wallet/internal/jsonrpc"
	"github.com/fd1az/chain-wallet/internal/logger"
	"github.com/fd1az/chain-wallet/internal/wsconn"
)

// Backoff strategy names.
const (
	BackoffExponential = "exponential"
	BackoffConstant    = "constant"
)

// FactoryConfig holds the socket settings applied to every chain.
type FactoryConfig struct {
	Backoff          string
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	MaxReconnects    int
	PingInterval     time.Duration
	PongTimeout      time.Duration
	DialTimeout      time.Duration
	WriteTimeout     time.Duration
	MaxMessageSize   int64
	BreakerThreshold uint32
	BreakerTimeout   time.Duration
}

// DefaultFactoryConfig returns sensible defaults.
func DefaultFactoryConfig() FactoryConfig {
	ws := wsconn.DefaultConfig("", "")
	return FactoryConfig{
		Backoff:          BackoffExponential,
		InitialBackoff:   ws.InitialBackoff,
		MaxBackoff:       ws.MaxBackoff,
		MaxReconnects:    ws.MaxReconnects,
		PingInterval:     ws.PingInterval,
		PongTimeout:      ws.PongTimeout,
		DialTimeout:      ws.DialTimeout,
		WriteTimeout:     ws.WriteTimeout,
		MaxMessageSize:   ws.MaxMessageSize,
		BreakerThreshold: 5,
		BreakerTimeout:   15 * time.Second,
	}
}

// NewBackoff returns the redial strategy named by cfg.Backoff.
func (cfg FactoryConfig) NewBackoff() func() backoff.BackOff {
	initial := cfg.InitialBackoff
	if initial <= 0 {
		initial = time.Second
	}

	switch cfg.Backoff {
	case BackoffConstant:
		return func() backoff.BackOff { return backoff.NewConstantBackOff(initial) }
	default:
		return func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = initial
			if cfg.MaxBackoff > 0 {
				b.MaxInterval = cfg.MaxBackoff
			}
			b.Reset()
			return b
		}
	}
}

// Factory builds one JSON-RPC transport per chain.
type Factory struct {
	config FactoryConfig
	log    logger.LoggerInterface
}

// NewFactory creates a transport factory.
func NewFactory(cfg FactoryConfig, log logger.LoggerInterface) *Factory {
	return &Factory{config: cfg, log: log}
}

var _ app.TransportFactory = (*Factory)(nil)

// New builds the transport for chain.
func (f *Factory) New(chain domain.ChainConfig) (app.Transport, error) {
	cfg := jsonrpc.DefaultConfig(chain.Endpoint, chain.ID)

	cfg.Socket.InitialBackoff = f.config.InitialBackoff
	cfg.Socket.MaxBackoff = f.config.MaxBackoff
	cfg.Socket.MaxReconnects = f.config.MaxReconnects
	cfg.Socket.PingInterval = f.config.PingInterval
	cfg.Socket.PongTimeout = f.config.PongTimeout
	cfg.Socket.DialTimeout = f.config.DialTimeout
	cfg.Socket.WriteTimeout = f.config.WriteTimeout
	if f.config.MaxMessageSize > 0 {
		cfg.Socket.MaxMessageSize = f.config.MaxMessageSize
	}
	cfg.Socket.Backoff = f.config.NewBackoff()

	cfg.Breaker = circuitbreaker.DefaultConfig("rpc:" + chain.ID)
	if f.config.BreakerThreshold > 0 {
		cfg.Breaker.FailureThreshold = f.config.BreakerThreshold
	}
	if f.config.BreakerTimeout > 0 {
		cfg.Breaker.Timeout = f.config.BreakerTimeout
	}

	for from, to := range chain.Methods {
		cfg.Methods[from] = to
	}
	cfg.RequestsPerSecond = chain.RateLimit
	cfg.Burst = chain.Burst

	client, err := jsonrpc.New(cfg, f.log)
	if err != nil {
		return nil, err
	}
	return &Transport{client: client}, nil
}

// Transport implements app.Transport over a jsonrpc.Client.
type Transport struct {
	client *jsonrpc.Client
}

var _ app.Transport = (*Transport)(nil)

// Open dials the endpoint with retry.
func (t *Transport) Open(ctx context.Context) error {
	return t.client.Open(ctx)
}

// Close stops the transport.
func (t *Transport) Close() error {
	return t.client.Close()
}

// Connected reports whether the socket is open.
func (t *Transport) Connected() bool {
	return t.client.Connected()
}

// OnEvent translates jsonrpc lifecycle events.
func (t *Transport) OnEvent(fn func(app.TransportEvent)) {
	t.client.OnEvent(func(ev jsonrpc.Event) {
		fn(app.TransportEvent{Kind: eventKind(ev.Kind), Err: ev.Err})
	})
}

// Call invokes an RPC method.
func (t *Transport) Call(ctx context.Context, method string, result any, params ...any) error {
	return t.client.Call(ctx, method, result, params...)
}

// Subscribe opens a server-side subscription.
func (t *Transport) Subscribe(ctx context.Context, method, unsubscribeMethod string, params ...any) (app.Subscription, error) {
	sub, err := t.client.Subscribe(ctx, method, unsubscribeMethod, params...)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func eventKind(k jsonrpc.EventKind) app.EventKind {
	switch k {
	case jsonrpc.EventConnecting:
		return app.EventConnecting
	case jsonrpc.EventOpen:
		return app.EventOpen
	case jsonrpc.EventRetry:
		return app.EventRetry
	case jsonrpc.EventFailed:
		return app.EventFailed
	default:
		return app.EventClosed
	}
}
