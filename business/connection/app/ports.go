// Package app contains the connection state machine, the registry and the
// port definitions for the connection context.
package app

import (
	"context"
	"encoding/json"

	"github.com/fd1az/chain-wallet/business/connection/domain"
)

// Caller is the query surface of an open connection.
type Caller interface {
	// Call invokes an RPC method and decodes the result into result.
	Call(ctx context.Context, method string, result any, params ...any) error

	// Subscribe opens a server-side subscription.
	Subscribe(ctx context.Context, method, unsubscribeMethod string, params ...any) (Subscription, error)
}

// Subscription is a live server-side subscription.
type Subscription interface {
	ID() string
	Notifications() <-chan json.RawMessage
	Err() <-chan error
	Unsubscribe(ctx context.Context) error
}

// EventKind is a transport lifecycle event.
type EventKind int

const (
	EventConnecting EventKind = iota // a dial attempt started
	EventOpen                        // socket open
	EventRetry                       // a dial attempt failed, another follows
	EventClosed                      // socket closed, deliberately or lost
	EventFailed                      // the transport gave up
)

func (k EventKind) String() string {
	switch k {
	case EventConnecting:
		return "connecting"
	case EventOpen:
		return "open"
	case EventRetry:
		return "retry"
	case EventClosed:
		return "closed"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TransportEvent is delivered to the transport's event handler in order.
type TransportEvent struct {
	Kind EventKind
	Err  error
}

// Transport is a persistent, reconnecting socket to one endpoint.
type Transport interface {
	Caller

	// Open dials until connected or until the transport gives up.
	Open(ctx context.Context) error

	// Close stops the transport. It must be safe to call more than once.
	Close() error

	// OnEvent registers the lifecycle handler. The handler must not block.
	OnEvent(func(TransportEvent))

	// Connected reports whether the socket is open.
	Connected() bool
}

// TransportFactory builds a transport for one chain.
type TransportFactory interface {
	New(chain domain.ChainConfig) (Transport, error)
}

// MetadataResolver performs the Connected to Ready step for a chain family.
type MetadataResolver interface {
	Resolve(ctx context.Context, caller Caller, chain domain.ChainConfig) (domain.Metadata, error)
}

// BatchSource opens one batched subscription over many keys for a chain family.
type BatchSource interface {
	// NormalizeKeys validates keys and maps them to the form the node expects.
	NormalizeKeys(md domain.Metadata, keys []string) ([]string, error)

	// Open starts the batched subscription over normalized keys.
	Open(ctx context.Context, caller Caller, keys []string) (BatchStream, error)
}

// BatchStream delivers aligned batches until closed or broken.
type BatchStream interface {
	Deliveries() <-chan domain.RawBatch
	// Err yields the error that terminated the stream.
	Err() <-chan error
	Close(ctx context.Context) error
}
