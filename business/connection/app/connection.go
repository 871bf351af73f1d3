package app

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/chain-wallet/business/connection/domain"
	"github.com/fd1az/chain-wallet/internal/apperror"
	"github.com/fd1az/chain-wallet/internal/broadcast"
	"github.com/fd1az/chain-wallet/internal/logger"
)

// DefaultResolveTimeout bounds one metadata resolution.
const DefaultResolveTimeout = 30 * time.Second

// Connection owns one chain's transport and its readiness state machine:
//
//	Disconnected -> Connecting -> Connected -> Ready
//	any running state -> Failed (transport gave up or metadata failed)
//	Ready -> Disconnected (socket closed; a fresh pending future is installed)
//	Failed -> Connecting only through Reconnect
//
// Transitions are serialized by mu and published in order.
type Connection struct {
	chain          domain.ChainConfig
	strategy       Strategy
	factory        TransportFactory
	log            logger.LoggerInterface
	tracer         trace.Tracer
	metrics        *connectionMetrics
	resolveTimeout time.Duration

	mu         sync.Mutex
	state      domain.State
	transport  Transport
	runCtx     context.Context
	runCancel  context.CancelFunc
	ready      *Readiness
	version    uint64
	resolveSeq uint64
	retryCount int
	lastErr    error
	metadata   *domain.Metadata
	hint       *domain.Metadata
	connected  bool
	startedAt  time.Time

	transitions *broadcast.Feed[domain.Transition]
	connFlag    *broadcast.Feed[bool]
}

func newConnection(chain domain.ChainConfig, strategy Strategy, factory TransportFactory,
	log logger.LoggerInterface, m *connectionMetrics) *Connection {
	c := &Connection{
		chain:          chain,
		strategy:       strategy,
		factory:        factory,
		log:            log,
		tracer:         otel.Tracer(tracerName),
		metrics:        m,
		resolveTimeout: DefaultResolveTimeout,
		state:          domain.StateDisconnected,
		transitions:    broadcast.New[domain.Transition](),
		connFlag:       broadcast.New[bool](),
	}
	c.version = 1
	c.ready = newReadiness(c.version)
	return c
}

// ChainID returns the chain identifier.
func (c *Connection) ChainID() string {
	return c.chain.ID
}

// Endpoint returns the immutable endpoint.
func (c *Connection) Endpoint() string {
	return c.chain.Endpoint
}

// Chain returns the chain configuration.
func (c *Connection) Chain() domain.ChainConfig {
	return c.chain
}

// Strategy returns the family strategy resolved at construction.
func (c *Connection) Strategy() Strategy {
	return c.strategy
}

// State returns the current state.
func (c *Connection) State() domain.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Availability collapses the state into the tri-state shown to users.
func (c *Connection) Availability() domain.Availability {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.state == domain.StateReady:
		return domain.AvailabilityReady
	case c.state == domain.StateFailed:
		return domain.AvailabilityUnavailable
	case c.state == domain.StateDisconnected && c.transport == nil:
		return domain.AvailabilityUnavailable
	default:
		return domain.AvailabilityReconnecting
	}
}

// RetryCount returns failed dial attempts since the socket was last open.
func (c *Connection) RetryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retryCount
}

// LastError returns the most recent failure cause.
func (c *Connection) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// IsConnected mirrors whether the transport reports an open socket.
func (c *Connection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Metadata returns the resolved metadata. It is only available while Ready.
func (c *Connection) Metadata() (domain.Metadata, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != domain.StateReady || c.metadata == nil {
		return domain.Metadata{}, false
	}
	return c.metadata.Clone(), true
}

// MetadataHint returns persisted metadata seeded from outside. It is never
// authoritative and is not served through Metadata.
func (c *Connection) MetadataHint() (domain.Metadata, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hint == nil {
		return domain.Metadata{}, false
	}
	return c.hint.Clone(), true
}

// SeedMetadata stores a metadata hint.
func (c *Connection) SeedMetadata(md domain.Metadata) {
	cp := md.Clone()
	c.mu.Lock()
	c.hint = &cp
	c.mu.Unlock()
}

// Ready returns the current readiness future. Repeated calls return the same
// future until the connection leaves Ready or is reset.
func (c *Connection) Ready() *Readiness {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// OnTransition registers fn for every state transition, in order.
func (c *Connection) OnTransition(fn func(domain.Transition)) (cancel func()) {
	return c.transitions.Subscribe(fn)
}

// WatchConnected registers fn for every change of the socket-open flag.
func (c *Connection) WatchConnected(fn func(bool)) (cancel func()) {
	return c.connFlag.Subscribe(fn)
}

// Connect starts the transport. It is a no-op unless the connection is
// Disconnected and idle; failures surface through the readiness future.
func (c *Connection) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != domain.StateDisconnected || c.transport != nil {
		return
	}
	c.startLocked()
}

// Reconnect resets retry bookkeeping and connects again. It is the only way
// out of Failed.
func (c *Connection) Reconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.retryCount = 0

	switch c.state {
	case domain.StateFailed:
		c.lastErr = nil
		c.replaceReadinessLocked()
		c.startLocked()
	case domain.StateDisconnected:
		if c.transport == nil {
			c.startLocked()
		}
	}
}

// Disconnect tears down the transport and moves to Disconnected from any
// state. Callers waiting on the pending future observe CodeConnectionClosed.
func (c *Connection) Disconnect() {
	c.mu.Lock()

	t := c.transport
	cancel := c.runCancel
	if c.state == domain.StateDisconnected && t == nil {
		c.mu.Unlock()
		return
	}

	c.transport = nil
	c.runCancel = nil
	c.resolveSeq++
	c.metadata = nil
	c.setConnectedLocked(false)

	c.ready.reject(apperror.New(apperror.CodeConnectionClosed,
		apperror.WithChain(c.chain.ID),
		apperror.WithContext("disconnect requested")))
	c.replaceReadinessLocked()
	c.setStateLocked(domain.StateDisconnected, nil)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if t != nil {
		if err := t.Close(); err != nil {
			c.log.Warn(context.Background(), "transport close failed", "chain", c.chain.ID, "error", err)
		}
	}
}

// close disconnects and releases the observer feeds.
func (c *Connection) close() {
	c.Disconnect()
	c.transitions.Close()
	c.connFlag.Close()
}

func (c *Connection) isCurrent(version uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == domain.StateReady && c.ready.version == version
}

// startLocked opens a new transport. Caller holds mu.
func (c *Connection) startLocked() {
	t, err := c.factory.New(c.chain)
	if err != nil {
		c.setStateLocked(domain.StateConnecting, nil)
		c.failLocked(apperror.Transport(c.chain.ID, err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.transport = t
	c.runCtx = ctx
	c.runCancel = cancel
	c.startedAt = time.Now()

	t.OnEvent(func(ev TransportEvent) { c.handleEvent(t, ev) })
	c.setStateLocked(domain.StateConnecting, nil)

	go func() {
		if err := t.Open(ctx); err != nil && ctx.Err() == nil {
			c.handleEvent(t, TransportEvent{Kind: EventFailed, Err: err})
		}
	}()
}

// handleEvent applies one transport event. Events from a transport that is
// no longer current are ignored.
func (c *Connection) handleEvent(t Transport, ev TransportEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transport != t {
		return
	}

	switch ev.Kind {
	case EventConnecting:
		if c.state == domain.StateDisconnected {
			c.startedAt = time.Now()
			c.setStateLocked(domain.StateConnecting, nil)
		}

	case EventRetry:
		if c.state == domain.StateConnecting {
			c.retryCount++
			c.lastErr = ev.Err
			c.log.Debug(context.Background(), "dial attempt failed",
				"chain", c.chain.ID, "retry", c.retryCount, "error", ev.Err)
		}

	case EventOpen:
		if c.state != domain.StateConnecting && c.state != domain.StateDisconnected {
			return
		}
		c.retryCount = 0
		c.setConnectedLocked(true)
		c.setStateLocked(domain.StateConnected, nil)
		c.resolveLocked()

	case EventClosed:
		c.setConnectedLocked(false)
		switch c.state {
		case domain.StateConnecting, domain.StateConnected:
			// The pending future stays; the transport redials.
			c.resolveSeq++
			c.setStateLocked(domain.StateDisconnected, ev.Err)
		case domain.StateReady:
			c.metadata = nil
			c.resolveSeq++
			c.replaceReadinessLocked()
			c.setStateLocked(domain.StateDisconnected, ev.Err)
		}

	case EventFailed:
		c.setConnectedLocked(false)
		if c.state == domain.StateFailed {
			return
		}
		c.failLocked(apperror.Transport(c.chain.ID, ev.Err))
	}
}

// resolveLocked starts metadata resolution for the current socket.
func (c *Connection) resolveLocked() {
	c.resolveSeq++
	seq := c.resolveSeq
	t := c.transport
	runCtx := c.runCtx

	go func() {
		ctx, cancel := context.WithTimeout(runCtx, c.resolveTimeout)
		defer cancel()

		ctx, span := c.tracer.Start(ctx, "connection.resolve_metadata",
			trace.WithAttributes(
				attribute.String("chain", c.chain.ID),
				attribute.String("family", string(c.chain.Family)),
			),
		)
		defer span.End()

		md, err := c.strategy.Resolver.Resolve(ctx, t, c.chain)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "metadata resolution failed")
		}
		c.finishResolution(ctx, seq, t, md, err)
	}()
}

// socketLost reports whether err came from the socket closing rather than
// from the node's answers.
func socketLost(t Transport, err error) bool {
	if t.Connected() {
		return false
	}
	return apperror.IsCode(err, apperror.CodeConnectionClosed) || apperror.IsCode(err, apperror.CodeTransportError)
}

func (c *Connection) finishResolution(ctx context.Context, seq uint64, t Transport, md domain.Metadata, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	attrs := metric.WithAttributes(attribute.String("chain", c.chain.ID))

	if seq != c.resolveSeq || c.transport != t || c.state != domain.StateConnected {
		c.metrics.staleResolutions.Add(ctx, 1, attrs)
		return
	}

	if err != nil {
		if socketLost(t, err) {
			// The socket went away under the resolver; the transport redials
			// and the pending future stays.
			c.setConnectedLocked(false)
			c.resolveSeq++
			c.setStateLocked(domain.StateDisconnected, err)
			return
		}
		c.metrics.metadataFailures.Add(ctx, 1, attrs)
		c.failLocked(apperror.MetadataResolution(c.chain.ID, err))
		return
	}

	md.ChainID = c.chain.ID
	if md.FetchedAt.IsZero() {
		md.FetchedAt = time.Now()
	}
	c.metadata = &md

	h := &Handle{
		conn:     c,
		version:  c.ready.version,
		metadata: md.Clone(),
		caller:   t,
	}
	if !c.ready.resolve(h) {
		// A settled future cannot carry this socket's handle.
		c.ready = newReadiness(c.nextVersionLocked())
		h.version = c.ready.version
		c.ready.resolve(h)
	}

	c.metrics.readinessLatency.Record(ctx, time.Since(c.startedAt).Seconds(), attrs)
	c.setStateLocked(domain.StateReady, nil)

	c.log.Info(ctx, "chain ready",
		"chain", c.chain.ID,
		"name", md.ChainName,
		"decimals", md.Decimals(),
		"symbol", md.Symbol(),
		"version", h.version)
}

// failLocked moves to Failed and stops the transport. Caller holds mu.
func (c *Connection) failLocked(err error) {
	c.lastErr = err
	c.metadata = nil
	c.resolveSeq++
	c.setConnectedLocked(false)

	if !c.ready.reject(err) {
		c.ready = rejectedReadiness(c.nextVersionLocked(), err)
	}

	t := c.transport
	cancel := c.runCancel
	c.transport = nil
	c.runCancel = nil

	c.setStateLocked(domain.StateFailed, err)
	c.log.Error(context.Background(), "chain connection failed", "chain", c.chain.ID, "error", err)

	if cancel != nil {
		cancel()
	}
	if t != nil {
		// Close from a fresh goroutine: this may run on the transport's own
		// event handler.
		go t.Close()
	}
}

// replaceReadinessLocked installs a fresh pending future unless the current
// one is still pending.
func (c *Connection) replaceReadinessLocked() {
	if c.ready.pending() {
		return
	}
	c.ready = newReadiness(c.nextVersionLocked())
}

func (c *Connection) nextVersionLocked() uint64 {
	c.version++
	return c.version
}

func (c *Connection) setConnectedLocked(v bool) {
	if c.connected == v {
		return
	}
	c.connected = v
	c.connFlag.Publish(v)
}

func (c *Connection) setStateLocked(to domain.State, err error) {
	from := c.state
	if from == to {
		return
	}
	c.state = to

	ctx := context.Background()
	c.metrics.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("chain", c.chain.ID),
		attribute.String("from", from.String()),
		attribute.String("to", to.String()),
	))
	if to == domain.StateReady {
		c.metrics.readyConnections.Add(ctx, 1, metric.WithAttributes(attribute.String("chain", c.chain.ID)))
	} else if from == domain.StateReady {
		c.metrics.readyConnections.Add(ctx, -1, metric.WithAttributes(attribute.String("chain", c.chain.ID)))
	}

	c.transitions.Publish(domain.Transition{
		ChainID: c.chain.ID,
		From:    from,
		To:      to,
		Version: c.ready.version,
		Err:     err,
		At:      time.Now(),
	})

	c.log.Debug(ctx, "connection transition",
		"chain", c.chain.ID, "from", from.String(), "to", to.String(), "version", c.ready.version)
}
