// Package jsonrpc implements a JSON-RPC 2.0 client with subscriptions over a
// reconnecting websocket.
package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/chain-wallet/internal/apperror"
	"github.com/fd1az/chain-wallet/internal/circuitbreaker"
	"github.com/fd1az/chain-wallet/internal/logger"
	"github.com/fd1az/chain-wallet/internal/ratelimit"
	"github.com/fd1az/chain-wallet/internal/wsconn"
)

const (
	tracerName = "github.com/fd1az/chain-wallet/internal/jsonrpc"
	meterName  = "github.com/fd1az/chain-wallet/internal/jsonrpc"

	maxOrphanIDs      = 64
	maxOrphansPerID   = 16
	logPayloadPreview = 200
)

// EventKind is a transport lifecycle event.
type EventKind string

const (
	EventConnecting EventKind = "connecting" // a dial attempt started
	EventOpen       EventKind = "open"       // socket open
	EventRetry      EventKind = "retry"      // a dial attempt failed, another follows
	EventClosed     EventKind = "closed"     // socket closed, deliberately or lost
	EventFailed     EventKind = "failed"     // redial budget exhausted
)

// Event is delivered to the OnEvent handler in order.
type Event struct {
	Kind EventKind
	Err  error
}

// Config holds JSON-RPC client configuration.
type Config struct {
	Name   string
	Socket wsconn.Config

	// Methods renames logical method names to the ones the node serves.
	Methods map[string]string

	RequestsPerSecond float64 // 0 = unlimited
	Burst             int
	Breaker           circuitbreaker.Config
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(url, name string) Config {
	return Config{
		Name:    name,
		Socket:  wsconn.DefaultConfig(url, name),
		Methods: map[string]string{},
		Breaker: circuitbreaker.DefaultConfig(name),
	}
}

type response struct {
	result json.RawMessage
	err    error
}

type callResult struct {
	raw   json.RawMessage
	epoch uint64
}

type clientMetrics struct {
	calls         metric.Int64Counter
	callErrors    metric.Int64Counter
	notifications metric.Int64Counter
	parseErrors   metric.Int64Counter
}

// Client is a JSON-RPC 2.0 client bound to one endpoint.
type Client struct {
	config  Config
	logger  logger.LoggerInterface
	ws      *wsconn.Client
	limiter *ratelimit.Limiter
	breaker *circuitbreaker.CircuitBreaker[callResult]

	nextID atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan response
	subs    map[string]*Subscription
	orphans map[string][]json.RawMessage
	epoch   uint64

	lastState wsconn.State
	onEvent   func(Event)
	eventMu   sync.RWMutex

	tracer  trace.Tracer
	metrics *clientMetrics
}

// New creates a client. The socket is not opened until Open.
func New(cfg Config, log logger.LoggerInterface) (*Client, error) {
	ws, err := wsconn.New(cfg.Socket)
	if err != nil {
		return nil, err
	}

	breakerCfg := cfg.Breaker
	if breakerCfg.Name == "" {
		breakerCfg.Name = cfg.Name
	}
	breakerCfg.IsSuccessful = func(err error) bool {
		// Node-side errors mean the node is answering; socket loss is
		// reported through lifecycle events instead.
		return err == nil ||
			apperror.IsCode(err, apperror.CodeRPCError) ||
			apperror.IsCode(err, apperror.CodeConnectionClosed)
	}

	c := &Client{
		config:    cfg,
		logger:    log,
		ws:        ws,
		limiter:   ratelimit.New(cfg.RequestsPerSecond, cfg.Burst),
		breaker:   circuitbreaker.New[callResult](breakerCfg),
		pending:   make(map[uint64]chan response),
		subs:      make(map[string]*Subscription),
		orphans:   make(map[string][]json.RawMessage),
		lastState: wsconn.StateDisconnected,
		tracer:    otel.Tracer(tracerName),
	}

	if err := c.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	ws.OnMessage(c.handleMessage)
	ws.OnStateChange(c.handleState)

	return c, nil
}

func (c *Client) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	c.metrics = &clientMetrics{}

	c.metrics.calls, err = meter.Int64Counter(
		"jsonrpc_calls_total",
		metric.WithDescription("Total JSON-RPC calls issued"),
	)
	if err != nil {
		return err
	}

	c.metrics.callErrors, err = meter.Int64Counter(
		"jsonrpc_call_errors_total",
		metric.WithDescription("JSON-RPC calls that failed"),
	)
	if err != nil {
		return err
	}

	c.metrics.notifications, err = meter.Int64Counter(
		"jsonrpc_notifications_total",
		metric.WithDescription("Subscription notifications received"),
	)
	if err != nil {
		return err
	}

	c.metrics.parseErrors, err = meter.Int64Counter(
		"jsonrpc_parse_errors_total",
		metric.WithDescription("Inbound frames that could not be parsed"),
	)
	if err != nil {
		return err
	}

	return nil
}

// OnEvent registers the lifecycle handler. It runs on the transport
// goroutine; it must not block and must not call Close synchronously.
func (c *Client) OnEvent(handler func(Event)) {
	c.eventMu.Lock()
	c.onEvent = handler
	c.eventMu.Unlock()
}

// Endpoint returns the socket URL.
func (c *Client) Endpoint() string {
	return c.ws.URL()
}

// Connected reports whether the socket is open.
func (c *Client) Connected() bool {
	return c.ws.IsConnected()
}

// Open dials the endpoint, retrying with backoff. After it returns nil the
// socket is redialed automatically whenever it is lost.
func (c *Client) Open(ctx context.Context) error {
	return c.ws.ConnectWithRetry(ctx)
}

// Close closes the socket and stops redialing. Pending calls fail and live
// subscriptions end with CodeConnectionClosed.
func (c *Client) Close() error {
	err := c.ws.Close()
	c.failAll(nil)
	return err
}

// Call invokes method and decodes the result into result (which may be nil).
func (c *Client) Call(ctx context.Context, method string, result any, params ...any) error {
	raw, _, err := c.call(ctx, method, params)
	if err != nil {
		return err
	}
	if result == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return apperror.New(apperror.CodeDecodeError,
			apperror.WithChain(c.config.Name),
			apperror.WithContext(method),
			apperror.WithCause(err))
	}
	return nil
}

// Subscribe opens a subscription with method. unsubscribeMethod is called
// with the subscription id on Unsubscribe.
func (c *Client) Subscribe(ctx context.Context, method, unsubscribeMethod string, params ...any) (*Subscription, error) {
	raw, epoch, err := c.call(ctx, method, params)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, apperror.New(apperror.CodeSubscribeFailed,
			apperror.WithChain(c.config.Name),
			apperror.WithContext(method+": empty subscription id"))
	}

	sub := newSubscription(c, raw, unsubscribeMethod)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		sub.finish(nil)
		return nil, apperror.New(apperror.CodeConnectionClosed,
			apperror.WithChain(c.config.Name),
			apperror.WithContext(method))
	}
	for _, n := range c.orphans[sub.id] {
		sub.push(n)
	}
	delete(c.orphans, sub.id)
	c.subs[sub.id] = sub
	c.mu.Unlock()

	return sub, nil
}

func (c *Client) call(ctx context.Context, method string, params []any) (json.RawMessage, uint64, error) {
	method = c.method(method)

	ctx, span := c.tracer.Start(ctx, "jsonrpc.call",
		trace.WithAttributes(
			attribute.String("chain", c.config.Name),
			attribute.String("rpc.method", method),
		),
	)
	defer span.End()

	attrs := metric.WithAttributes(attribute.String("chain", c.config.Name), attribute.String("method", method))
	c.metrics.calls.Add(ctx, 1, attrs)

	if err := c.limiter.Wait(ctx); err != nil {
		c.metrics.callErrors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, "rate limited")
		return nil, 0, apperror.New(apperror.CodeRateLimitExceeded,
			apperror.WithChain(c.config.Name),
			apperror.WithContext(method),
			apperror.WithCause(err))
	}

	res, err := c.breaker.Execute(func() (callResult, error) {
		return c.roundTrip(ctx, method, params)
	})
	if err != nil {
		c.metrics.callErrors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, "call failed")
		return nil, 0, err
	}

	return res.raw, res.epoch, nil
}

func (c *Client) roundTrip(ctx context.Context, method string, params []any) (callResult, error) {
	if params == nil {
		params = []any{}
	}

	id := c.nextID.Add(1)
	ch := make(chan response, 1)

	c.mu.Lock()
	epoch := c.epoch
	c.pending[id] = ch
	c.mu.Unlock()

	req := request{JSONRPC: version, ID: id, Method: method, Params: params}
	if err := c.ws.SendJSON(ctx, req); err != nil {
		c.dropPending(id)
		return callResult{}, apperror.Transport(c.config.Name, err)
	}

	select {
	case <-ctx.Done():
		c.dropPending(id)
		return callResult{}, apperror.New(apperror.CodeTransportError,
			apperror.WithChain(c.config.Name),
			apperror.WithContext(method),
			apperror.WithCause(ctx.Err()))
	case resp := <-ch:
		if resp.err != nil {
			return callResult{}, resp.err
		}
		return callResult{raw: resp.result, epoch: epoch}, nil
	}
}

// method applies the rename table. Keys also match lowercased, as config
// loaders fold map keys to lower case.
func (c *Client) method(name string) string {
	if renamed, ok := c.config.Methods[name]; ok && renamed != "" {
		return renamed
	}
	if renamed, ok := c.config.Methods[strings.ToLower(name)]; ok && renamed != "" {
		return renamed
	}
	return name
}

func (c *Client) dropPending(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) removeSubscription(s *Subscription) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subs[s.id] != s {
		return false
	}
	delete(c.subs, s.id)
	return true
}

// handleMessage routes responses by id and notifications by subscription id.
func (c *Client) handleMessage(ctx context.Context, data []byte) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.metrics.parseErrors.Add(ctx, 1)
		c.logger.Debug(ctx, "failed to parse frame",
			"chain", c.config.Name,
			"error", err,
			"data", string(data[:min(len(data), logPayloadPreview)]))
		return
	}

	switch {
	case msg.isResponse():
		c.handleResponse(ctx, &msg)
	case msg.isNotification():
		c.handleNotification(ctx, &msg)
	default:
		c.logger.Debug(ctx, "ignoring frame", "chain", c.config.Name,
			"data", string(data[:min(len(data), logPayloadPreview)]))
	}
}

func (c *Client) handleResponse(ctx context.Context, msg *message) {
	id, ok := parseID(msg.ID)
	if !ok {
		c.metrics.parseErrors.Add(ctx, 1)
		return
	}

	c.mu.Lock()
	ch := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()

	if ch == nil {
		c.logger.Debug(ctx, "response for unknown request", "chain", c.config.Name, "id", id)
		return
	}

	if msg.Error != nil {
		ch <- response{err: apperror.New(apperror.CodeRPCError,
			apperror.WithChain(c.config.Name),
			apperror.WithCause(msg.Error))}
		return
	}
	ch <- response{result: msg.Result}
}

func (c *Client) handleNotification(ctx context.Context, msg *message) {
	var n notification
	if err := json.Unmarshal(msg.Params, &n); err != nil || len(n.Subscription) == 0 {
		c.metrics.parseErrors.Add(ctx, 1)
		return
	}
	c.metrics.notifications.Add(ctx, 1,
		metric.WithAttributes(attribute.String("chain", c.config.Name), attribute.String("method", msg.Method)))

	key := subscriptionKey(n.Subscription)

	c.mu.Lock()
	sub := c.subs[key]
	if sub == nil {
		// The subscribe response may still be on its way to the caller.
		queued := c.orphans[key]
		if len(queued) < maxOrphansPerID && (queued != nil || len(c.orphans) < maxOrphanIDs) {
			c.orphans[key] = append(queued, n.Result)
		}
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	sub.push(n.Result)
}

// handleState translates socket states into lifecycle events.
func (c *Client) handleState(state wsconn.State, err error) {
	c.mu.Lock()
	prev := c.lastState
	c.lastState = state
	c.mu.Unlock()

	switch state {
	case wsconn.StateConnecting:
		c.emit(Event{Kind: EventConnecting})
	case wsconn.StateConnected:
		c.emit(Event{Kind: EventOpen})
	case wsconn.StateReconnecting:
		if prev == wsconn.StateConnected {
			c.failAll(err)
			c.emit(Event{Kind: EventClosed, Err: err})
			return
		}
		c.emit(Event{Kind: EventRetry, Err: err})
	case wsconn.StateDisconnected, wsconn.StateClosed:
		c.failAll(err)
		c.emit(Event{Kind: EventClosed, Err: err})
	case wsconn.StateFailed:
		c.failAll(err)
		c.emit(Event{Kind: EventFailed, Err: err})
	}
}

func (c *Client) emit(ev Event) {
	c.eventMu.RLock()
	handler := c.onEvent
	c.eventMu.RUnlock()

	if handler != nil {
		handler(ev)
	}
}

// failAll fails every pending call and ends every subscription.
func (c *Client) failAll(cause error) {
	c.mu.Lock()
	pending := c.pending
	subs := c.subs
	c.pending = make(map[uint64]chan response)
	c.subs = make(map[string]*Subscription)
	c.orphans = make(map[string][]json.RawMessage)
	c.epoch++
	c.mu.Unlock()

	if len(pending) == 0 && len(subs) == 0 {
		return
	}

	closed := func() error {
		opts := []apperror.Option{apperror.WithChain(c.config.Name)}
		if cause != nil {
			opts = append(opts, apperror.WithCause(cause))
		}
		return apperror.New(apperror.CodeConnectionClosed, opts...)
	}

	for _, ch := range pending {
		ch <- response{err: closed()}
	}
	for _, sub := range subs {
		sub.finish(closed())
	}
}
