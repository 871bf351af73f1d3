// Package wsconn provides a production-grade WebSocket client with reconnection.
package wsconn

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/fd1az/chain-wallet/internal/apperror"
)

// State represents the connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
	StateClosed       State = "closed"
)

// ErrMaxReconnects is reported with StateFailed when the reconnect budget is spent.
var ErrMaxReconnects = errors.New("wsconn: max reconnect attempts reached")

// MessageHandler receives every inbound message in arrival order.
type MessageHandler func(ctx context.Context, msg []byte)

// StateChangeHandler receives every state change in order. The error is the
// cause for Reconnecting, Disconnected and Failed.
type StateChangeHandler func(state State, err error)

// Config holds WebSocket client configuration.
type Config struct {
	URL            string
	Name           string
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxReconnects  int // 0 = infinite
	PingInterval   time.Duration
	PongTimeout    time.Duration
	DialTimeout    time.Duration
	ReadTimeout    time.Duration // 0 = no idle deadline
	WriteTimeout   time.Duration
	MaxMessageSize int64

	// Backoff builds the reconnect delay strategy. Defaults to exponential
	// between InitialBackoff and MaxBackoff.
	Backoff func() backoff.BackOff
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(url, name string) Config {
	return Config{
		URL:            url,
		Name:           name,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		MaxReconnects:  0, // infinite
		PingInterval:   30 * time.Second,
		PongTimeout:    10 * time.Second,
		DialTimeout:    15 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxMessageSize: 16 << 20,
	}
}

// Client is a production-grade WebSocket client.
type Client struct {
	config Config

	state   State
	stateMu sync.RWMutex

	// notifyMu serializes state transitions with their handler invocation so
	// handlers observe states in order.
	notifyMu sync.Mutex

	conn   *websocket.Conn
	connMu sync.RWMutex

	onMessage     MessageHandler
	onStateChange StateChangeHandler
	handlersMu    sync.RWMutex

	// gen identifies the current run; transitions from older runs are dropped.
	gen       atomic.Uint64
	runMu     sync.Mutex
	runCancel context.CancelFunc

	reconnects atomic.Int32
}

// New creates a new WebSocket client.
func New(config Config) (*Client, error) {
	u, err := url.Parse(config.URL)
	if err != nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithCause(err),
			apperror.WithContext("invalid websocket url"))
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext(fmt.Sprintf("unsupported scheme %q", u.Scheme)))
	}

	return &Client{
		config: config,
		state:  StateDisconnected,
	}, nil
}

// OnMessage registers the inbound message handler.
func (c *Client) OnMessage(handler MessageHandler) {
	c.handlersMu.Lock()
	c.onMessage = handler
	c.handlersMu.Unlock()
}

// OnStateChange registers the state change handler. The handler runs on the
// goroutine making the transition and must not call Close synchronously.
func (c *Client) OnStateChange(handler StateChangeHandler) {
	c.handlersMu.Lock()
	c.onStateChange = handler
	c.handlersMu.Unlock()
}

// Connect establishes the WebSocket connection with a single dial attempt.
// Once connected, lost connections are redialed in the background.
func (c *Client) Connect(ctx context.Context) error {
	runCtx, gen, ok := c.begin()
	if !ok {
		return nil
	}

	c.emit(gen, StateConnecting, nil)

	conn, err := c.dial(ctx, runCtx)
	if err != nil {
		c.emit(gen, StateDisconnected, err)
		c.end(gen)
		return apperror.New(apperror.CodeTransportError,
			apperror.WithCause(err),
			apperror.WithContext(c.config.URL))
	}

	c.start(runCtx, gen, conn)
	return nil
}

// ConnectWithRetry dials until connected, the context ends, or the reconnect
// budget is spent.
func (c *Client) ConnectWithRetry(ctx context.Context) error {
	runCtx, gen, ok := c.begin()
	if !ok {
		return nil
	}

	stop := context.AfterFunc(ctx, func() {
		c.runMu.Lock()
		cancel := c.runCancel
		current := c.gen.Load() == gen
		c.runMu.Unlock()
		if current && cancel != nil && !c.IsConnected() {
			cancel()
		}
	})
	defer stop()

	conn, err := c.dialWithBackoff(runCtx, gen)
	if err != nil {
		if ctx.Err() != nil {
			c.emit(gen, StateDisconnected, ctx.Err())
		}
		c.end(gen)
		return apperror.New(apperror.CodeTransportError,
			apperror.WithCause(err),
			apperror.WithContext(c.config.URL))
	}

	c.start(runCtx, gen, conn)
	return nil
}

// Send sends a message through the WebSocket.
func (c *Client) Send(ctx context.Context, msg []byte) error {
	conn := c.currentConn()
	if conn == nil {
		return apperror.New(apperror.CodeConnectionClosed,
			apperror.WithContext("send on disconnected socket"))
	}

	if c.config.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.WriteTimeout)
		defer cancel()
	}

	if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
		return apperror.New(apperror.CodeWebSocketSendError, apperror.WithCause(err))
	}
	return nil
}

// SendJSON marshals v and sends it as a text message.
func (c *Client) SendJSON(ctx context.Context, v any) error {
	conn := c.currentConn()
	if conn == nil {
		return apperror.New(apperror.CodeConnectionClosed,
			apperror.WithContext("send on disconnected socket"))
	}

	if c.config.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.WriteTimeout)
		defer cancel()
	}

	if err := wsjson.Write(ctx, conn, v); err != nil {
		return apperror.New(apperror.CodeWebSocketSendError, apperror.WithCause(err))
	}
	return nil
}

// State returns the current connection state.
func (c *Client) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// IsConnected reports whether the socket is open.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Reconnects returns the number of redials since creation.
func (c *Client) Reconnects() int {
	return int(c.reconnects.Load())
}

// URL returns the endpoint.
func (c *Client) URL() string {
	return c.config.URL
}

// Close gracefully closes the WebSocket connection. It is idempotent and the
// client may be connected again afterwards.
func (c *Client) Close() error {
	c.runMu.Lock()
	cancel := c.runCancel
	c.runCancel = nil
	gen := c.gen.Add(1)
	c.runMu.Unlock()

	if cancel != nil {
		cancel()
	}

	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "client closing")
	}

	if c.State() != StateClosed {
		c.emit(gen, StateClosed, nil)
	}
	return nil
}

// begin starts a new run unless one is already active.
func (c *Client) begin() (context.Context, uint64, bool) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if c.runCancel != nil {
		return nil, 0, false
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.runCancel = cancel
	return ctx, c.gen.Add(1), true
}

// end releases a run that never reached the connected state.
func (c *Client) end(gen uint64) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if c.gen.Load() == gen && c.runCancel != nil {
		c.runCancel()
		c.runCancel = nil
	}
}

func (c *Client) dial(ctx, runCtx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(runCtx, cancel)
	defer stop()

	if c.config.DialTimeout > 0 {
		var cancelTimeout context.CancelFunc
		dialCtx, cancelTimeout = context.WithTimeout(dialCtx, c.config.DialTimeout)
		defer cancelTimeout()
	}

	conn, _, err := websocket.Dial(dialCtx, c.config.URL, nil)
	if err != nil {
		return nil, err
	}

	if c.config.MaxMessageSize > 0 {
		conn.SetReadLimit(c.config.MaxMessageSize)
	}
	return conn, nil
}

// dialWithBackoff retries dial until success, cancellation or exhaustion.
func (c *Client) dialWithBackoff(runCtx context.Context, gen uint64) (*websocket.Conn, error) {
	b := c.newBackoff()
	attempt := 0

	for {
		c.emit(gen, StateConnecting, nil)

		conn, err := c.dial(runCtx, runCtx)
		if err == nil {
			return conn, nil
		}
		if runCtx.Err() != nil {
			return nil, runCtx.Err()
		}

		attempt++
		if c.config.MaxReconnects > 0 && attempt > c.config.MaxReconnects {
			c.emit(gen, StateFailed, fmt.Errorf("%w: %w", ErrMaxReconnects, err))
			return nil, err
		}

		delay := b.NextBackOff()
		if delay == backoff.Stop {
			c.emit(gen, StateFailed, fmt.Errorf("%w: %w", ErrMaxReconnects, err))
			return nil, err
		}

		c.emit(gen, StateReconnecting, err)

		timer := time.NewTimer(delay)
		select {
		case <-runCtx.Done():
			timer.Stop()
			return nil, runCtx.Err()
		case <-timer.C:
		}
	}
}

func (c *Client) newBackoff() backoff.BackOff {
	if c.config.Backoff != nil {
		return c.config.Backoff()
	}

	b := backoff.NewExponentialBackOff()
	if c.config.InitialBackoff > 0 {
		b.InitialInterval = c.config.InitialBackoff
	}
	if c.config.MaxBackoff > 0 {
		b.MaxInterval = c.config.MaxBackoff
	}
	b.Reset()
	return b
}

func (c *Client) start(runCtx context.Context, gen uint64, conn *websocket.Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.emit(gen, StateConnected, nil)
	go c.supervise(runCtx, gen, conn)
}

// supervise runs the read loop and redials lost connections.
func (c *Client) supervise(runCtx context.Context, gen uint64, conn *websocket.Conn) {
	for {
		err := c.serve(runCtx, conn)

		c.connMu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.connMu.Unlock()
		conn.CloseNow()

		if runCtx.Err() != nil {
			return
		}

		c.emit(gen, StateReconnecting, err)
		c.reconnects.Add(1)

		conn, err = c.dialWithBackoff(runCtx, gen)
		if err != nil {
			c.end(gen)
			return
		}

		c.connMu.Lock()
		c.conn = conn
		c.connMu.Unlock()
		c.emit(gen, StateConnected, nil)
	}
}

// serve reads until the connection fails.
func (c *Client) serve(runCtx context.Context, conn *websocket.Conn) error {
	connCtx, cancel := context.WithCancel(runCtx)
	defer cancel()

	if c.config.PingInterval > 0 {
		go c.keepAlive(connCtx, conn)
	}

	for {
		readCtx := connCtx
		var readCancel context.CancelFunc
		if c.config.ReadTimeout > 0 {
			readCtx, readCancel = context.WithTimeout(connCtx, c.config.ReadTimeout)
		}

		_, data, err := conn.Read(readCtx)
		if readCancel != nil {
			readCancel()
		}
		if err != nil {
			return err
		}

		c.handlersMu.RLock()
		handler := c.onMessage
		c.handlersMu.RUnlock()

		if handler != nil {
			handler(connCtx, data)
		}
	}
}

// keepAlive pings the peer and drops the connection when a pong is late.
func (c *Client) keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx := ctx
			var cancel context.CancelFunc = func() {}
			if c.config.PongTimeout > 0 {
				pingCtx, cancel = context.WithTimeout(ctx, c.config.PongTimeout)
			}
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil && ctx.Err() == nil {
				conn.Close(websocket.StatusGoingAway, "pong timeout")
				return
			}
		}
	}
}

func (c *Client) currentConn() *websocket.Conn {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn
}

// emit records a transition for run gen and notifies the handler.
func (c *Client) emit(gen uint64, state State, err error) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	if c.gen.Load() != gen {
		return
	}

	c.stateMu.Lock()
	c.state = state
	c.stateMu.Unlock()

	c.handlersMu.RLock()
	handler := c.onStateChange
	c.handlersMu.RUnlock()

	if handler != nil {
		handler(state, err)
	}
}
