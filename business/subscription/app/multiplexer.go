// Package app contains the subscription multiplexer: many keys on one chain
// served by a single batched node subscription.
package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/petermattis/goid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	connapp "github.com/fd1az/chain-wallet/business/connection/app"
	conndomain "github.com/fd1az/chain-wallet/business/connection/domain"
	"github.com/fd1az/chain-wallet/business/subscription/domain"
	"github.com/fd1az/chain-wallet/internal/apperror"
	"github.com/fd1az/chain-wallet/internal/logger"
)

// closeTimeout bounds the node-side unsubscribe.
const closeTimeout = 5 * time.Second

// Decoder turns one raw value into T. A nil raw value means "no state" and
// must decode to T's explicit empty value.
type Decoder[T any] func(raw []byte) (T, error)

// Option configures one batch.
type Option func(*options)

type options struct {
	name        string
	interrupted func(error)
}

// WithName names the batch. Only one active batch per chain may hold a name.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithInterrupted registers fn, called at most once when the batch ends
// because the connection left Ready or the node stream failed. The batch is
// not resubscribed.
func WithInterrupted(fn func(error)) Option {
	return func(o *options) { o.interrupted = fn }
}

type nameKey struct {
	chainID string
	name    string
}

// Multiplexer tracks every open batch.
type Multiplexer struct {
	log     logger.LoggerInterface
	tracer  trace.Tracer
	metrics *multiplexerMetrics

	nextID atomic.Uint64

	mu      sync.Mutex
	batches map[uint64]*Handle
	names   map[nameKey]uint64
}

// NewMultiplexer creates an empty multiplexer.
func NewMultiplexer(log logger.LoggerInterface) (*Multiplexer, error) {
	m, err := newMultiplexerMetrics()
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return &Multiplexer{
		log:     log,
		tracer:  otel.Tracer(tracerName),
		metrics: m,
		batches: make(map[uint64]*Handle),
		names:   make(map[nameKey]uint64),
	}, nil
}

// Active lists open batches ordered by id.
func (m *Multiplexer) Active() []domain.BatchInfo {
	m.mu.Lock()
	out := make([]domain.BatchInfo, 0, len(m.batches))
	for _, h := range m.batches {
		out = append(out, h.Info())
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CloseAll closes every open batch.
func (m *Multiplexer) CloseAll() {
	m.mu.Lock()
	hs := make([]*Handle, 0, len(m.batches))
	for _, h := range m.batches {
		hs = append(hs, h)
	}
	m.mu.Unlock()

	for _, h := range hs {
		h.Close()
	}
}

func (m *Multiplexer) reserve(id uint64, chainID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if name != "" {
		k := nameKey{chainID, name}
		if _, taken := m.names[k]; taken {
			return apperror.New(apperror.CodeDuplicateSubscription,
				apperror.WithChain(chainID),
				apperror.WithContext("batch "+name))
		}
		m.names[k] = id
	}
	return nil
}

func (m *Multiplexer) release(id uint64, chainID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.batches, id)
	k := nameKey{chainID, name}
	if name != "" && m.names[k] == id {
		delete(m.names, k)
	}
}

// OpenBatch opens one batched subscription over keys on the handle's chain.
// onUpdate is called for every index of every delivery, in key order, from a
// single goroutine. A callback may Close its own batch.
func OpenBatch[T any](ctx context.Context, m *Multiplexer, h *connapp.Handle, keys []string,
	decode Decoder[T], onUpdate func(int, T), opts ...Option) (*Handle, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if h == nil {
		return nil, apperror.New(apperror.CodeConnectionNotReady)
	}
	conn := h.Connection()
	chainID := h.ChainID()

	ctx, span := m.tracer.Start(ctx, "subscription.open_batch",
		trace.WithAttributes(
			attribute.String("chain", chainID),
			attribute.String("name", o.name),
			attribute.Int("keys", len(keys)),
		))
	defer span.End()

	fail := func(err error) (*Handle, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if conn.State() != conndomain.StateReady {
		return fail(apperror.New(apperror.CodeConnectionNotReady, apperror.WithChain(chainID)))
	}
	if !h.Current() {
		return fail(apperror.New(apperror.CodeStaleHandle, apperror.WithChain(chainID)))
	}
	if len(keys) == 0 {
		return fail(apperror.Validation(apperror.CodeRequiredField, "keys"))
	}
	if decode == nil || onUpdate == nil {
		return fail(apperror.Validation(apperror.CodeRequiredField, "decoder and callback"))
	}

	source := conn.Strategy().Batch
	if source == nil {
		return fail(apperror.New(apperror.CodeUnsupportedFamily,
			apperror.WithChain(chainID),
			apperror.WithContext("no batch source for "+string(conn.Chain().Family))))
	}

	normalized, err := source.NormalizeKeys(h.Metadata(), keys)
	if err != nil {
		return fail(err)
	}

	id := m.nextID.Add(1)
	if err := m.reserve(id, chainID, o.name); err != nil {
		return fail(err)
	}

	stream, err := source.Open(ctx, h.Caller(), normalized)
	if err != nil {
		m.release(id, chainID, o.name)
		return fail(apperror.New(apperror.CodeSubscribeFailed,
			apperror.WithChain(chainID),
			apperror.WithCause(err)))
	}

	b := &Handle{
		m:      m,
		conn:   h,
		id:     id,
		name:   o.name,
		keys:   append([]string(nil), keys...),
		opened: time.Now(),
		stream: stream,
		lost:   make(chan struct{}),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	b.active.Store(true)
	b.interruptFn = o.interrupted
	b.deliver = func(batch conndomain.RawBatch) {
		b.deliverBatch(batch, func(i int, raw []byte) error {
			v, err := decode(raw)
			if err != nil {
				return err
			}
			b.invoke(func() { onUpdate(i, v) })
			return nil
		})
	}

	m.mu.Lock()
	m.batches[id] = b
	m.mu.Unlock()
	m.metrics.activeBatches.Add(ctx, 1, metric.WithAttributes(attribute.String("chain", chainID)))

	b.stopWatch = conn.OnTransition(func(tr conndomain.Transition) {
		if tr.To != conndomain.StateReady {
			b.signalLost()
		}
	})
	if !h.Current() {
		b.signalLost()
	}

	go b.run()

	m.log.Info(ctx, "batch subscription opened",
		"chain", chainID, "batch", id, "name", o.name, "keys", len(keys))
	return b, nil
}

// Handle is one open batched subscription.
type Handle struct {
	m      *Multiplexer
	conn   *connapp.Handle
	id     uint64
	name   string
	keys   []string
	opened time.Time
	stream connapp.BatchStream

	deliver     func(conndomain.RawBatch)
	interruptFn func(error)
	stopWatch   func()

	active      atomic.Bool
	interrupted atomic.Pointer[error]

	// cbMu serializes callbacks against Close.
	cbMu   sync.Mutex
	closed bool

	// pump is the goroutine id of run, which holds cbMu during callbacks.
	pump atomic.Int64

	lostOnce sync.Once
	lost     chan struct{}
	doneOnce sync.Once
	done     chan struct{}
	exited   chan struct{}
}

// ID returns the multiplexer-assigned id.
func (b *Handle) ID() uint64 {
	return b.id
}

// Name returns the batch name, if any.
func (b *Handle) Name() string {
	return b.name
}

// Keys returns the keys as passed to OpenBatch.
func (b *Handle) Keys() []string {
	return append([]string(nil), b.keys...)
}

// Active reports whether the batch is still delivering.
func (b *Handle) Active() bool {
	return b.active.Load()
}

// Interrupted returns the interruption error, or nil if the batch was not
// interrupted.
func (b *Handle) Interrupted() error {
	if p := b.interrupted.Load(); p != nil {
		return *p
	}
	return nil
}

// Info describes the batch.
func (b *Handle) Info() domain.BatchInfo {
	return domain.BatchInfo{
		ID:      b.id,
		Name:    b.name,
		ChainID: b.conn.ChainID(),
		Keys:    b.Keys(),
		Version: b.conn.Version(),
		Opened:  b.opened,
	}
}

// Close ends the batch. It is idempotent and no callback runs after it
// returns.
func (b *Handle) Close() {
	if b.pump.Load() == goid.Get() {
		// Inside a callback: invoke already holds cbMu and run exits once
		// the callback returns.
		b.closed = true
		b.stop()
		return
	}

	b.cbMu.Lock()
	b.closed = true
	b.cbMu.Unlock()

	b.stop()
	<-b.exited
}

func (b *Handle) stop() {
	b.doneOnce.Do(func() {
		b.active.Store(false)
		close(b.done)
		if b.stopWatch != nil {
			b.stopWatch()
		}
		b.m.release(b.id, b.conn.ChainID(), b.name)
		b.m.metrics.activeBatches.Add(context.Background(), -1,
			metric.WithAttributes(attribute.String("chain", b.conn.ChainID())))
	})
}

func (b *Handle) signalLost() {
	b.lostOnce.Do(func() { close(b.lost) })
}

func (b *Handle) run() {
	b.pump.Store(goid.Get())
	defer close(b.exited)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := b.stream.Close(ctx); err != nil {
			b.m.log.Debug(ctx, "batch unsubscribe failed", "chain", b.conn.ChainID(), "batch", b.id, "error", err)
		}
	}()

	for {
		select {
		case <-b.done:
			return
		case <-b.lost:
			b.interrupt(apperror.New(apperror.CodeSubscriptionInterrupted,
				apperror.WithChain(b.conn.ChainID()),
				apperror.WithContext("connection left ready")))
			return
		case err := <-b.stream.Err():
			b.interrupt(apperror.New(apperror.CodeSubscriptionInterrupted,
				apperror.WithChain(b.conn.ChainID()),
				apperror.WithCause(err)))
			return
		case batch, ok := <-b.stream.Deliveries():
			if !ok {
				b.interrupt(apperror.New(apperror.CodeSubscriptionInterrupted,
					apperror.WithChain(b.conn.ChainID()),
					apperror.WithContext("stream ended")))
				return
			}
			b.deliver(batch)
		}
	}
}

func (b *Handle) interrupt(err error) {
	select {
	case <-b.done:
		return
	default:
	}

	b.interrupted.Store(&err)
	b.stop()

	ctx := context.Background()
	b.m.metrics.interrupted.Add(ctx, 1, metric.WithAttributes(attribute.String("chain", b.conn.ChainID())))
	b.m.log.Warn(ctx, "batch subscription interrupted",
		"chain", b.conn.ChainID(), "batch", b.id, "name", b.name, "error", err)

	if fn := b.interruptFn; fn != nil {
		b.invoke(func() { fn(err) })
	}
}

// invoke runs fn unless the batch was closed.
func (b *Handle) invoke(fn func()) {
	b.cbMu.Lock()
	defer b.cbMu.Unlock()
	if b.closed {
		return
	}
	fn()
}

func (b *Handle) deliverBatch(batch conndomain.RawBatch, each func(int, []byte) error) {
	ctx := context.Background()
	chain := attribute.String("chain", b.conn.ChainID())

	for i := range b.keys {
		select {
		case <-b.done:
			return
		default:
		}

		if err := batch.Err(i); err != nil {
			b.m.metrics.readErrors.Add(ctx, 1, metric.WithAttributes(chain))
			b.m.log.Warn(ctx, "batch value unavailable",
				"chain", b.conn.ChainID(), "batch", b.id, "index", i, "error", err)
			continue
		}

		var raw []byte
		if i < len(batch.Values) {
			raw = batch.Values[i]
		}
		if err := each(i, raw); err != nil {
			b.m.metrics.decodeErrors.Add(ctx, 1, metric.WithAttributes(chain))
			b.m.log.Warn(ctx, "batch value decode failed",
				"chain", b.conn.ChainID(), "batch", b.id, "index", i, "key", b.keys[i],
				"error", apperror.Decode(b.keys[i], err))
			continue
		}
		b.m.metrics.deliveries.Add(ctx, 1, metric.WithAttributes(chain))
	}
}
