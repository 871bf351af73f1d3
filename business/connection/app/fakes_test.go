package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/fd1az/chain-wallet/business/connection/domain"
	"github.com/fd1az/chain-wallet/internal/logger"
)

// mockLogger discards everything.
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Debugc(ctx context.Context, caller int, msg string, args ...any) {}
func (m *mockLogger) Info(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Infoc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Warnc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Error(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Errorc(ctx context.Context, caller int, msg string, args ...any) {}

var _ logger.LoggerInterface = (*mockLogger)(nil)

// fakeTransport is driven by the test through emit.
type fakeTransport struct {
	mu      sync.Mutex
	handler func(TransportEvent)
	opened  chan struct{}
	closes  atomic.Int32
	calls   atomic.Int32
	callErr error

	connected atomic.Bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{opened: make(chan struct{}, 1)}
}

func (f *fakeTransport) Open(ctx context.Context) error {
	select {
	case f.opened <- struct{}{}:
	default:
	}
	return nil
}

func (f *fakeTransport) Close() error {
	f.closes.Add(1)
	return nil
}

func (f *fakeTransport) OnEvent(fn func(TransportEvent)) {
	f.mu.Lock()
	f.handler = fn
	f.mu.Unlock()
}

func (f *fakeTransport) Connected() bool { return f.connected.Load() }

func (f *fakeTransport) Call(ctx context.Context, method string, result any, params ...any) error {
	f.calls.Add(1)
	return f.callErr
}

func (f *fakeTransport) Subscribe(ctx context.Context, method, unsub string, params ...any) (Subscription, error) {
	return nil, errors.New("not supported")
}

func (f *fakeTransport) emit(kind EventKind, err error) {
	switch kind {
	case EventOpen:
		f.connected.Store(true)
	case EventClosed, EventFailed:
		f.connected.Store(false)
	}

	f.mu.Lock()
	fn := f.handler
	f.mu.Unlock()
	fn(TransportEvent{Kind: kind, Err: err})
}

// drop marks the socket gone without reporting it yet.
func (f *fakeTransport) drop() {
	f.connected.Store(false)
}

// fakeFactory records every transport it builds.
type fakeFactory struct {
	mu         sync.Mutex
	transports []*fakeTransport
	err        error
}

func (f *fakeFactory) New(chain domain.ChainConfig) (Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	t := newFakeTransport()
	f.transports = append(f.transports, t)
	return t, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transports)
}

func (f *fakeFactory) last() *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transports[len(f.transports)-1]
}

// fakeResolver returns md, or err, optionally after gate is closed.
type fakeResolver struct {
	mu    sync.Mutex
	md    domain.Metadata
	err   error
	gate  chan struct{}
	calls atomic.Int32
}

func (r *fakeResolver) Resolve(ctx context.Context, caller Caller, chain domain.ChainConfig) (domain.Metadata, error) {
	r.calls.Add(1)

	r.mu.Lock()
	gate, md, err := r.gate, r.md, r.err
	r.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.Metadata{}, ctx.Err()
		}
	}
	return md, err
}

func (r *fakeResolver) set(md domain.Metadata, err error) {
	r.mu.Lock()
	r.md, r.err = md, err
	r.mu.Unlock()
}
