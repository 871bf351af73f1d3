package app

import (
	"context"
	"sync"

	"github.com/fd1az/chain-wallet/business/connection/domain"
	"github.com/fd1az/chain-wallet/internal/apperror"
)

// Readiness is a one-shot future resolving to a Handle once the connection
// is Ready, or to an error. Each readiness carries the version it was created
// with; handles from an older version are stale.
type Readiness struct {
	version uint64
	done    chan struct{}
	once    sync.Once
	handle  *Handle
	err     error
}

func newReadiness(version uint64) *Readiness {
	return &Readiness{version: version, done: make(chan struct{})}
}

func rejectedReadiness(version uint64, err error) *Readiness {
	r := newReadiness(version)
	r.reject(err)
	return r
}

// Wait blocks until the future settles or ctx ends.
func (r *Readiness) Wait(ctx context.Context) (*Handle, error) {
	select {
	case <-r.done:
		return r.handle, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed once the future settles.
func (r *Readiness) Done() <-chan struct{} {
	return r.done
}

// Settled reports whether the future has resolved or been rejected.
func (r *Readiness) Settled() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Result returns the outcome without blocking; both are nil while pending.
func (r *Readiness) Result() (*Handle, error) {
	if !r.Settled() {
		return nil, nil
	}
	return r.handle, r.err
}

// Version returns the readiness version.
func (r *Readiness) Version() uint64 {
	return r.version
}

func (r *Readiness) pending() bool {
	return !r.Settled()
}

func (r *Readiness) resolve(h *Handle) bool {
	ok := false
	r.once.Do(func() {
		r.handle = h
		ok = true
		close(r.done)
	})
	return ok
}

func (r *Readiness) reject(err error) bool {
	ok := false
	r.once.Do(func() {
		r.err = err
		ok = true
		close(r.done)
	})
	return ok
}

// Handle is the resolved value of a readiness future: read-only metadata and
// the query surface, valid until the connection leaves Ready.
type Handle struct {
	conn     *Connection
	version  uint64
	metadata domain.Metadata
	caller   Caller
}

// ChainID returns the chain the handle belongs to.
func (h *Handle) ChainID() string {
	return h.conn.ChainID()
}

// Connection returns the owning connection.
func (h *Handle) Connection() *Connection {
	return h.conn
}

// Version returns the readiness version the handle was issued for.
func (h *Handle) Version() uint64 {
	return h.version
}

// Metadata returns a copy of the chain metadata.
func (h *Handle) Metadata() domain.Metadata {
	return h.metadata.Clone()
}

// Current reports whether the handle still belongs to the live readiness.
func (h *Handle) Current() bool {
	return h.conn.isCurrent(h.version)
}

// Call issues an RPC call, refusing with CodeStaleHandle once stale.
func (h *Handle) Call(ctx context.Context, method string, result any, params ...any) error {
	if err := h.check(); err != nil {
		return err
	}
	return h.caller.Call(ctx, method, result, params...)
}

// Subscribe opens a server-side subscription, refusing once stale.
func (h *Handle) Subscribe(ctx context.Context, method, unsubscribeMethod string, params ...any) (Subscription, error) {
	if err := h.check(); err != nil {
		return nil, err
	}
	return h.caller.Subscribe(ctx, method, unsubscribeMethod, params...)
}

// Caller returns a Caller that performs the same staleness check.
func (h *Handle) Caller() Caller {
	return h
}

func (h *Handle) check() error {
	if !h.Current() {
		return apperror.New(apperror.CodeStaleHandle,
			apperror.WithChain(h.conn.ChainID()))
	}
	return nil
}
