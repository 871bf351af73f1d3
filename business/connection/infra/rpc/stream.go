package rpc

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/fd1az/chain-wallet/business/connection/app"
	"github.com/fd1az/chain-wallet/business/connection/domain"
	"github.com/fd1az/chain-wallet/internal/apperror"
)

// Stream is an app.BatchStream fed by one node subscription. Family batch
// sources supply the handler that turns notifications into batches.
type Stream struct {
	sub    app.Subscription
	ctx    context.Context
	cancel context.CancelFunc

	out  chan domain.RawBatch
	errc chan error
	once sync.Once
}

var _ app.BatchStream = (*Stream)(nil)

// NewStream wraps sub. Call Run to start pumping.
func NewStream(sub app.Subscription) *Stream {
	ctx, cancel := context.WithCancel(context.Background())
	return &Stream{
		sub:    sub,
		ctx:    ctx,
		cancel: cancel,
		out:    make(chan domain.RawBatch),
		errc:   make(chan error, 1),
	}
}

// Deliveries returns the batch channel.
func (s *Stream) Deliveries() <-chan domain.RawBatch {
	return s.out
}

// Err yields the error that ended the stream.
func (s *Stream) Err() <-chan error {
	return s.errc
}

// Context is cancelled when the stream is closed.
func (s *Stream) Context() context.Context {
	return s.ctx
}

// Close stops the pump and unsubscribes. Idempotent.
func (s *Stream) Close(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.sub.Unsubscribe(ctx)
	})
	return err
}

// Emit hands b to the consumer. It returns false once the stream is closed.
func (s *Stream) Emit(b domain.RawBatch) bool {
	select {
	case s.out <- b:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// Fail records the terminating error. Only the first one is kept.
func (s *Stream) Fail(err error) {
	select {
	case s.errc <- err:
	default:
	}
}

// Run calls handle for every notification until the stream is closed, the
// subscription ends, or handle returns an error. It blocks.
func (s *Stream) Run(handle func(ctx context.Context, raw json.RawMessage) error) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case raw, ok := <-s.sub.Notifications():
			if !ok {
				select {
				case err := <-s.sub.Err():
					s.Fail(err)
				default:
					s.Fail(apperror.New(apperror.CodeConnectionClosed,
						apperror.WithContext("subscription "+s.sub.ID()+" ended")))
				}
				return
			}
			if err := handle(s.ctx, raw); err != nil {
				if s.ctx.Err() == nil {
					s.Fail(err)
				}
				return
			}
		}
	}
}
