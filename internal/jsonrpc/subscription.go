package jsonrpc

import (
	"context"
	"encoding/json"
	"sync"
)

// Subscription is one server-side subscription. Notifications are delivered
// in arrival order; the channel is closed when the subscription ends. If it
// ended because of an error, Err yields that error before the close.
type Subscription struct {
	client *Client
	id     string
	rawID  json.RawMessage
	unsub  string

	mu     sync.Mutex
	queue  []json.RawMessage
	closed bool
	wake   chan struct{}
	done   chan struct{}

	out   chan json.RawMessage
	errCh chan error
	once  sync.Once
}

func newSubscription(c *Client, rawID json.RawMessage, unsub string) *Subscription {
	s := &Subscription{
		client: c,
		id:     subscriptionKey(rawID),
		rawID:  rawID,
		unsub:  unsub,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		out:    make(chan json.RawMessage),
		errCh:  make(chan error, 1),
	}
	go s.run()
	return s
}

// ID returns the node-assigned subscription id.
func (s *Subscription) ID() string {
	return s.id
}

// Notifications returns the result payload of every push.
func (s *Subscription) Notifications() <-chan json.RawMessage {
	return s.out
}

// Err yields at most one error when the subscription is terminated by the client.
func (s *Subscription) Err() <-chan error {
	return s.errCh
}

// Done is closed once the subscription has ended.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Unsubscribe ends the subscription locally and, when the socket is still
// open, asks the node to drop it. Idempotent.
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	if !s.client.removeSubscription(s) {
		return nil
	}
	s.finish(nil)

	if s.unsub == "" || !s.client.Connected() {
		return nil
	}

	var ok bool
	return s.client.Call(ctx, s.unsub, &ok, s.rawID)
}

func (s *Subscription) push(msg json.RawMessage) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, msg)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) finish(err error) {
	s.once.Do(func() {
		if err != nil {
			s.errCh <- err
		}
		s.mu.Lock()
		s.closed = true
		s.queue = nil
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *Subscription) run() {
	defer close(s.out)

	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.done:
				return
			case <-s.wake:
			}
			continue
		}
		next := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- next:
		case <-s.done:
			return
		}
	}
}
