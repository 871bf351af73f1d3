// Package broadcast provides an ordered, non-blocking fan-out of values to
// registered listeners.
package broadcast

import (
	"sync"
)

// Feed delivers every published value to every listener in publish order.
// Publish never blocks: each listener owns an unbounded queue drained by its
// own goroutine, so a slow listener delays only itself.
type Feed[T any] struct {
	mu        sync.Mutex
	listeners map[uint64]*listener[T]
	nextID    uint64
	closed    bool
}

type listener[T any] struct {
	fn        func(T)
	mu        sync.Mutex
	queue     []T
	wake      chan struct{}
	done      chan struct{}
	closed    bool
	finishing bool
}

// New creates an empty feed.
func New[T any]() *Feed[T] {
	return &Feed[T]{
		listeners: make(map[uint64]*listener[T]),
	}
}

// Subscribe registers fn. The returned cancel func is idempotent; after it
// returns fn receives no value that was not already being delivered.
func (f *Feed[T]) Subscribe(fn func(T)) (cancel func()) {
	l := &listener[T]{
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return func() {}
	}
	id := f.nextID
	f.nextID++
	f.listeners[id] = l
	f.mu.Unlock()

	go l.run()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.listeners, id)
			f.mu.Unlock()
			l.stop()
		})
	}
}

// Publish enqueues v for every current listener.
func (f *Feed[T]) Publish(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, l := range f.listeners {
		l.push(v)
	}
}

// Len returns the number of registered listeners.
func (f *Feed[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

// Close stops accepting values. Each listener still receives what was
// published before Close, then exits. Close does not wait for delivery.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	listeners := f.listeners
	f.listeners = make(map[uint64]*listener[T])
	f.mu.Unlock()

	for _, l := range listeners {
		l.finish()
	}
}

func (l *listener[T]) push(v T) {
	l.mu.Lock()
	if l.closed || l.finishing {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, v)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// finish lets run drain the queue before stopping.
func (l *listener[T]) finish() {
	l.mu.Lock()
	if l.closed || l.finishing {
		l.mu.Unlock()
		return
	}
	l.finishing = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *listener[T]) stop() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.queue = nil
	l.mu.Unlock()
	close(l.done)
}

func (l *listener[T]) run() {
	for {
		select {
		case <-l.done:
			return
		case <-l.wake:
		}

		for {
			l.mu.Lock()
			if l.closed {
				l.mu.Unlock()
				return
			}
			if len(l.queue) == 0 {
				finishing := l.finishing
				l.mu.Unlock()
				if finishing {
					l.stop()
					return
				}
				break
			}
			v := l.queue[0]
			var zero T
			l.queue[0] = zero
			l.queue = l.queue[1:]
			l.mu.Unlock()

			l.fn(v)
		}
	}
}
