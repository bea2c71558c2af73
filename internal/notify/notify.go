// Package notify implements a small observer registry with per-subscriber
// panic isolation.
package notify

import (
	"log/slog"
	"sync"
)

type subscriber[T any] struct {
	id int64
	fn func(T)
}

// Notifier broadcasts values to subscribers in registration order.
// It never replays history: a subscriber only sees values published
// after it subscribed.
type Notifier[T any] struct {
	mu     sync.Mutex
	subs   []subscriber[T]
	nextID int64
	logger *slog.Logger
}

// NewNotifier creates an empty notifier.
func NewNotifier[T any](logger *slog.Logger) *Notifier[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier[T]{logger: logger}
}

// Subscribe registers a callback and returns its unsubscribe func.
// Unsubscribing twice is harmless.
func (n *Notifier[T]) Subscribe(fn func(T)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	id := n.nextID
	n.subs = append(n.subs, subscriber[T]{id: id, fn: fn})

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		for i, s := range n.subs {
			if s.id == id {
				n.subs = append(n.subs[:i], n.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish invokes every subscriber with v, in registration order.
// A panic in one callback is recovered and logged; later subscribers
// are still invoked.
func (n *Notifier[T]) Publish(v T) {
	n.mu.Lock()
	subs := make([]subscriber[T], len(n.subs))
	copy(subs, n.subs)
	n.mu.Unlock()

	for _, s := range subs {
		n.invoke(s, v)
	}
}

func (n *Notifier[T]) invoke(s subscriber[T], v T) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("subscriber callback panicked",
				"subscriber_id", s.id,
				"panic", r,
			)
		}
	}()
	s.fn(v)
}

// Len returns the number of registered subscribers.
func (n *Notifier[T]) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}
