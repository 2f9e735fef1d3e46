// Package broadcast fans values out to a dynamic set of subscribers.
package broadcast

import (
	"sync"
	"sync/atomic"
)

type subscriber[T any] struct {
	fn     func(T)
	active atomic.Bool
}

// Hub delivers every published value once to each current subscriber.
// Subscribers are called synchronously, outside the hub lock, so a callback
// may subscribe or unsubscribe without deadlocking.
type Hub[T any] struct {
	mu   sync.Mutex
	subs []*subscriber[T]
}

// Subscribe registers fn and returns a function that removes it. The
// returned function is idempotent. Once it returns, fn is not called for
// values published afterwards.
func (h *Hub[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	s := &subscriber[T]{fn: fn}
	s.active.Store(true)

	h.mu.Lock()
	h.subs = append(h.subs, s)
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.active.Store(false)
			h.mu.Lock()
			defer h.mu.Unlock()
			for i, cur := range h.subs {
				if cur == s {
					h.subs = append(h.subs[:i:i], h.subs[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers v to the subscribers registered at the time of the call.
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	snapshot := make([]*subscriber[T], len(h.subs))
	copy(snapshot, h.subs)
	h.mu.Unlock()

	for _, s := range snapshot {
		if s.active.Load() {
			s.fn(v)
		}
	}
}

// Len returns the number of current subscribers.
func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
