// Package bus provides a small multi-producer broadcast channel used for all
// cross-component events: device hotplug, decoded messages, transport/BPM
// changes and executed actions.
//
// Publish never blocks. A subscriber that falls behind loses events: when its
// buffer is full the event is dropped for that subscriber only. Real-time
// flow beats completeness here.
package bus

import "sync"

// Bus broadcasts values of one event type to named subscribers.
type Bus[T any] struct {
	mu     sync.RWMutex
	subs   map[string]chan T
	closed bool
}

// New creates an empty bus.
func New[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[string]chan T)}
}

// Subscribe registers a named subscriber with the given buffer size and
// returns its receive channel. Subscribing twice under one name replaces the
// old subscription (the old channel is closed).
func (b *Bus[T]) Subscribe(name string, buffer int) <-chan T {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan T, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	if old, ok := b.subs[name]; ok {
		close(old)
	}
	b.subs[name] = ch
	return ch
}

// Unsubscribe removes a subscriber and closes its channel. Unknown names are
// a no-op, so teardown paths can call it unconditionally.
func (b *Bus[T]) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[name]; ok {
		close(ch)
		delete(b.subs, name)
	}
}

// Publish delivers v to every subscriber that has buffer room. It never
// blocks the producer.
func (b *Bus[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- v:
		default:
		}
	}
}

// Close closes all subscriber channels. Publish and Subscribe become no-ops.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for name, ch := range b.subs {
		close(ch)
		delete(b.subs, name)
	}
}
