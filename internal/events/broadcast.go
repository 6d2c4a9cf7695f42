// Package events provides in-process fan-out of domain events to
// subscribers via buffered channels.
package events

import "sync"

const defaultBuffer = 64

// Broadcaster fans out values to all subscribers via buffered channels.
// It keeps the API intentionally small so call sites can stay straightforward.
type Broadcaster[T any] struct {
	mu     sync.RWMutex
	subs   map[chan T]struct{}
	buffer int
}

// NewBroadcaster creates a broadcaster with the given per-subscriber buffer.
func NewBroadcaster[T any](buffer int) *Broadcaster[T] {
	if buffer < 1 {
		buffer = defaultBuffer
	}
	return &Broadcaster[T]{
		subs:   make(map[chan T]struct{}),
		buffer: buffer,
	}
}

// Publish sends the value to all subscribers, dropping if a reader is slow.
// Delivery order within one channel follows publish order.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- v:
		default:
			// drop slow consumer
		}
	}
}

// Subscribe returns a channel that receives values until Unsubscribe is called.
func (b *Broadcaster[T]) Subscribe() chan T {
	ch := make(chan T, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the channel and closes it.
func (b *Broadcaster[T]) Unsubscribe(ch chan T) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// StateBroadcaster is a Broadcaster that remembers the last published value
// and delivers it to every new subscriber immediately.
type StateBroadcaster[T any] struct {
	mu     sync.Mutex
	b      *Broadcaster[T]
	latest T
	seeded bool
}

// NewStateBroadcaster creates a state broadcaster with the given buffer.
func NewStateBroadcaster[T any](buffer int) *StateBroadcaster[T] {
	return &StateBroadcaster[T]{b: NewBroadcaster[T](buffer)}
}

// Publish records the value as latest and fans it out.
func (s *StateBroadcaster[T]) Publish(v T) {
	s.mu.Lock()
	s.latest = v
	s.seeded = true
	s.mu.Unlock()
	s.b.Publish(v)
}

// Latest returns the last published value, if any.
func (s *StateBroadcaster[T]) Latest() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.seeded
}

// Subscribe registers a channel primed with the latest value.
func (s *StateBroadcaster[T]) Subscribe() chan T {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.b.Subscribe()
	if s.seeded {
		ch <- s.latest
	}
	return ch
}

// Unsubscribe removes the channel and closes it.
func (s *StateBroadcaster[T]) Unsubscribe(ch chan T) {
	s.b.Unsubscribe(ch)
}
