// Package bus fans stream status events out to per-session subscribers.
package bus

import (
	"sync"

	"github.com/okian/clutch/internal/domain/model"
)

const defaultBuffer = 4

// Event is the payload published on the bus.
type Event = model.StreamEvent

// Bus delivers events to the subscribers of the event's session.
// Publish never blocks; a subscriber with a full buffer misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]chan Event
	next   uint64
	buffer int
	closed bool
}

// Option configures a Bus.
type Option func(*Bus)

// WithBuffer sets the per-subscriber channel buffer.
func WithBuffer(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// New returns an empty Bus.
func New(opts ...Option) *Bus {
	b := &Bus{subs: make(map[string]map[uint64]chan Event), buffer: defaultBuffer}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers interest in sessionID. The returned function removes the
// subscription and closes the channel; it is safe to call more than once.
func (b *Bus) Subscribe(sessionID string) (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.next++
	id := b.next
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[uint64]chan Event)
	}
	b.subs[sessionID][id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() { b.remove(sessionID, id) })
	}
}

func (b *Bus) remove(sessionID string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.subs[sessionID]
	ch, ok := set[id]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(b.subs, sessionID)
	}
	close(ch)
}

// Publish delivers ev to every current subscriber of ev.SessionID and reports
// how many received it.
func (b *Bus) Publish(ev Event) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	delivered := 0
	for _, ch := range b.subs[ev.SessionID] {
		select {
		case ch <- ev:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribers returns the number of live subscriptions for sessionID.
func (b *Bus) Subscribers(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}

// Close closes every subscription. Later subscriptions receive a closed channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sid, set := range b.subs {
		for _, ch := range set {
			close(ch)
		}
		delete(b.subs, sid)
	}
}
