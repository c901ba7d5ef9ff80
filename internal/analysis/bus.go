package analysis

import "sync"

// Change is a component-data change notification. Origin carries the
// marker of the write that produced it so subscribers can recognize their
// own writes and break update cycles.
type Change struct {
	CycleID string
	Kind    Kind
	Payload Payload
	Origin  string
}

// Bus fans change notifications out to subscribers. Delivery is
// synchronous in publish order; handlers must not block.
type Bus struct {
	mu   sync.RWMutex
	subs []func(Change)
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Subscribe(handler func(Change)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, handler)
}

func (b *Bus) Publish(change Change) {
	b.mu.RLock()
	handlers := make([]func(Change), len(b.subs))
	copy(handlers, b.subs)
	b.mu.RUnlock()
	for _, handler := range handlers {
		handler(change)
	}
}
