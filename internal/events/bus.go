package events

import (
	"context"
	"sync"
)

// Bus is a buffered fan-out of lifecycle events. Publishing never blocks
// the producer once the bus is closed, and subscriber callbacks run on
// their own goroutines so a slow consumer cannot stall dispatch.
type Bus struct {
	events chan Event

	mu          sync.RWMutex
	subscribers map[Kind][]func(Event)

	closeOnce sync.Once
	closed    chan struct{}
}

// NewBus creates a bus with the given channel buffer size.
func NewBus(bufferSize int) *Bus {
	return &Bus{
		events:      make(chan Event, bufferSize),
		subscribers: make(map[Kind][]func(Event)),
		closed:      make(chan struct{}),
	}
}

// Publish enqueues an event for dispatch. It is a no-op on a closed bus.
func (b *Bus) Publish(ev Event) {
	select {
	case <-b.closed:
		return
	case b.events <- ev:
	}
}

// Subscribe registers a callback for one event kind.
func (b *Bus) Subscribe(kind Kind, callback func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[kind] = append(b.subscribers[kind], callback)
}

// Dispatch delivers queued events to subscribers until the context is
// cancelled or the bus is closed. Call it once, on its own goroutine.
func (b *Bus) Dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.closed:
			return
		case ev := <-b.events:
			b.mu.RLock()
			callbacks := b.subscribers[ev.Kind]
			b.mu.RUnlock()

			for _, cb := range callbacks {
				go func(callback func(Event)) {
					defer func() {
						recover() // a panicking subscriber must not kill dispatch
					}()
					callback(ev)
				}(cb)
			}
		}
	}
}

// Pending returns the number of events waiting for dispatch.
func (b *Bus) Pending() int {
	return len(b.events)
}

// Close stops the bus. Subsequent publishes are dropped.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		close(b.closed)
	})
}
