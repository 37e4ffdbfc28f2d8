package grpc

import (
	"sync"

	"github.com/emmett/voxtask/internal/app"
)

// EventStream is an app.EventSink that fans events out to WatchEvents
// subscribers. Slow subscribers miss events rather than block publishers.
type EventStream struct {
	mu   sync.Mutex
	subs map[int]chan app.Event
	next int
}

// NewEventStream creates an empty stream
func NewEventStream() *EventStream {
	return &EventStream{subs: make(map[int]chan app.Event)}
}

// Publish implements app.EventSink
func (e *EventStream) Publish(ev app.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe returns a channel of events and a func that ends the
// subscription
func (e *EventStream) Subscribe() (<-chan app.Event, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.next
	e.next++
	ch := make(chan app.Event, 32)
	e.subs[id] = ch

	return ch, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if sub, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(sub)
		}
	}
}

// Subscribers returns the number of active subscriptions
func (e *EventStream) Subscribers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}
