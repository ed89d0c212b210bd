// Package events relays upload progress to interested observers and retains
// a bounded history so pull-based consumers can catch up.
package events

import (
	"sync"
	"time"
)

// Event is one progress update for one upload attempt.
type Event struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	UploadID  string    `json:"uploadId"`
	Status    string    `json:"status"`
	Stage     string    `json:"stage,omitempty"`
	Percent   int       `json:"percent"`
	Message   string    `json:"message,omitempty"`
}

// Handler consumes events. Delivery is synchronous and in publish order;
// handlers must not block. A handler may read the bus and manage
// subscriptions, but must not call Publish.
type Handler func(Event)

// Bus fans events out to subscribers and keeps the most recent ones for
// incremental reads. Delivery is fire-and-forget: there is no acknowledgement
// and a subscriber that never drains sees nothing extra.
type Bus struct {
	// deliverMu serializes Publish calls so events reach subscribers in
	// sequence order. Bus state is guarded by mu alone, which is not held
	// while handlers run.
	deliverMu  sync.Mutex
	mu         sync.Mutex
	nextSeq    int64
	maxHistory int
	history    []Event
	subs       map[string]Handler
	order      []string
}

// NewBus creates a bus retaining at most maxHistory events.
func NewBus(maxHistory int) *Bus {
	if maxHistory <= 0 {
		maxHistory = 500
	}
	return &Bus{
		maxHistory: maxHistory,
		history:    make([]Event, 0, maxHistory),
		subs:       make(map[string]Handler),
	}
}

// Subscribe registers handler under id. Subscribing an id that is already
// registered replaces the previous handler, so double subscription never
// causes double delivery.
func (b *Bus) Subscribe(id string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.subs[id]; !exists {
		b.order = append(b.order, id)
	}
	b.subs[id] = handler
}

// Unsubscribe removes the handler registered under id. Unknown ids are a
// no-op.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.subs[id]; !exists {
		return
	}
	delete(b.subs, id)
	for i, sid := range b.order {
		if sid == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Publish assigns a sequence number and timestamp, appends the event to the
// history, and delivers it to every subscriber in registration order. Events
// for one attempt are observed in the order they were published.
func (b *Bus) Publish(event Event) Event {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	b.mu.Lock()
	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.history = append(b.history, event)
	if len(b.history) > b.maxHistory {
		trim := len(b.history) - b.maxHistory
		b.history = append([]Event(nil), b.history[trim:]...)
	}

	handlers := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		handlers = append(handlers, b.subs[id])
	}
	b.mu.Unlock()

	for _, handler := range handlers {
		handler(event)
	}
	return event
}

// Since returns retained events with sequence strictly greater than seq.
func (b *Bus) Since(seq int64) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Event
	for _, event := range b.history {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}
