// Package bus fans guessing-loop events out to notifiers without blocking the loop.
package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Event types emitted by the orchestrator.
const (
	EventStart    = "start"
	EventAttempt  = "attempt"
	EventSuccess  = "success"
	EventReset    = "reset"
	EventFallback = "fallback"
	EventBackoff  = "backoff"

	// TopicAll subscribers receive every event type.
	TopicAll = "*"
)

// Event is one notable thing that happened to an agent.
type Event struct {
	RunID      string    `json:"run_id"`
	AgentID    int       `json:"agent_id"`
	AgentCount int       `json:"agent_count"`
	Type       string    `json:"type"`
	Candidate  int       `json:"candidate"`
	Outcome    string    `json:"outcome,omitempty"`
	Counter    *int      `json:"counter,omitempty"`
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// EventBus decouples the orchestrator from its notifiers.
type EventBus struct {
	events  chan *Event
	subs    map[string][]func(*Event)
	dropped int
	mu      sync.RWMutex
}

// NewEventBus creates a bus buffering up to size events.
func NewEventBus(size int) *EventBus {
	if size <= 0 {
		size = 100
	}
	return &EventBus{
		events: make(chan *Event, size),
		subs:   make(map[string][]func(*Event)),
	}
}

// Publish enqueues evt. It never blocks: when the buffer is full the event
// is dropped and counted.
func (b *EventBus) Publish(evt *Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	select {
	case b.events <- evt:
	default:
		b.mu.Lock()
		b.dropped++
		b.mu.Unlock()
		slog.Warn("EventBus full, dropping event", "type", evt.Type, "candidate", evt.Candidate)
	}
}

// Subscribe registers a callback for an event type, or TopicAll.
func (b *EventBus) Subscribe(eventType string, callback func(*Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventType] = append(b.subs[eventType], callback)
}

// Dispatch delivers events to subscribers until ctx is cancelled.
// This should be run as a goroutine.
func (b *EventBus) Dispatch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			b.drain()
			return ctx.Err()
		case evt := <-b.events:
			b.deliver(evt)
		}
	}
}

// drain delivers whatever is already buffered so a final success is not lost on shutdown.
func (b *EventBus) drain() {
	for {
		select {
		case evt := <-b.events:
			b.deliver(evt)
		default:
			return
		}
	}
}

func (b *EventBus) deliver(evt *Event) {
	b.mu.RLock()
	callbacks := append([]func(*Event){}, b.subs[evt.Type]...)
	callbacks = append(callbacks, b.subs[TopicAll]...)
	b.mu.RUnlock()

	for _, cb := range callbacks {
		cb(evt)
	}
}

// Pending returns the number of undelivered events.
func (b *EventBus) Pending() int {
	return len(b.events)
}

// Dropped returns how many events were discarded on a full buffer.
func (b *EventBus) Dropped() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}
