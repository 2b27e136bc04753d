// Package eventbus implements the in-process event bus described in
// spec §4.7 and §9: a multi-producer, multi-consumer channel with
// per-subscription consumer tasks. Publishers never block on dispatch to
// slow consumers beyond the bus's own buffer.
package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is the typed envelope emitted on every state mutation, per
// spec §4.7: {id, event_type, timestamp, data}.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	Type      string          `json:"event_type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Handler consumes events delivered to one subscriber.
type Handler func(ctx context.Context, event Event)

// Bus fans out published events to every registered Handler. Each handler
// runs in its own dispatcher goroutine reading from its own buffered
// channel, so a slow subscriber cannot stall the others or the publisher.
type Bus struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[int]chan Event
	nextID   int

	wg sync.WaitGroup
}

// New constructs an empty Bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{logger: logger, handlers: make(map[int]chan Event)}
}

// Subscribe registers handler and starts its dispatcher goroutine, which
// runs until ctx is cancelled. The returned function unregisters handler.
func (b *Bus) Subscribe(ctx context.Context, bufferSize int, handler Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, bufferSize)
	b.handlers[id] = ch
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case event, ok := <-ch:
				if !ok {
					return
				}
				handler(ctx, event)
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
		close(ch)
	}
}

// Publish emits event to every current subscriber. A subscriber whose
// buffer is full does not block the others; the event is dropped for that
// subscriber only, and a warning is logged — the bus favors availability
// of the publisher over strict delivery to an overloaded consumer. Durable
// fan-out (webhook deliveries) is the job of the DAL-backed queue in
// pkg/webhook, not the in-process bus.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.handlers {
		select {
		case ch <- event:
		default:
			b.logger.Warn("event bus subscriber buffer full, dropping event", "subscriber", id, "event_type", event.Type)
		}
	}
}

// Wait blocks until every dispatcher goroutine has exited (their contexts
// having been cancelled).
func (b *Bus) Wait() {
	b.wg.Wait()
}

// NewEvent builds an Event with a fresh ID and the current timestamp.
func NewEvent(eventType string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      raw,
	}, nil
}
