package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func TestBus_PublishDeliversToSubscriber(t *testing.T) {
	bus := New(slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan Event, 1)
	unsubscribe := bus.Subscribe(ctx, 4, func(_ context.Context, e Event) {
		received <- e
	})
	defer unsubscribe()

	event, err := NewEvent("deployment.applied", map[string]string{"stack_id": "s1"})
	if err != nil {
		t.Fatalf("NewEvent() error = %v", err)
	}
	bus.Publish(event)

	select {
	case got := <-received:
		if got.Type != "deployment.applied" {
			t.Errorf("Type = %q, want %q", got.Type, "deployment.applied")
		}
		if got.ID != event.ID {
			t.Errorf("ID = %v, want %v", got.ID, event.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscriber to receive event")
	}
}

func TestBus_FanOutToMultipleSubscribers(t *testing.T) {
	bus := New(slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(3)
	for i := 0; i < 3; i++ {
		unsubscribe := bus.Subscribe(ctx, 1, func(_ context.Context, _ Event) {
			wg.Done()
		})
		defer unsubscribe()
	}

	event, _ := NewEvent("agent.registered", nil)
	bus.Publish(event)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("not every subscriber received the published event")
	}
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := New(slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	count := 0
	unsubscribe := bus.Subscribe(ctx, 4, func(_ context.Context, _ Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	event, _ := NewEvent("stack.created", nil)
	bus.Publish(event)
	time.Sleep(50 * time.Millisecond)

	unsubscribe()
	time.Sleep(50 * time.Millisecond)

	bus.Publish(event)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	got := count
	mu.Unlock()
	if got != 1 {
		t.Errorf("handler invoked %d times, want 1 (events after unsubscribe should not be delivered)", got)
	}
}

func TestBus_FullBufferDropsWithoutBlocking(t *testing.T) {
	bus := New(slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	block := make(chan struct{})
	unsubscribe := bus.Subscribe(ctx, 1, func(_ context.Context, _ Event) {
		<-block
	})
	defer func() {
		close(block)
		unsubscribe()
	}()

	e1, _ := NewEvent("workorder.completed", nil)
	e2, _ := NewEvent("workorder.completed", nil)
	e3, _ := NewEvent("workorder.completed", nil)

	done := make(chan struct{})
	go func() {
		bus.Publish(e1) // consumed into the handler, which then blocks
		bus.Publish(e2) // fills the buffer
		bus.Publish(e3) // buffer full, dropped — must not block Publish
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish() blocked on a full subscriber buffer")
	}
}

func TestNewEvent_MarshalsData(t *testing.T) {
	event, err := NewEvent("health.degraded", map[string]int{"pods_ready": 1})
	if err != nil {
		t.Fatalf("NewEvent() error = %v", err)
	}
	if event.Type != "health.degraded" {
		t.Errorf("Type = %q, want %q", event.Type, "health.degraded")
	}
	if len(event.Data) == 0 {
		t.Error("Data should not be empty")
	}
	if event.ID.String() == "" {
		t.Error("ID should be populated")
	}
	if event.Timestamp.IsZero() {
		t.Error("Timestamp should be populated")
	}
}
