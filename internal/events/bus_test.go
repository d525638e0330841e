package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestPublishReachesSubscribers(t *testing.T) {
	t.Parallel()

	bus := NewBus(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, unsub, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer unsub()

	payload, _ := json.Marshal(map[string]string{"asset": "orders_db"})
	if err := bus.Publish(ctx, Event{Type: TypeAssetDiscovered, Source: "data-sources", Payload: payload}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case evt := <-ch:
		if evt.Type != TypeAssetDiscovered {
			t.Fatalf("unexpected event type: %s", evt.Type)
		}
		if evt.ID == "" {
			t.Fatalf("expected generated event ID")
		}
		if evt.Timestamp.IsZero() {
			t.Fatalf("expected timestamp to be stamped")
		}
	case <-time.After(time.Second):
		t.Fatalf("event not delivered")
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	t.Parallel()

	bus := NewBus(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Never drained; fills its buffer.
	_, unsub, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer unsub()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			_ = bus.Publish(ctx, Event{Type: TypeScanCompleted})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked on slow subscriber")
	}
}

func TestSubscribeCancelClosesChannel(t *testing.T) {
	t.Parallel()

	bus := NewBus(Options{})
	ctx := context.Background()

	ch, unsub, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	unsub()
	unsub() // second cancel is a no-op

	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed after cancel")
	}
}
