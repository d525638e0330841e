package stream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/meridian-data/governance-gateway/internal/events"
)

type captureBus struct {
	mu     sync.Mutex
	events []events.Event
	got    chan struct{}
}

func newCaptureBus(expect int) *captureBus {
	return &captureBus{got: make(chan struct{}, expect)}
}

func (b *captureBus) Publish(_ context.Context, evt events.Event) error {
	b.mu.Lock()
	b.events = append(b.events, evt)
	b.mu.Unlock()
	b.got <- struct{}{}
	return nil
}

func (b *captureBus) list() []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]events.Event, len(b.events))
	copy(out, b.events)
	return out
}

func TestSSEEventsAreRelayedAndMalformedDropped(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("missing SSE accept header")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "event: asset.discovered\ndata: {\"id\":\"e1\",\"type\":\"asset.discovered\",\"source\":\"data-sources\"}\n\n")
		fmt.Fprint(w, "data: {not json at all\n\n")
		fmt.Fprint(w, "id: e2\ndata: {\"type\":\"scan.completed\"}\n\n")
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	bus := newCaptureBus(4)
	s := New(Options{
		URL:            srv.URL,
		Bus:            bus,
		MaxReconnects:  1,
		InitialBackoff: time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case <-bus.got:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
	cancel()
	<-done

	got := bus.list()
	if len(got) != 2 {
		t.Fatalf("expected 2 relayed events, got %d", len(got))
	}
	if got[0].ID != "e1" || got[0].Type != "asset.discovered" {
		t.Fatalf("unexpected first event: %+v", got[0])
	}
	if got[1].ID != "e2" || got[1].Type != "scan.completed" {
		t.Fatalf("unexpected second event (fallbacks not applied): %+v", got[1])
	}
}

func TestReconnectAttemptsAreCapped(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connections will be refused

	s := New(Options{
		URL:            srv.URL,
		Bus:            newCaptureBus(1),
		MaxReconnects:  3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Run(ctx); err != nil {
		t.Fatalf("exhausted reconnects should stop silently, got %v", err)
	}
	if s.State() != Stopped {
		t.Fatalf("expected stopped state, got %s", s.State())
	}
	if s.Reconnects() != 3 {
		t.Fatalf("expected exactly 3 reconnect attempts, got %d", s.Reconnects())
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	s := New(Options{URL: srv.URL, Bus: newCaptureBus(1), InitialBackoff: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Wait for the connection to establish before cancelling.
	deadline := time.After(2 * time.Second)
	for s.State() != Connected {
		select {
		case <-deadline:
			t.Fatalf("stream never connected")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop after cancel")
	}
	if s.State() != Stopped {
		t.Fatalf("expected stopped state, got %s", s.State())
	}
}

func TestWebSocketTransport(t *testing.T) {
	t.Parallel()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		msg := `{"id":"w1","type":"compliance.violation","payload":{"rule":"pii-exposure"}}`
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			return
		}
		<-r.Context().Done()
	}))
	defer srv.Close()

	bus := newCaptureBus(1)
	s := New(Options{
		URL:            "ws" + strings.TrimPrefix(srv.URL, "http"),
		Bus:            bus,
		MaxReconnects:  1,
		InitialBackoff: time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-bus.got:
	case <-time.After(2 * time.Second):
		t.Fatalf("websocket event not relayed")
	}
	cancel()
	<-done

	got := bus.list()
	if got[0].ID != "w1" || got[0].Type != events.TypeComplianceViolation {
		t.Fatalf("unexpected event: %+v", got[0])
	}
}
