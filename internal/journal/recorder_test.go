package journal

import (
	"context"
	"encoding/json"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/meridian-data/governance-gateway/internal/events"
	"github.com/meridian-data/governance-gateway/internal/store"
)

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func TestRecorderPersistsRedeliveredEventsOnce(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "journal.db"), "sqlite")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	bus := events.NewBus(events.Options{})
	rec := New(Options{Store: st, Bus: bus, Logger: log.New(testWriter{t}, "", 0)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()

	evt := events.Event{
		ID:        "evt-1",
		Type:      events.TypeScanCompleted,
		Source:    "scans",
		Timestamp: time.Now().UTC(),
		Payload:   json.RawMessage(`{"scan":"s-1"}`),
	}
	// The same event arriving twice (a broker redelivery) must not
	// duplicate the journal row or surface as a persistence failure.
	for i := 0; i < 2; i++ {
		if err := bus.Publish(ctx, evt); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
	}

	deadline := time.After(2 * time.Second)
	for {
		entries, err := st.ListJournal(10)
		if err != nil {
			t.Fatalf("list journal failed: %v", err)
		}
		if len(entries) > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("event never journaled")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// Give the second delivery time to land before counting rows.
	time.Sleep(50 * time.Millisecond)
	entries, err := st.ListJournal(10)
	if err != nil {
		t.Fatalf("list journal failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected a single journal row, got %d", len(entries))
	}
	if entries[0].ID != "evt-1" || entries[0].Type != events.TypeScanCompleted {
		t.Fatalf("unexpected journal entry: %+v", entries[0])
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
