// Package journal records relayed governance events for replay and
// debugging, keeping the journal bounded.
package journal

import (
	"context"
	"log"

	"github.com/meridian-data/governance-gateway/internal/events"
	"github.com/meridian-data/governance-gateway/internal/store"
)

// Options configure the recorder.
type Options struct {
	Store  *store.Store
	Bus    *events.Bus
	Keep   int
	Logger *log.Logger
}

// Recorder subscribes to the bus and persists every event.
type Recorder struct {
	store  *store.Store
	bus    *events.Bus
	keep   int
	logger *log.Logger

	written int
}

// New creates a recorder.
func New(opts Options) *Recorder {
	if opts.Keep <= 0 {
		opts.Keep = 10000
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Recorder{
		store:  opts.Store,
		bus:    opts.Bus,
		keep:   opts.Keep,
		logger: opts.Logger,
	}
}

// Run consumes the bus until the context is cancelled. Persistence
// failures are logged, never fatal: the journal is best-effort.
func (r *Recorder) Run(ctx context.Context) error {
	ch, cancel, err := r.bus.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-ch:
			if !ok {
				return nil
			}
			r.record(evt)
		}
	}
}

func (r *Recorder) record(evt events.Event) {
	entry := &store.JournalEntry{
		ID:        evt.ID,
		Type:      evt.Type,
		Source:    evt.Source,
		Target:    evt.Target,
		Payload:   evt.Payload,
		CreatedAt: evt.Timestamp,
	}
	if err := r.store.AppendJournal(entry); err != nil {
		r.logger.Printf("journal: failed to record event %s: %v", evt.ID, err)
		return
	}

	r.written++
	if r.written%512 == 0 {
		if err := r.store.PruneJournal(r.keep); err != nil {
			r.logger.Printf("journal: prune failed: %v", err)
		}
	}
}
