package worker

import (
	"context"
	"log"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/meridian-data/governance-gateway/internal/queue"
	"github.com/meridian-data/governance-gateway/internal/store"
)

type fakeExecutor struct {
	mu       sync.Mutex
	messages []string
	jobs     []string
}

func (f *fakeExecutor) ProcessMessage(ctx context.Context, msg *queue.JobMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg.JobID)
	return nil
}

func (f *fakeExecutor) ProcessJob(ctx context.Context, job *store.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job.ID)
	return nil
}

func (f *fakeExecutor) processed() (msgs, jobIDs []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...), append([]string(nil), f.jobs...)
}

type fakeConsumer struct {
	mu     sync.Mutex
	queued []queue.JobMessage
	acked  []string
}

func (f *fakeConsumer) EnsureGroup(ctx context.Context) error { return nil }

func (f *fakeConsumer) Next(ctx context.Context) (*queue.JobMessage, string, error) {
	f.mu.Lock()
	if len(f.queued) == 0 {
		f.mu.Unlock()
		select {
		case <-ctx.Done():
		case <-time.After(10 * time.Millisecond):
		}
		return nil, "", nil
	}
	msg := f.queued[0]
	f.queued = f.queued[1:]
	f.mu.Unlock()
	return &msg, "stream-" + msg.JobID, nil
}

func (f *fakeConsumer) Ack(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, id)
	return nil
}

func TestQueueModeProcessesAndAcks(t *testing.T) {
	exec := &fakeExecutor{}
	consumer := &fakeConsumer{queued: []queue.JobMessage{
		{JobID: "a", Type: "integration_validation"},
		{JobID: "b", Type: "integration_validation"},
	}}
	runner := New(Options{Jobs: exec, Consumer: consumer, Name: "test-worker", Logger: log.New(testWriter{t}, "", 0)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		msgs, _ := exec.processed()
		if len(msgs) == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("worker processed %d messages, want 2", len(msgs))
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	consumer.mu.Lock()
	acked := append([]string(nil), consumer.acked...)
	consumer.mu.Unlock()
	if len(acked) != 2 || acked[0] != "stream-a" {
		t.Fatalf("unexpected acks: %v", acked)
	}
}

func TestPollingModeDrainsPendingJobs(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "worker.db"), "sqlite")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if err := st.CreateJob(&store.Job{ID: "p1", Type: "integration_validation", Status: store.JobPending, MaxAttempts: 3}); err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := st.CreateJob(&store.Job{ID: "r1", Type: "integration_validation", Status: store.JobRunning, MaxAttempts: 3}); err != nil {
		t.Fatalf("create job: %v", err)
	}

	exec := &fakeExecutor{}
	runner := New(Options{Jobs: exec, Store: st, PollInterval: 10 * time.Millisecond, Logger: log.New(testWriter{t}, "", 0)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		_, jobIDs := exec.processed()
		if len(jobIDs) > 0 {
			if jobIDs[0] != "p1" {
				t.Fatalf("unexpected job processed: %v", jobIDs)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("pending job never processed")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done

	_, jobIDs := exec.processed()
	for _, id := range jobIDs {
		if id == "r1" {
			t.Fatal("running job should not be re-dispatched")
		}
	}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}
