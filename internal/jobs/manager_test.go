package jobs

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/meridian-data/governance-gateway/internal/events"
	"github.com/meridian-data/governance-gateway/internal/groups"
	"github.com/meridian-data/governance-gateway/internal/health"
	"github.com/meridian-data/governance-gateway/internal/orchestrator"
	"github.com/meridian-data/governance-gateway/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "jobs.db"), "sqlite")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

type fakeValidator struct {
	summary health.Summary
	calls   int
}

func (f *fakeValidator) ValidateAll(ctx context.Context) health.Summary {
	f.calls++
	return f.summary
}

type fakeOrchestrator struct {
	exec *orchestrator.Execution
	got  orchestrator.Definition
}

func (f *fakeOrchestrator) Execute(ctx context.Context, def orchestrator.Definition) (*orchestrator.Execution, error) {
	f.got = def
	return f.exec, nil
}

type captureBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *captureBus) Publish(ctx context.Context, evt events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *captureBus) byType(eventType string) []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []events.Event
	for _, evt := range c.events {
		if evt.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}

func TestValidationJobPersistsReportsAndPublishes(t *testing.T) {
	st := openTestStore(t)
	bus := &captureBus{}
	validator := &fakeValidator{summary: health.Summary{
		Score:  88,
		Status: health.StatusWarning,
		Reports: []health.Report{
			{Group: groups.Catalog, Score: 90, Status: health.StatusHealthy, CheckedAt: time.Now().UTC()},
			{Group: groups.Scans, Score: 85, Status: health.StatusWarning, CheckedAt: time.Now().UTC()},
		},
	}}
	mgr := New(Options{Store: st, Validator: validator, EventPublisher: bus})

	job := &store.Job{ID: "job-1", Type: TypeIntegrationValidation, Status: store.JobPending, MaxAttempts: 3}
	if err := st.CreateJob(job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := mgr.ProcessJob(context.Background(), job); err != nil {
		t.Fatalf("process job: %v", err)
	}

	if validator.calls != 1 {
		t.Fatalf("expected one validation pass, got %d", validator.calls)
	}
	stored, err := st.GetJob("job-1")
	if err != nil || stored == nil {
		t.Fatalf("load job: %v", err)
	}
	if stored.Status != store.JobDone {
		t.Fatalf("expected completed job, got %s", stored.Status)
	}
	if stored.Result["status"] != "warning" {
		t.Fatalf("unexpected result status: %v", stored.Result["status"])
	}

	records, err := st.ListHealthReports("", 10)
	if err != nil {
		t.Fatalf("list reports: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 persisted reports, got %d", len(records))
	}

	published := bus.byType(events.TypeIntegrationHealth)
	if len(published) != 1 {
		t.Fatalf("expected one health event, got %d", len(published))
	}
	var summary health.Summary
	if err := json.Unmarshal(published[0].Payload, &summary); err != nil {
		t.Fatalf("decode summary payload: %v", err)
	}
	if summary.Score != 88 {
		t.Fatalf("unexpected summary score %d", summary.Score)
	}
}

func TestWorkflowJobRunsDefinition(t *testing.T) {
	st := openTestStore(t)
	bus := &captureBus{}
	orch := &fakeOrchestrator{exec: &orchestrator.Execution{ID: "exec-9", Status: orchestrator.StatusRunning}}
	mgr := New(Options{Store: st, Orchestrator: orch, EventPublisher: bus})

	def := orchestrator.Definition{
		Name: "nightly-scan",
		Steps: []orchestrator.Step{
			{Name: "trigger", Group: groups.Scans, Operation: "run"},
		},
	}
	job, err := mgr.EnqueueWorkflow(context.Background(), def)
	if err != nil {
		t.Fatalf("enqueue workflow: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		stored, err := st.GetJob(job.ID)
		if err != nil {
			t.Fatalf("load job: %v", err)
		}
		if stored != nil && stored.Status == store.JobDone {
			if stored.Result["executionId"] != "exec-9" {
				t.Fatalf("unexpected execution id: %v", stored.Result["executionId"])
			}
			break
		}
		select {
		case <-deadline:
			t.Fatalf("workflow job never completed, last status %v", stored.Status)
		case <-time.After(10 * time.Millisecond):
		}
	}
	if orch.got.Name != "nightly-scan" {
		t.Fatalf("orchestrator saw definition %q", orch.got.Name)
	}
}

func TestUnknownJobTypeFails(t *testing.T) {
	st := openTestStore(t)
	mgr := New(Options{Store: st})

	job := &store.Job{ID: "job-x", Type: "reindex", Status: store.JobPending, MaxAttempts: 1}
	if err := st.CreateJob(job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := mgr.ProcessJob(context.Background(), job); err == nil {
		t.Fatal("expected error for unknown job type")
	}
	stored, _ := st.GetJob("job-x")
	if stored.Status != store.JobFailed {
		t.Fatalf("expected failed job, got %s", stored.Status)
	}
	if stored.Error == "" {
		t.Fatal("expected error message on job")
	}
}

func TestJobUpdatesArePublished(t *testing.T) {
	st := openTestStore(t)
	bus := &captureBus{}
	validator := &fakeValidator{summary: health.Summary{Score: 100, Status: health.StatusHealthy}}
	mgr := New(Options{Store: st, Validator: validator, EventPublisher: bus})

	job := &store.Job{ID: "job-2", Type: TypeIntegrationValidation, Status: store.JobPending, MaxAttempts: 3}
	if err := st.CreateJob(job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := mgr.ProcessJob(context.Background(), job); err != nil {
		t.Fatalf("process job: %v", err)
	}

	updates := bus.byType(events.TypeJobUpdate)
	if len(updates) != 2 {
		t.Fatalf("expected running and completed updates, got %d", len(updates))
	}
	var last map[string]interface{}
	if err := json.Unmarshal(updates[1].Payload, &last); err != nil {
		t.Fatalf("decode update: %v", err)
	}
	if last["status"] != "completed" {
		t.Fatalf("unexpected final status: %v", last["status"])
	}
}
