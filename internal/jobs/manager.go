// Package jobs coordinates asynchronous gateway work: full validation
// passes and workflow triggers.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-data/governance-gateway/internal/events"
	"github.com/meridian-data/governance-gateway/internal/health"
	"github.com/meridian-data/governance-gateway/internal/logutil"
	"github.com/meridian-data/governance-gateway/internal/metrics"
	"github.com/meridian-data/governance-gateway/internal/orchestrator"
	"github.com/meridian-data/governance-gateway/internal/queue"
	"github.com/meridian-data/governance-gateway/internal/store"
)

// Job types handled by the manager.
const (
	TypeIntegrationValidation = "integration_validation"
	TypeWorkflowExecute       = "workflow_execute"
)

type validatorService interface {
	ValidateAll(context.Context) health.Summary
}

type workflowRunner interface {
	Execute(context.Context, orchestrator.Definition) (*orchestrator.Execution, error)
}

type eventPublisher interface {
	Publish(context.Context, events.Event) error
}

type jobProducer interface {
	Enqueue(context.Context, queue.JobMessage) error
}

// Options configure the job manager.
type Options struct {
	Store          *store.Store
	Validator      validatorService
	Orchestrator   workflowRunner
	EventPublisher eventPublisher
	Producer       jobProducer
	MaxJobAttempts int
	Logger         *log.Logger
}

// Manager creates, dispatches and executes gateway jobs.
type Manager struct {
	store        *store.Store
	validator    validatorService
	orchestrator workflowRunner
	events       eventPublisher
	producer     jobProducer
	maxAttempts  int
	logger       *log.Logger
}

// New creates a job manager.
func New(opts Options) *Manager {
	if opts.MaxJobAttempts <= 0 {
		opts.MaxJobAttempts = 3
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Manager{
		store:        opts.Store,
		validator:    opts.Validator,
		orchestrator: opts.Orchestrator,
		events:       opts.EventPublisher,
		producer:     opts.Producer,
		maxAttempts:  opts.MaxJobAttempts,
		logger:       opts.Logger,
	}
}

// EnqueueValidation schedules a full integration validation pass. With a
// queue producer configured the job goes to the worker pool; otherwise it
// executes in-process.
func (m *Manager) EnqueueValidation(ctx context.Context) (*store.Job, error) {
	return m.enqueue(ctx, TypeIntegrationValidation, nil)
}

// EnqueueWorkflow schedules a workflow execution job.
func (m *Manager) EnqueueWorkflow(ctx context.Context, def orchestrator.Definition) (*store.Job, error) {
	payload := map[string]interface{}{"workflow": def.Name, "steps": len(def.Steps)}
	raw, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("marshal workflow definition: %w", err)
	}
	payload["definition"] = json.RawMessage(raw)
	return m.enqueue(ctx, TypeWorkflowExecute, payload)
}

func (m *Manager) enqueue(ctx context.Context, jobType string, payload map[string]interface{}) (*store.Job, error) {
	if m.store == nil {
		return nil, fmt.Errorf("job manager not configured")
	}
	job := &store.Job{
		ID:          uuid.NewString(),
		Type:        jobType,
		Status:      store.JobPending,
		Payload:     payload,
		MaxAttempts: m.maxAttempts,
	}
	if err := m.store.CreateJob(job); err != nil {
		return nil, err
	}

	if m.producer != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal job payload: %w", err)
		}
		msg := queue.JobMessage{JobID: job.ID, Type: jobType, Payload: raw}
		if err := m.producer.Enqueue(ctx, msg); err != nil {
			return nil, fmt.Errorf("enqueue job %s: %w", job.ID, err)
		}
		return job, nil
	}

	go func() {
		if err := m.ProcessJob(context.Background(), job); err != nil {
			m.logger.Printf("jobs: job %s failed: %v", job.ID, err)
		}
	}()
	return job, nil
}

// ProcessMessage executes the job referenced by a queue message.
func (m *Manager) ProcessMessage(ctx context.Context, msg *queue.JobMessage) error {
	job, err := m.store.GetJob(msg.JobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", msg.JobID, err)
	}
	if job == nil {
		return fmt.Errorf("job %s not found", msg.JobID)
	}
	if job.Status != store.JobPending {
		m.logger.Printf("jobs: skipping job %s in state %s", job.ID, job.Status)
		return nil
	}
	return m.ProcessJob(ctx, job)
}

// ProcessJob executes one job synchronously.
func (m *Manager) ProcessJob(ctx context.Context, job *store.Job) error {
	start := time.Now()
	job.Status = store.JobRunning
	job.Attempts++
	if err := m.store.UpdateJob(job); err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}
	m.publishJobUpdate(ctx, job)

	var err error
	switch job.Type {
	case TypeIntegrationValidation:
		err = m.runValidation(ctx, job)
	case TypeWorkflowExecute:
		err = m.runWorkflow(ctx, job)
	default:
		err = fmt.Errorf("unknown job type %q", job.Type)
	}

	if err != nil {
		job.Status = store.JobFailed
		job.Error = err.Error()
	} else {
		job.Status = store.JobDone
		job.Progress = 100
		job.Error = ""
	}
	if updateErr := m.store.UpdateJob(job); updateErr != nil {
		m.logger.Printf("jobs: failed to persist job %s: %v", job.ID, updateErr)
	}
	metrics.ObserveJobCompletion(job.Type, string(job.Status), time.Since(start))
	if err != nil {
		logutil.Error("job_failed", err, map[string]interface{}{
			"jobId":    job.ID,
			"type":     job.Type,
			"attempts": job.Attempts,
		})
	} else {
		logutil.Info("job_completed", map[string]interface{}{
			"jobId":      job.ID,
			"type":       job.Type,
			"durationMs": time.Since(start).Milliseconds(),
		})
	}
	m.publishJobUpdate(ctx, job)
	return err
}

func (m *Manager) runValidation(ctx context.Context, job *store.Job) error {
	if m.validator == nil {
		return fmt.Errorf("validator not configured")
	}
	summary := m.validator.ValidateAll(ctx)

	for _, report := range summary.Reports {
		issues, err := json.Marshal(report.Issues)
		if err != nil {
			issues = []byte("[]")
		}
		rec := &store.HealthRecord{
			ID:        uuid.NewString(),
			Group:     string(report.Group),
			Score:     report.Score,
			Status:    string(report.Status),
			Issues:    issues,
			CheckedAt: report.CheckedAt,
		}
		if err := m.store.SaveHealthReport(rec); err != nil {
			m.logger.Printf("jobs: failed to persist report for %s: %v", report.Group, err)
		}
	}

	job.Result = map[string]interface{}{
		"score":  summary.Score,
		"status": string(summary.Status),
		"groups": len(summary.Reports),
	}

	if m.events != nil {
		payload, err := json.Marshal(summary)
		if err == nil {
			evt := events.Event{Type: events.TypeIntegrationHealth, Source: "gateway", Payload: payload}
			if err := m.events.Publish(ctx, evt); err != nil {
				m.logger.Printf("jobs: failed to publish health summary: %v", err)
			}
		}
	}
	return nil
}

func (m *Manager) runWorkflow(ctx context.Context, job *store.Job) error {
	if m.orchestrator == nil {
		return fmt.Errorf("orchestrator not configured")
	}
	raw, ok := job.Payload["definition"]
	if !ok {
		return fmt.Errorf("job %s has no workflow definition", job.ID)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("re-encode workflow definition: %w", err)
	}
	var def orchestrator.Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return fmt.Errorf("decode workflow definition: %w", err)
	}

	exec, err := m.orchestrator.Execute(ctx, def)
	if err != nil {
		return err
	}
	job.Result = map[string]interface{}{
		"executionId": exec.ID,
		"status":      string(exec.Status),
	}
	return nil
}

func (m *Manager) publishJobUpdate(ctx context.Context, job *store.Job) {
	if m.events == nil {
		return
	}
	payload, err := json.Marshal(map[string]interface{}{
		"jobId":    job.ID,
		"type":     job.Type,
		"status":   string(job.Status),
		"attempts": job.Attempts,
		"error":    job.Error,
	})
	if err != nil {
		return
	}
	evt := events.Event{Type: events.TypeJobUpdate, Source: "gateway", Payload: payload}
	if err := m.events.Publish(ctx, evt); err != nil {
		m.logger.Printf("jobs: failed to publish job update: %v", err)
	}
}
