// Package orchestrator drives cross-group workflow execution through the
// backend and mirrors execution state pushed over the event stream.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/meridian-data/governance-gateway/internal/events"
	"github.com/meridian-data/governance-gateway/internal/groups"
)

// Status is the lifecycle state of a workflow execution.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the execution can no longer change.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Step is one operation of a workflow, targeted at a service group.
type Step struct {
	Name       string                 `json:"name"`
	Group      groups.ID              `json:"group"`
	Operation  string                 `json:"operation"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// Definition describes a workflow to execute.
type Definition struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Steps       []Step `json:"steps"`
}

// Execution is a server-tracked workflow run, mirrored for display. Each
// update replaces the whole object; the gateway never merges fields.
type Execution struct {
	ID             string    `json:"id"`
	Workflow       string    `json:"workflow"`
	Status         Status    `json:"status"`
	TotalSteps     int       `json:"totalSteps"`
	CompletedSteps int       `json:"completedSteps"`
	FailedSteps    int       `json:"failedSteps"`
	CurrentStep    string    `json:"currentStep,omitempty"`
	StartedAt      time.Time `json:"startedAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	Error          string    `json:"error,omitempty"`
}

type backendAPI interface {
	GetJSON(ctx context.Context, path string, target interface{}) error
	PostJSON(ctx context.Context, path string, payload, target interface{}) error
}

type publisher interface {
	Publish(context.Context, events.Event) error
}

// Options configure the orchestration service.
type Options struct {
	API    backendAPI
	Bus    publisher
	Logger *log.Logger
}

// Service coordinates workflow execution across the service groups.
type Service struct {
	api    backendAPI
	bus    publisher
	logger *log.Logger

	mu         sync.RWMutex
	executions map[string]Execution
}

// New creates an orchestration service.
func New(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Service{
		api:        opts.API,
		bus:        opts.Bus,
		logger:     opts.Logger,
		executions: make(map[string]Execution),
	}
}

// Execute submits a workflow definition to the backend and mirrors the
// returned execution.
func (s *Service) Execute(ctx context.Context, def Definition) (*Execution, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("workflow name is required")
	}
	if len(def.Steps) == 0 {
		return nil, fmt.Errorf("workflow %q has no steps", def.Name)
	}
	for i, step := range def.Steps {
		if step.Group == "" || step.Operation == "" {
			return nil, fmt.Errorf("workflow %q step %d is missing group or operation", def.Name, i)
		}
	}

	var exec Execution
	if err := s.api.PostJSON(ctx, "/api/v1/workflows/execute", def, &exec); err != nil {
		return nil, fmt.Errorf("execute workflow %q: %w", def.Name, err)
	}
	if exec.ID == "" {
		return nil, fmt.Errorf("backend did not return an execution id for %q", def.Name)
	}
	if exec.Workflow == "" {
		exec.Workflow = def.Name
	}
	if exec.UpdatedAt.IsZero() {
		exec.UpdatedAt = time.Now().UTC()
	}

	s.replace(exec)
	s.publishUpdate(ctx, exec)
	return &exec, nil
}

// Cancel asks the backend to cancel a running execution.
func (s *Service) Cancel(ctx context.Context, id string) (*Execution, error) {
	return s.action(ctx, id, "cancel")
}

// Pause asks the backend to pause a running execution.
func (s *Service) Pause(ctx context.Context, id string) (*Execution, error) {
	return s.action(ctx, id, "pause")
}

// Resume asks the backend to resume a paused execution.
func (s *Service) Resume(ctx context.Context, id string) (*Execution, error) {
	return s.action(ctx, id, "resume")
}

func (s *Service) action(ctx context.Context, id, verb string) (*Execution, error) {
	if id == "" {
		return nil, fmt.Errorf("execution id is required")
	}
	var exec Execution
	if err := s.api.PostJSON(ctx, "/api/v1/workflows/"+id+"/"+verb, nil, &exec); err != nil {
		return nil, fmt.Errorf("%s workflow %s: %w", verb, id, err)
	}
	if exec.ID == "" {
		exec.ID = id
	}
	if exec.UpdatedAt.IsZero() {
		exec.UpdatedAt = time.Now().UTC()
	}
	s.replace(exec)
	s.publishUpdate(ctx, exec)
	return &exec, nil
}

// Refresh fetches the current execution state from the backend.
func (s *Service) Refresh(ctx context.Context, id string) (*Execution, error) {
	var exec Execution
	if err := s.api.GetJSON(ctx, "/api/v1/workflows/"+id, &exec); err != nil {
		return nil, fmt.Errorf("refresh workflow %s: %w", id, err)
	}
	s.replace(exec)
	return &exec, nil
}

// Get returns the mirrored execution, if known.
func (s *Service) Get(id string) (Execution, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exec, ok := s.executions[id]
	return exec, ok
}

// List returns all mirrored executions, most recently updated first.
func (s *Service) List() []Execution {
	s.mu.RLock()
	out := make([]Execution, 0, len(s.executions))
	for _, exec := range s.executions {
		out = append(out, exec)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

// Apply consumes a workflow update event, replacing the mirrored execution
// wholesale. Events of other types and undecodable payloads are ignored.
func (s *Service) Apply(evt events.Event) {
	if evt.Type != events.TypeWorkflowUpdate {
		return
	}
	var exec Execution
	if err := json.Unmarshal(evt.Payload, &exec); err != nil {
		s.logger.Printf("orchestrator: dropping workflow update %s: %v", evt.ID, err)
		return
	}
	if exec.ID == "" {
		s.logger.Printf("orchestrator: dropping workflow update %s without execution id", evt.ID)
		return
	}
	if exec.UpdatedAt.IsZero() {
		exec.UpdatedAt = evt.Timestamp
	}
	s.replace(exec)
}

// Run applies workflow updates from the bus until the context is cancelled.
func (s *Service) Run(ctx context.Context, bus *events.Bus) error {
	ch, cancel, err := bus.Subscribe(ctx)
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
			s.Apply(evt)
		}
	}
}

func (s *Service) replace(exec Execution) {
	s.mu.Lock()
	s.executions[exec.ID] = exec
	s.mu.Unlock()
}

func (s *Service) publishUpdate(ctx context.Context, exec Execution) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(exec)
	if err != nil {
		s.logger.Printf("orchestrator: marshal execution %s: %v", exec.ID, err)
		return
	}
	evt := events.Event{
		Type:    events.TypeWorkflowUpdate,
		Source:  "gateway",
		Payload: payload,
	}
	if err := s.bus.Publish(ctx, evt); err != nil {
		s.logger.Printf("orchestrator: publish execution %s: %v", exec.ID, err)
	}
}
