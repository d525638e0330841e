// Package handlers provides HTTP request handlers for the governance gateway API.
package handlers

import (
	"context"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/meridian-data/governance-gateway/internal/events"
	"github.com/meridian-data/governance-gateway/internal/groups"
	"github.com/meridian-data/governance-gateway/internal/health"
	"github.com/meridian-data/governance-gateway/internal/orchestrator"
	"github.com/meridian-data/governance-gateway/internal/store"
)

type healthValidator interface {
	ValidateAll(context.Context) health.Summary
	ValidateGroup(context.Context, groups.Group) health.Report
}

type workflowService interface {
	Execute(context.Context, orchestrator.Definition) (*orchestrator.Execution, error)
	Cancel(context.Context, string) (*orchestrator.Execution, error)
	Pause(context.Context, string) (*orchestrator.Execution, error)
	Resume(context.Context, string) (*orchestrator.Execution, error)
	Refresh(context.Context, string) (*orchestrator.Execution, error)
	Get(string) (orchestrator.Execution, bool)
	List() []orchestrator.Execution
}

type jobService interface {
	EnqueueValidation(context.Context) (*store.Job, error)
	EnqueueWorkflow(context.Context, orchestrator.Definition) (*store.Job, error)
}

type eventSource interface {
	Subscribe(context.Context) (<-chan events.Event, func(), error)
}

// Handler encapsulates dependencies for HTTP handlers.
type Handler struct {
	registry  *groups.Registry
	validator healthValidator
	workflows workflowService
	jobs      jobService
	store     *store.Store
	bus       eventSource
	version   string
}

// Options wires the handler dependencies.
type Options struct {
	Registry  *groups.Registry
	Validator healthValidator
	Workflows workflowService
	Jobs      jobService
	Store     *store.Store
	Bus       eventSource
	Version   string
}

// New creates a new Handler instance.
func New(opts Options) *Handler {
	if opts.Registry == nil {
		opts.Registry = groups.Defaults()
	}
	return &Handler{
		registry:  opts.Registry,
		validator: opts.Validator,
		workflows: opts.Workflows,
		jobs:      opts.Jobs,
		store:     opts.Store,
		bus:       opts.Bus,
		version:   opts.Version,
	}
}

// Health is the liveness endpoint.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": h.version})
}

// ListGroups returns the configured backend service groups.
func (h *Handler) ListGroups(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.List())
}

// GetGroup returns one service group by id.
func (h *Handler) GetGroup(c *gin.Context) {
	group, ok := h.registry.Get(groups.ID(c.Param("id")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "service group not found"})
		return
	}
	c.JSON(http.StatusOK, group)
}

// IntegrationHealth runs a validation pass over every group and returns
// the summary.
func (h *Handler) IntegrationHealth(c *gin.Context) {
	summary := h.validator.ValidateAll(c.Request.Context())
	c.JSON(http.StatusOK, summary)
}

// GroupHealth validates a single group on demand.
func (h *Handler) GroupHealth(c *gin.Context) {
	group, ok := h.registry.Get(groups.ID(c.Param("group")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "service group not found"})
		return
	}
	report := h.validator.ValidateGroup(c.Request.Context(), group)
	c.JSON(http.StatusOK, report)
}

// TriggerValidation enqueues an asynchronous full validation pass.
func (h *Handler) TriggerValidation(c *gin.Context) {
	job, err := h.jobs.EnqueueValidation(c.Request.Context())
	if err != nil {
		log.Printf("Failed to enqueue validation: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to schedule validation"})
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// HealthHistory returns persisted validation reports, newest first.
func (h *Handler) HealthHistory(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	records, err := h.store.ListHealthReports(c.Query("group"), limit)
	if err != nil {
		log.Printf("Failed to list health history: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load health history"})
		return
	}
	c.JSON(http.StatusOK, records)
}

// ExecuteWorkflow forwards a workflow definition to the backend and
// mirrors the resulting execution.
func (h *Handler) ExecuteWorkflow(c *gin.Context) {
	var def orchestrator.Definition
	if err := c.ShouldBindJSON(&def); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if c.Query("async") == "true" {
		job, err := h.jobs.EnqueueWorkflow(c.Request.Context(), def)
		if err != nil {
			log.Printf("Failed to enqueue workflow %s: %v", def.Name, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to schedule workflow"})
			return
		}
		c.JSON(http.StatusAccepted, job)
		return
	}

	exec, err := h.workflows.Execute(c.Request.Context(), def)
	if err != nil {
		log.Printf("Failed to execute workflow %s: %v", def.Name, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, exec)
}

// ListWorkflows returns all mirrored workflow executions.
func (h *Handler) ListWorkflows(c *gin.Context) {
	c.JSON(http.StatusOK, h.workflows.List())
}

// GetWorkflow returns one mirrored execution.
func (h *Handler) GetWorkflow(c *gin.Context) {
	exec, ok := h.workflows.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "workflow execution not found"})
		return
	}
	c.JSON(http.StatusOK, exec)
}

// CancelWorkflow asks the backend to cancel an execution.
func (h *Handler) CancelWorkflow(c *gin.Context) {
	h.workflowAction(c, h.workflows.Cancel)
}

// PauseWorkflow asks the backend to pause an execution.
func (h *Handler) PauseWorkflow(c *gin.Context) {
	h.workflowAction(c, h.workflows.Pause)
}

// ResumeWorkflow asks the backend to resume an execution.
func (h *Handler) ResumeWorkflow(c *gin.Context) {
	h.workflowAction(c, h.workflows.Resume)
}

// RefreshWorkflow re-reads one execution from the backend.
func (h *Handler) RefreshWorkflow(c *gin.Context) {
	h.workflowAction(c, h.workflows.Refresh)
}

func (h *Handler) workflowAction(c *gin.Context, fn func(context.Context, string) (*orchestrator.Execution, error)) {
	id := c.Param("id")
	exec, err := fn(c.Request.Context(), id)
	if err != nil {
		log.Printf("Workflow action on %s failed: %v", id, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, exec)
}

// ListJobs returns recent gateway jobs.
func (h *Handler) ListJobs(c *gin.Context) {
	jobs, err := h.store.ListJobs(100)
	if err != nil {
		log.Printf("Failed to list jobs: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
		return
	}
	c.JSON(http.StatusOK, jobs)
}

// GetJob returns one job by id.
func (h *Handler) GetJob(c *gin.Context) {
	job, err := h.store.GetJob(c.Param("id"))
	if err != nil {
		log.Printf("Failed to load job %s: %v", c.Param("id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job"})
		return
	}
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// StreamEvents rebroadcasts the gateway event bus as server-sent events.
func (h *Handler) StreamEvents(c *gin.Context) {
	ch, cancel, err := h.bus.Subscribe(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event stream unavailable"})
		return
	}
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case evt, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(evt.Type, evt)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
