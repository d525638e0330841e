// Package worker drains the job queue and executes gateway jobs.
package worker

import (
	"context"
	"log"
	"time"

	"github.com/meridian-data/governance-gateway/internal/queue"
	"github.com/meridian-data/governance-gateway/internal/store"
)

type jobExecutor interface {
	ProcessMessage(context.Context, *queue.JobMessage) error
	ProcessJob(context.Context, *store.Job) error
}

type jobConsumer interface {
	EnsureGroup(context.Context) error
	Next(ctx context.Context) (*queue.JobMessage, string, error)
	Ack(ctx context.Context, messageID string) error
}

// Options configure a worker runner.
type Options struct {
	Jobs     jobExecutor
	Consumer jobConsumer
	Store    *store.Store
	Name     string
	// PollInterval drives the store-polling fallback used when no queue
	// consumer is configured.
	PollInterval time.Duration
	Logger       *log.Logger
}

// Runner pulls jobs and executes them until its context is cancelled.
// With a Redis consumer it reads from the shared stream; without one it
// polls the store for pending jobs.
type Runner struct {
	jobs     jobExecutor
	consumer jobConsumer
	store    *store.Store
	name     string
	interval time.Duration
	logger   *log.Logger
}

// New creates a worker runner.
func New(opts Options) *Runner {
	if opts.Name == "" {
		opts.Name = "worker-1"
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Runner{
		jobs:     opts.Jobs,
		consumer: opts.Consumer,
		store:    opts.Store,
		name:     opts.Name,
		interval: opts.PollInterval,
		logger:   opts.Logger,
	}
}

// Run blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if r.consumer != nil {
		return r.runQueue(ctx)
	}
	return r.runPolling(ctx)
}

func (r *Runner) runQueue(ctx context.Context) error {
	if err := r.consumer.EnsureGroup(ctx); err != nil {
		return err
	}
	r.logger.Printf("worker %s: consuming job stream", r.name)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, messageID, err := r.consumer.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Printf("worker %s: read failed: %v", r.name, err)
			time.Sleep(time.Second)
			continue
		}
		if msg == nil {
			continue
		}
		if err := r.jobs.ProcessMessage(ctx, msg); err != nil {
			r.logger.Printf("worker %s: job %s failed: %v", r.name, msg.JobID, err)
		}
		if err := r.consumer.Ack(ctx, messageID); err != nil {
			r.logger.Printf("worker %s: ack %s failed: %v", r.name, messageID, err)
		}
	}
}

func (r *Runner) runPolling(ctx context.Context) error {
	r.logger.Printf("worker %s: polling store every %s", r.name, r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.drainPending(ctx)
		}
	}
}

func (r *Runner) drainPending(ctx context.Context) {
	if r.store == nil {
		return
	}
	pending, err := r.store.ListJobsByStatus(store.JobPending, 50)
	if err != nil {
		r.logger.Printf("worker %s: list pending jobs failed: %v", r.name, err)
		return
	}
	for i := range pending {
		job := pending[i]
		if err := r.jobs.ProcessJob(ctx, &job); err != nil {
			r.logger.Printf("worker %s: job %s failed: %v", r.name, job.ID, err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}
