// Package main bootstraps the background worker that executes queued
// gateway jobs (validation passes, workflow triggers).
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meridian-data/governance-gateway/config"
	"github.com/meridian-data/governance-gateway/internal/apiclient"
	"github.com/meridian-data/governance-gateway/internal/events"
	"github.com/meridian-data/governance-gateway/internal/groups"
	"github.com/meridian-data/governance-gateway/internal/health"
	"github.com/meridian-data/governance-gateway/internal/jobs"
	"github.com/meridian-data/governance-gateway/internal/logutil"
	"github.com/meridian-data/governance-gateway/internal/orchestrator"
	"github.com/meridian-data/governance-gateway/internal/queue"
	"github.com/meridian-data/governance-gateway/internal/redisx"
	"github.com/meridian-data/governance-gateway/internal/store"
	"github.com/meridian-data/governance-gateway/internal/worker"
)

const workerVersion = "0.3.2"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("Starting Governance Gateway worker v%s", workerVersion)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.Load()
	logutil.Info("worker_bootstrap", map[string]interface{}{
		"version":        workerVersion,
		"redisAddr":      cfg.RedisAddr,
		"redisJobStream": cfg.RedisJobStream,
		"redisJobGroup":  cfg.RedisJobGroup,
	})

	stateStore, err := store.Open(cfg.DataStoreDSN, cfg.DataStoreDriver)
	if err != nil {
		logutil.Error("datastore_open_failed", err, map[string]interface{}{"driver": cfg.DataStoreDriver})
		os.Exit(1)
	}
	defer stateStore.Close()

	redisClient, err := redisx.NewClient(redisx.Config{
		Addr:        cfg.RedisAddr,
		Username:    cfg.RedisUsername,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		TLSEnabled:  cfg.RedisTLSEnabled,
		TLSInsecure: cfg.RedisTLSInsecure,
	})
	if err != nil {
		logutil.Error("redis_connect_failed", err, map[string]interface{}{"addr": cfg.RedisAddr})
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	eventBus := events.NewBus(events.Options{
		Client:  redisClient,
		Logger:  log.Default(),
		Channel: cfg.EventsChannel,
	})

	registry := groups.Defaults()
	if cfg.GroupManifestPath != "" {
		loaded, err := groups.LoadManifest(cfg.GroupManifestPath)
		if err != nil {
			logutil.Error("group_manifest_load_failed", err, map[string]interface{}{"path": cfg.GroupManifestPath})
			os.Exit(1)
		}
		registry = loaded
	}

	backend := apiclient.New(apiclient.Config{
		BaseURL:      cfg.BackendBaseURL,
		Token:        cfg.BackendToken,
		Timeout:      cfg.RequestTimeout,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		MaxBackoff:   cfg.MaxBackoff,
	})
	validator := health.New(health.Options{
		Prober:        backend,
		Registry:      registry,
		LatencyBudget: cfg.LatencyBudget,
	})
	workflows := orchestrator.New(orchestrator.Options{
		API: backend,
		Bus: eventBus,
	})

	jobManager := jobs.New(jobs.Options{
		Store:          stateStore,
		Validator:      validator,
		Orchestrator:   workflows,
		EventPublisher: eventBus,
	})

	var jobConsumer *queue.Consumer
	if redisClient != nil {
		host, _ := os.Hostname()
		consumerName := fmt.Sprintf("%s-%d", host, time.Now().UnixNano())
		jobConsumer = queue.NewConsumer(redisClient, cfg.RedisJobStream, cfg.RedisJobGroup, consumerName)
	} else {
		logutil.Warn("job_queue_unavailable", map[string]interface{}{"fallback": "store polling"})
	}

	opts := worker.Options{
		Store:        stateStore,
		Jobs:         jobManager,
		Logger:       log.Default(),
		PollInterval: 1 * time.Minute,
	}
	if jobConsumer != nil {
		opts.Consumer = jobConsumer
	}
	runner := worker.New(opts)

	if err := runner.Run(ctx); err != nil && err != context.Canceled {
		logutil.Error("worker_stopped", err, nil)
		os.Exit(1)
	}
	log.Println("worker exited cleanly")
}
