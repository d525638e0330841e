// Package main is the entry point for the governance gateway service.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meridian-data/governance-gateway/config"
	"github.com/meridian-data/governance-gateway/internal/api"
	"github.com/meridian-data/governance-gateway/internal/apiclient"
	"github.com/meridian-data/governance-gateway/internal/events"
	"github.com/meridian-data/governance-gateway/internal/groups"
	"github.com/meridian-data/governance-gateway/internal/handlers"
	"github.com/meridian-data/governance-gateway/internal/health"
	"github.com/meridian-data/governance-gateway/internal/jobs"
	"github.com/meridian-data/governance-gateway/internal/journal"
	"github.com/meridian-data/governance-gateway/internal/logutil"
	"github.com/meridian-data/governance-gateway/internal/orchestrator"
	"github.com/meridian-data/governance-gateway/internal/queue"
	"github.com/meridian-data/governance-gateway/internal/redisx"
	"github.com/meridian-data/governance-gateway/internal/store"
	"github.com/meridian-data/governance-gateway/internal/stream"
)

const (
	version         = "0.3.2"
	shutdownTimeout = 5 * time.Second
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("Starting Governance Gateway v%s", version)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	cfg := config.Load()
	logutil.Info("gateway_bootstrap", map[string]interface{}{
		"version":     version,
		"backend":     cfg.BackendBaseURL,
		"eventStream": cfg.EventStreamURL,
		"driver":      cfg.DataStoreDriver,
	})

	registry := groups.Defaults()
	if cfg.GroupManifestPath != "" {
		loaded, err := groups.LoadManifest(cfg.GroupManifestPath)
		if err != nil {
			logutil.Error("group_manifest_load_failed", err, map[string]interface{}{"path": cfg.GroupManifestPath})
			os.Exit(1)
		}
		registry = loaded
		log.Printf("Loaded %d service groups from %s", registry.Count(), cfg.GroupManifestPath)
	}

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
	go func() {
		if err := workflows.Run(rootCtx, eventBus); err != nil && err != context.Canceled {
			logutil.Error("workflow_mirror_stopped", err, nil)
		}
	}()

	jobOpts := jobs.Options{
		Store:          stateStore,
		Validator:      validator,
		Orchestrator:   workflows,
		EventPublisher: eventBus,
	}
	if redisClient != nil {
		jobOpts.Producer = queue.NewProducer(redisClient, cfg.RedisJobStream)
	}
	jobManager := jobs.New(jobOpts)

	recorder := journal.New(journal.Options{
		Store: stateStore,
		Bus:   eventBus,
		Keep:  cfg.EventJournalSize,
	})
	go func() {
		if err := recorder.Run(rootCtx); err != nil && err != context.Canceled {
			logutil.Error("event_journal_stopped", err, nil)
		}
	}()

	if cfg.EventStreamURL != "" {
		feed := stream.New(stream.Options{
			URL:            cfg.EventStreamURL,
			Token:          cfg.BackendToken,
			Bus:            eventBus,
			MaxReconnects:  cfg.StreamMaxReconnects,
			InitialBackoff: cfg.StreamInitialBackoff,
			MaxBackoff:     cfg.StreamMaxBackoff,
		})
		go func() {
			if err := feed.Run(rootCtx); err != nil && err != context.Canceled {
				logutil.Error("event_stream_stopped", err, nil)
			}
		}()
	} else {
		logutil.Warn("event_stream_disabled", map[string]interface{}{"reason": "EVENT_STREAM_URL not set"})
	}

	if cfg.ValidationInterval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.ValidationInterval)
			defer ticker.Stop()
			for {
				select {
				case <-rootCtx.Done():
					return
				case <-ticker.C:
					if _, err := jobManager.EnqueueValidation(rootCtx); err != nil {
						logutil.Error("periodic_validation_enqueue_failed", err, nil)
					}
				}
			}
		}()
	}

	h := handlers.New(handlers.Options{
		Registry:  registry,
		Validator: validator,
		Workflows: workflows,
		Jobs:      jobManager,
		Store:     stateStore,
		Bus:       eventBus,
		Version:   version,
	})

	server := api.NewServer(h, api.Options{APIToken: cfg.APIToken})
	srv := server.Start(":" + cfg.ServerPort)
	log.Printf("Server listening on :%s", cfg.ServerPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	rootCancel()
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	log.Println("Server stopped")
}
