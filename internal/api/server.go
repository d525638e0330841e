// Package api wires the HTTP surface of the governance gateway.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meridian-data/governance-gateway/internal/handlers"
)

// Options configures the HTTP server wiring.
type Options struct {
	APIToken string
}

// Server wraps the Gin engine and associated configuration.
type Server struct {
	engine *gin.Engine
}

// NewServer constructs a Server with all HTTP routes configured.
func NewServer(handler *handlers.Handler, opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery(), requestIDMiddleware(), metricsMiddleware(), requestLogger())

	// Health + meta
	engine.GET("/healthz", handler.Health)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/events", handler.StreamEvents)

	// Service groups
	engine.GET("/groups", handler.ListGroups)
	engine.GET("/groups/:id", handler.GetGroup)

	// Integration health
	engine.GET("/integration/health", handler.IntegrationHealth)
	engine.GET("/integration/health/:group", handler.GroupHealth)

	protected := engine.Group("/")
	protected.Use(authMiddleware(opts.APIToken))

	protected.POST("/integration/validate", handler.TriggerValidation)
	protected.GET("/history", handler.HealthHistory)

	protected.POST("/workflows/execute", handler.ExecuteWorkflow)
	protected.GET("/workflows", handler.ListWorkflows)
	protected.GET("/workflows/:id", handler.GetWorkflow)
	protected.POST("/workflows/:id/cancel", handler.CancelWorkflow)
	protected.POST("/workflows/:id/pause", handler.PauseWorkflow)
	protected.POST("/workflows/:id/resume", handler.ResumeWorkflow)
	protected.POST("/workflows/:id/refresh", handler.RefreshWorkflow)

	protected.GET("/jobs", handler.ListJobs)
	protected.GET("/jobs/:id", handler.GetJob)

	return &Server{engine: engine}
}

// Engine exposes the underlying Gin engine for advanced use (testing, etc.).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start launches the HTTP server on the provided address.
func (s *Server) Start(addr string) *http.Server {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			panic(err)
		}
	}()
	return srv
}
