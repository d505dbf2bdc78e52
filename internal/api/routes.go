package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sreeyuthgunnam/distributed-task-queue/internal/api/handlers"
	apiMiddleware "github.com/sreeyuthgunnam/distributed-task-queue/internal/api/middleware"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/api/websocket"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/broker"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/config"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/events"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/observer"
)

// Server represents the HTTP server
type Server struct {
	router       *chi.Mux
	broker       *broker.Broker
	observer     *observer.Observer
	config       *config.Config
	taskHandler  *handlers.TaskHandler
	adminHandler *handlers.AdminHandler
	wsHub        *websocket.Hub
	wsHandler    *websocket.Handler
	publisher    *events.RedisPubSub
}

// NewServer creates a new HTTP server. queues is the set of queue names
// this deployment knows about, used by the admin surface to report stats
// across every queue rather than just the caller's default.
func NewServer(cfg *config.Config, b *broker.Broker, obs *observer.Observer, publisher *events.RedisPubSub, queues []string) *Server {
	wsHub := websocket.NewHub(publisher)

	s := &Server{
		router:       chi.NewRouter(),
		broker:       b,
		observer:     obs,
		config:       cfg,
		taskHandler:  handlers.NewTaskHandler(b, obs, publisher, cfg.Broker.DefaultQueue, cfg.Broker.MaxRetries),
		adminHandler: handlers.NewAdminHandler(obs, queues),
		wsHub:        wsHub,
		wsHandler:    websocket.NewHandler(wsHub),
		publisher:    publisher,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(apiMiddleware.RequestLogger())

	// Recoverer
	s.router.Use(middleware.Recoverer)

	// Heartbeat endpoint for load balancers
	s.router.Use(middleware.Heartbeat("/health"))

	if s.config.Auth.Enabled {
		keys := make(map[string]bool, len(s.config.Auth.APIKeys))
		for _, k := range s.config.Auth.APIKeys {
			keys[k] = true
		}
		s.router.Use(apiMiddleware.Auth(&apiMiddleware.AuthConfig{
			Enabled:   s.config.Auth.Enabled,
			JWTSecret: s.config.Auth.JWTSecret,
			APIKeys:   keys,
		}))
	}
}

func (s *Server) setupRoutes() {
	// API v1 routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Content type for API routes
		r.Use(middleware.AllowContentType("application/json"))

		// Task routes
		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", s.taskHandler.Create)
			r.Get("/{taskID}", s.taskHandler.Get)
			r.Delete("/{taskID}", s.taskHandler.Cancel)
			r.Get("/", s.taskHandler.List)
		})
	})

	// Admin routes
	s.router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))

		r.Get("/health", s.adminHandler.HealthCheck)

		// Worker visibility
		r.Get("/workers", s.adminHandler.ListWorkers)
		r.Get("/workers/{workerID}", s.adminHandler.GetWorker)
		r.Post("/workers/cleanup", s.adminHandler.CleanupStaleWorkers)

		// Queue management
		r.Get("/queues", s.adminHandler.GetQueues)
		r.Post("/queues/{queue}/pause", s.adminHandler.PauseQueue)
		r.Post("/queues/{queue}/resume", s.adminHandler.ResumeQueue)
		r.Delete("/queues/{queue}", s.adminHandler.PurgeQueue)

		// Task management
		r.Post("/tasks/{taskID}/retry", s.adminHandler.RetryTask)

		// DLQ management
		r.Get("/dlq", s.adminHandler.ListDLQ)
		r.Post("/dlq/retry", s.adminHandler.RetryDLQ)
		r.Delete("/dlq", s.adminHandler.ClearDLQ)
	})

	// WebSocket endpoint
	s.router.Get("/ws", s.wsHandler.ServeWS)

	// Metrics endpoint
	if s.config.Metrics.Enabled {
		s.router.Handle(s.config.Metrics.Path, promhttp.Handler())
	}
}

// Start starts the WebSocket hub
func (s *Server) Start(ctx context.Context) {
	go s.wsHub.Run(ctx)
}

// Stop stops the WebSocket hub
func (s *Server) Stop() {
	s.wsHub.Stop()
}

// Router returns the chi router
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ServeHTTP implements the http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Publisher returns the event publisher
func (s *Server) Publisher() *events.RedisPubSub {
	return s.publisher
}
