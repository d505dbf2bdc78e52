package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sreeyuthgunnam/distributed-task-queue/internal/api"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/broker"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/config"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/events"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/logger"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/observer"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(cfg.LogLevel, os.Getenv("ENV") != "production")

	log := logger.Get()
	log.Info().Msg("Starting API server...")

	// Connect to the broker
	b, err := broker.New(&cfg.Redis, &cfg.Broker)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to broker")
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close broker")
		}
	}()

	// Create event publisher, sharing the broker's Redis connection
	publisher := events.NewRedisPubSub(b.Client())
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close event publisher")
		}
	}()

	obs := observer.New(b, cfg.Broker.ActiveTimeout, cfg.Broker.StaleTimeout)

	// Create server
	queues := cfg.Worker.Queues
	if len(queues) == 0 {
		queues = []string{cfg.Broker.DefaultQueue}
	}
	server := api.NewServer(cfg, b, obs, publisher, queues)

	// Create HTTP server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start WebSocket hub
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	server.Start(ctx)

	// Start the orphan-recovery loop alongside the API server so a
	// deployment running only this process still reclaims stale work.
	recoveryStop := make(chan struct{})
	go worker.RecoveryLoop(ctx, b, cfg.Broker.RecoveryInterval, cfg.Broker.StaleTimeout, recoveryStop)

	// Start HTTP server
	go func() {
		log.Info().
			Str("addr", httpServer.Addr).
			Msg("HTTP server listening")

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	close(recoveryStop)

	// Stop WebSocket hub
	server.Stop()

	// Shutdown HTTP server
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("Server stopped")
}
