// Aegis - Tenant-aware caching and resilience for dental practice platforms.
// Copyright (c) 2025 DentalStack
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dentalstack/aegis/internal/api"
	"github.com/dentalstack/aegis/internal/breaker"
	"github.com/dentalstack/aegis/internal/bus"
	"github.com/dentalstack/aegis/internal/cache"
	"github.com/dentalstack/aegis/internal/domain"
	"github.com/dentalstack/aegis/internal/patients"
	"github.com/dentalstack/aegis/internal/repository"
	"github.com/dentalstack/aegis/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("AEGIS_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting aegis",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for cluster mode via environment
	cluster := os.Getenv("AEGIS_CLUSTER") == "true"
	if cluster {
		cfg = domain.ClusterConfig()
		slog.Info("running in cluster mode")
	}

	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache Store
	store, err := cache.NewStore(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type, "default_ttl", cfg.Cache.DefaultTTL)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Cache Manager and Breaker Registry
	manager := cache.NewManager(store, cfg.Cache.DefaultTTL)
	registry := breaker.NewRegistry(cfg.Breaker)

	// Initialize Patient Service
	service := patients.NewService(repo, manager, registry, busImpl)
	slog.Info("patient service initialized", "node_id", service.NodeID())

	// Initialize invalidation Worker (cluster mode, or forced via environment)
	var invalidationWorker *worker.Worker
	if cluster || os.Getenv("AEGIS_INVALIDATION_WORKER") == "true" {
		invalidationWorker = worker.NewWorker(busImpl, store, service.NodeID())

		// AEGIS_TENANTS optionally narrows the worker to a set of
		// organizations; unset, every broadcast invalidation is applied.
		tenantIDs := []string{}
		if envTenants := os.Getenv("AEGIS_TENANTS"); envTenants != "" {
			tenantIDs = strings.Split(envTenants, ",")
		}

		workerCfg := worker.Config{
			TenantIDs: tenantIDs,
		}

		if err := invalidationWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start invalidation worker", "error", err)
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, service, repo, store, registry, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("aegis is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop invalidation worker first
	if invalidationWorker != nil {
		if err := invalidationWorker.Stop(); err != nil {
			slog.Error("failed to stop invalidation worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("aegis shutdown complete")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🛡  AEGIS                    ║")
	fmt.Println("  ║   Tenant-Aware Caching and Resilience     ║")
	fmt.Println("  ║      One cache, every clinic safe.        ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /patients               - Create a patient")
	fmt.Println("    GET  /patients               - List patients for tenant")
	fmt.Println("    GET  /patients/{id}          - Get patient by ID")
	fmt.Println("    PUT  /patients/{id}          - Update a patient")
	fmt.Println("    DELETE /patients/{id}        - Delete a patient")
	fmt.Println("    POST /cache/invalidate       - Drop tenant's cached entries")
	fmt.Println("    GET  /breakers               - Circuit breaker health")
	fmt.Println("    POST /breakers/{name}/reset  - Force a breaker closed")
	fmt.Println("    GET  /health                 - Health check")
	fmt.Println()
}
