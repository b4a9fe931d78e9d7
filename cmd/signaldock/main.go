// SignalDock engine: monitors host signals, runs event pipelines and
// serves the HTTP/WebSocket API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/signaldock/signaldock/pkg/actions"
	"github.com/signaldock/signaldock/pkg/api"
	"github.com/signaldock/signaldock/pkg/bus"
	"github.com/signaldock/signaldock/pkg/config"
	"github.com/signaldock/signaldock/pkg/database"
	"github.com/signaldock/signaldock/pkg/events"
	"github.com/signaldock/signaldock/pkg/models"
	"github.com/signaldock/signaldock/pkg/pipeline"
	"github.com/signaldock/signaldock/pkg/services"
	"github.com/signaldock/signaldock/pkg/signals"
	"github.com/signaldock/signaldock/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// Parse command-line flags
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	slog.Info("Starting SignalDock",
		"version", version.Full(),
		"config_dir", *configDir)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize database
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}

	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	// 3. Initialize persistence services
	store := services.NewPipelineStore(dbClient.DB())
	recorder := services.NewRecorder(dbClient.DB())

	// 4. Initialize permissions and action registry
	perms := config.NewPermissions(cfg.Permissions)
	registry := actions.NewRegistry()
	slog.Info("Action registry initialized", "actions", len(registry.Catalog()))

	// 5. Initialize WebSocket hub and broadcaster
	hub := events.NewHub(cfg.Hub.WriteTimeout)
	broadcaster := events.NewBroadcaster(hub)

	// 6. Initialize pipeline executor. Action outcomes go to the hub and
	// the action log.
	sched := pipeline.NewScheduler()
	onResult := func(pipelineID int64, nodeID string, ev models.SignalEvent, result models.ActionResult) {
		broadcaster.ActionResult(pipelineID, nodeID, result)

		recordCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := recorder.RecordAction(recordCtx, pipelineID, nodeID, result); err != nil {
			slog.Error("Failed to record action result",
				"pipeline_id", pipelineID, "node_id", nodeID, "error", err)
		}
	}
	executor := pipeline.New(registry, perms, sched, onResult)

	// 7. Load active pipelines. A pipeline that no longer compiles is
	// logged and skipped, not fatal.
	active, err := store.ListActive(ctx)
	if err != nil {
		slog.Error("Failed to list active pipelines", "error", err)
		os.Exit(1)
	}
	for _, rec := range active {
		if err := executor.Load(rec); err != nil {
			slog.Error("Failed to load active pipeline, skipping",
				"pipeline_id", rec.ID, "name", rec.Name, "error", err)
		}
	}
	slog.Info("Pipelines loaded", "active", len(active), "loaded", len(executor.LoadedIDs()))

	// 8. Wire the event bus: sources publish, the executor, hub and event
	// log consume on their own queues.
	eventBus := bus.New(cfg.Bus.QueueSize)
	mustSubscribe(eventBus, "executor", func(ev models.SignalEvent) {
		executor.HandleEvent(ctx, ev)
	})
	mustSubscribe(eventBus, "websocket", broadcaster.SignalEvent)
	mustSubscribe(eventBus, "recorder", func(ev models.SignalEvent) {
		recordCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := recorder.RecordEvent(recordCtx, ev); err != nil {
			slog.Error("Failed to record event", "event_id", ev.ID, "error", err)
		}
	})

	// 9. Start signal sources
	manager := signals.NewManager(cfg.Signals, perms)
	manager.SubscribeAll(eventBus.Publish)
	manager.StartAll(ctx)
	slog.Info("Signal sources started", "sources", len(manager.Statuses()))

	// 10. Create HTTP server
	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: api.NewServer(cfg, store, recorder, executor, manager, registry, perms, hub, dbClient.DB()).Router(),
	}

	// 11. Start HTTP server (non-blocking)
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("SignalDock started successfully")

	// 12. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 13. Graceful shutdown: stop producers first, then drain consumers,
	// then close the outward-facing surfaces.
	manager.StopAll()
	slog.Info("Signal sources stopped")

	eventBus.Close()
	slog.Info("Event bus drained")

	sched.Stop()
	hub.Close()

	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}

func mustSubscribe(b *bus.Bus, name string, fn bus.Handler) {
	if err := b.Subscribe(name, fn); err != nil {
		slog.Error("Failed to subscribe to event bus", "subscriber", name, "error", err)
		os.Exit(1)
	}
}
