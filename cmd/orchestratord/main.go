// Command orchestratord runs the task orchestrator service: the runtime
// wire protocol over HTTP, backed by the local transport adapter.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/coderclaw/coderclaw/internal/common/config"
	"github.com/coderclaw/coderclaw/internal/common/ids"
	"github.com/coderclaw/coderclaw/internal/common/logger"
	"github.com/coderclaw/coderclaw/internal/events/bus"
	"github.com/coderclaw/coderclaw/internal/projectctx"
	"github.com/coderclaw/coderclaw/internal/roles"
	"github.com/coderclaw/coderclaw/internal/runtime"
	runtimeapi "github.com/coderclaw/coderclaw/internal/runtime/api"
	"github.com/coderclaw/coderclaw/internal/security"
	"github.com/coderclaw/coderclaw/internal/task/engine"
	"github.com/coderclaw/coderclaw/internal/task/store"
	"github.com/coderclaw/coderclaw/internal/transport"
	"github.com/coderclaw/coderclaw/internal/transport/local"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("starting orchestrator service...")

	// 3. Event bus: NATS when configured, in-memory otherwise
	var eventBus bus.EventBus
	if cfg.NATS.URL != "" {
		natsBus, err := bus.NewNATSEventBus(bus.NATSConfig{
			URL:           cfg.NATS.URL,
			MaxReconnects: cfg.NATS.MaxReconnects,
		}, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		eventBus = natsBus
	} else {
		eventBus = bus.NewMemoryEventBus(log)
	}
	defer eventBus.Close()

	// 4. Task store
	var taskStore store.Store
	switch cfg.Database.Driver {
	case "sqlite":
		taskStore, err = store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			log.Fatal("failed to open task store", zap.Error(err))
		}
	default:
		taskStore = store.NewMemoryStore()
	}
	defer taskStore.Close()
	log.Info("task store ready", zap.String("driver", cfg.Database.Driver))

	// 5. Task engine
	gen := ids.NewUUIDGenerator()
	eng := engine.New(taskStore, gen, log, engine.WithEventBus(eventBus))

	// 6. Role registry, with custom roles from the project context
	var custom []*roles.Role
	if projectctx.Exists(".") {
		tree, err := projectctx.Load(".")
		if err != nil {
			log.Warn("failed to load project context", zap.Error(err))
		} else {
			custom, err = roles.LoadCustomRoles(tree.AgentsDir, log)
			if err != nil {
				log.Warn("failed to load custom roles", zap.Error(err))
			}
		}
	}
	registry := roles.NewRegistry(log, custom...)
	log.Info("role registry loaded", zap.Int("roles", len(registry.List())))

	// 7. Security service
	sec := security.NewService(gen, log,
		security.WithSessionTTL(cfg.Security.SessionTTL()),
		security.WithAuditLogSize(cfg.Security.AuditLogSize),
		security.WithCredentialProvider(security.NewEnvProvider("CODERCLAW_")),
	)

	// 8. Local transport and runtime facade
	adapter := local.NewAdapter(eng, transport.AcceptAllSpawner{}, registry, log, local.Options{
		Workers:   cfg.Runtime.MaxConcurrent,
		QueueSize: cfg.Runtime.QueueSize,
	})
	rt := runtime.New(adapter, runtime.Mode(cfg.Runtime.Mode), eng, log)
	defer rt.Close()

	// 9. HTTP server with Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	runtimeapi.SetupRoutes(router, rt, sec, log)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	// 10. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down orchestrator service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("orchestrator service stopped")
}
