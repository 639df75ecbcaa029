// Command flowforge runs the FlowForge core service: the phase orchestrator,
// swarm round loop, workflow engine, REST/WebSocket API, and optional MCP
// server, backed by PostgreSQL and NATS JetStream.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Strob0t/FlowForge/internal/adapter/heuristic"
	"github.com/Strob0t/FlowForge/internal/adapter/hitl"
	ffhttp "github.com/Strob0t/FlowForge/internal/adapter/http"
	"github.com/Strob0t/FlowForge/internal/adapter/mcp"
	ffnats "github.com/Strob0t/FlowForge/internal/adapter/nats"
	"github.com/Strob0t/FlowForge/internal/adapter/natsexec"
	"github.com/Strob0t/FlowForge/internal/adapter/natskv"
	"github.com/Strob0t/FlowForge/internal/adapter/otel"
	"github.com/Strob0t/FlowForge/internal/adapter/postgres"
	"github.com/Strob0t/FlowForge/internal/adapter/ristretto"
	"github.com/Strob0t/FlowForge/internal/adapter/tiered"
	"github.com/Strob0t/FlowForge/internal/adapter/ws"
	"github.com/Strob0t/FlowForge/internal/config"
	"github.com/Strob0t/FlowForge/internal/domain/phase"
	"github.com/Strob0t/FlowForge/internal/logger"
	"github.com/Strob0t/FlowForge/internal/middleware"
	"github.com/Strob0t/FlowForge/internal/port/cache"
	"github.com/Strob0t/FlowForge/internal/port/executor"
	"github.com/Strob0t/FlowForge/internal/resilience"
	"github.com/Strob0t/FlowForge/internal/service"
)

const version = "0.1.0"

// sessionBucket is the JetStream KV bucket holding serialized session blobs.
const sessionBucket = "flowforge-sessions"

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"max_parallel", cfg.Orchestrator.MaxParallel,
	)

	ctx := context.Background()

	shutdownMetrics, err := otel.InitMetrics(ctx, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() { _ = shutdownMetrics(context.Background()) }()

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	queue, err := ffnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	sessionKV, err := queue.KeyValue(ctx, sessionBucket, 0)
	if err != nil {
		return fmt.Errorf("session bucket: %w", err)
	}
	blobs := natskv.NewStore(sessionKV)

	var resultCache cache.Cache
	if cfg.Orchestrator.ResultCache {
		l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
		if err != nil {
			return fmt.Errorf("l1 cache: %w", err)
		}
		defer l1.Close()

		cacheKV, err := queue.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
		if err != nil {
			return fmt.Errorf("cache bucket: %w", err)
		}
		resultCache = tiered.New(l1, natskv.New(cacheKV), cfg.Cache.L2TTL)
	}

	// --- Phase executors ---

	natsexec.Register(queue, "nats")
	phaseExec, err := executor.New("nats", nil)
	if err != nil {
		return fmt.Errorf("executor: %w", err)
	}
	executors := map[string]executor.Executor{"nats": phaseExec}

	registry := phase.NewRegistry()
	for _, typ := range []string{"analyze", "implement", "verify", "summarize"} {
		registry.Register(phase.Definition{Type: typ, Executor: "nats"})
	}

	// --- Services ---

	hub := ws.NewHub()
	gate := hitl.New(hub)
	store := postgres.NewStore(pool)
	route := heuristic.New("nats", registry.Types())

	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	retry := resilience.RetryPolicy{MaxRetries: cfg.Retry.MaxRetries, Delay: cfg.Retry.Delay}

	sessions := service.NewSessionService(blobs)
	phases := service.NewPhaseService(registry, executors, resultCache, hub, breaker, retry, metrics, &cfg.Orchestrator, cfg.Cache.L2TTL)
	workflows := service.NewWorkflowService(registry, phases, sessions, store, gate, hub, metrics, &cfg.Orchestrator)
	swarmSvc := service.NewSwarmService(sessions, phases, executors, route, gate, store, hub, queue, metrics, &cfg.Swarm, &cfg.Orchestrator)

	if err := workflows.LoadDirectory(ctx, cfg.Workflows.Dir); err != nil {
		return fmt.Errorf("workflow dir: %w", err)
	}

	// --- MCP ---

	mcpSrv := mcp.NewServer(
		mcp.ServerConfig{Addr: cfg.MCP.Addr, Name: "flowforge", Version: version, APIKey: cfg.MCP.APIKey},
		mcp.ServerDeps{Workflows: workflows, Phases: phases, Sessions: sessions, Swarm: swarmSvc},
	)
	if err := mcpSrv.Start(); err != nil {
		return fmt.Errorf("mcp: %w", err)
	}

	// --- HTTP ---

	handlers := &ffhttp.Handlers{
		Workflows: workflows,
		Phases:    phases,
		Sessions:  sessions,
		Swarm:     swarmSvc,
		Gate:      gate,
		Hub:       hub,
		Queue:     queue,
	}

	r := chi.NewRouter()

	r.Use(ffhttp.SecurityHeaders)
	r.Use(ffhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(middleware.RequestID)
	r.Use(ffhttp.Logger)
	r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	ffhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := mcpSrv.Stop(shutdownCtx); err != nil {
		slog.Warn("mcp shutdown", "error", err)
	}
	return srv.Shutdown(shutdownCtx)
}
