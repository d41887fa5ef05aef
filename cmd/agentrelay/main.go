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

	"github.com/agentrelay/agentrelay/internal/adapter/echo"
	arhttp "github.com/agentrelay/agentrelay/internal/adapter/http"
	"github.com/agentrelay/agentrelay/internal/adapter/memory"
	arnats "github.com/agentrelay/agentrelay/internal/adapter/nats"
	arotel "github.com/agentrelay/agentrelay/internal/adapter/otel"
	"github.com/agentrelay/agentrelay/internal/adapter/postgres"
	"github.com/agentrelay/agentrelay/internal/adapter/ristretto"
	"github.com/agentrelay/agentrelay/internal/adapter/webhook"
	"github.com/agentrelay/agentrelay/internal/adapter/ws"
	"github.com/agentrelay/agentrelay/internal/broadcast"
	"github.com/agentrelay/agentrelay/internal/cardsign"
	"github.com/agentrelay/agentrelay/internal/config"
	"github.com/agentrelay/agentrelay/internal/logger"
	"github.com/agentrelay/agentrelay/internal/middleware"
	"github.com/agentrelay/agentrelay/internal/port/eventbus"
	"github.com/agentrelay/agentrelay/internal/port/pushstore"
	"github.com/agentrelay/agentrelay/internal/port/taskstore"
	"github.com/agentrelay/agentrelay/internal/resilience"
	"github.com/agentrelay/agentrelay/internal/service"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

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

	slog.SetDefault(logger.New(cfg.Logging))
	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"storage", cfg.Storage.Driver,
		"push_enabled", cfg.Push.Enabled,
	)

	ctx := context.Background()

	// --- Telemetry ---
	endpoint := ""
	if cfg.Telemetry.Enabled {
		endpoint = cfg.Telemetry.Endpoint
	}
	shutdownTelemetry, err := arotel.Init(ctx, cfg.Logging.Service, cfg.Agent.Version, endpoint)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(shutdownCtx)
	}()

	metrics, err := arotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Storage ---
	var (
		tasks   taskstore.Store
		pushes  pushstore.Store
		cleanup func()
	)
	switch cfg.Storage.Driver {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		cleanup = pool.Close
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			pool.Close()
			return fmt.Errorf("migrations: %w", err)
		}
		store := postgres.NewStore(pool)
		tasks = store
		pushes = postgres.NewPushStore(store)
		slog.Info("postgres connected, migrations applied")
	default:
		tasks = memory.NewTaskStore()
		pushes = memory.NewPushStore()
		cleanup = func() {}
	}
	defer cleanup()

	// --- NATS ---
	var bus eventbus.Bus
	var natsBus *arnats.Bus
	if cfg.NATS.URL != "" {
		natsBus, err = arnats.Connect(ctx, cfg.NATS.URL, cfg.NATS.Stream)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = natsBus.Drain() }()
		bus = natsBus
		slog.Info("nats connected", "stream", cfg.NATS.Stream)
	}

	// --- Cache ---
	taskCache, err := ristretto.New(cfg.Cache.MaxBytes)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer func() {
		hits, misses := taskCache.Stats()
		slog.Info("cache closed", "hits", hits, "misses", misses)
		taskCache.Close()
	}()

	// --- Services ---
	var signer *cardsign.Signer
	if cfg.Signing.Enabled {
		signer, err = cardsign.NewSigner(cfg.Signing.KeyFile, cfg.Signing.KeyID)
		if err != nil {
			return fmt.Errorf("card signer: %w", err)
		}
	}
	cardSvc := service.NewCardService(*cfg, signer, taskCache)

	bc := broadcast.New(cfg.Broadcast.Buffer)

	dispatcher := webhook.NewDispatcher(webhook.Options{
		AttemptTimeout: cfg.Push.AttemptTimeout,
		MaxAttempts:    cfg.Push.MaxAttempts,
		MaxElapsed:     cfg.Push.MaxElapsed,
		MaxConcurrent:  cfg.Push.MaxConcurrent,
		AllowPrivate:   cfg.Push.AllowPrivate,
		Credential:     cfg.Push.Credential,
	}, resilience.NewBreakerSet(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	pushSvc := service.NewPushService(pushes, tasks, bus, dispatcher,
		cfg.Push.Enabled, cfg.Push.AllowPrivate, metrics)

	taskSvc := service.NewTaskService(service.TaskServiceConfig{
		Store:              tasks,
		PushConfigs:        pushes,
		Executor:           echo.New(),
		Broadcaster:        bc,
		Bus:                bus,
		Cache:              taskCache,
		TaskTTL:            cfg.Cache.TaskTTL,
		HistoryDefault:     cfg.History.DefaultLength,
		RequiredExtensions: cardSvc.RequiredExtensions(),
		PushEnabled:        cfg.Push.Enabled,
		PushAllowPrivate:   cfg.Push.AllowPrivate,
		Metrics:            metrics,
	})

	stopPush, err := pushSvc.Start(ctx)
	if err != nil {
		return fmt.Errorf("push consumer: %w", err)
	}
	defer stopPush()

	// --- HTTP ---
	handlers := arhttp.NewHandlers(taskSvc, pushSvc, cardSvc, bc, cfg.Server.BodyLimit)
	wsHandler := ws.NewHandler(taskSvc, bc)

	r := chi.NewRouter()
	r.Use(arhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(arhttp.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(arhttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(arotel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(middleware.Auth(cfg.Auth.Keys))
	r.Use(middleware.Version(cfg.Protocol.Versions, func(w http.ResponseWriter, _ *http.Request, err error) {
		arhttp.WriteError(w, err)
	}))

	if natsBus != nil && cfg.NATS.IdempotencyBucket != "" {
		kv, err := natsBus.KeyValue(ctx, cfg.NATS.IdempotencyBucket, cfg.NATS.IdempotencyTTL)
		if err != nil {
			return fmt.Errorf("idempotency bucket: %w", err)
		}
		r.Use(middleware.Idempotency(kv))
	}

	r.Get("/v1/tasks/{id}/ws", wsHandler.Subscribe)
	arhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No write timeout: SSE and WebSocket streams stay open.
		IdleTimeout: 120 * time.Second,
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

	return srv.Shutdown(shutdownCtx)
}
