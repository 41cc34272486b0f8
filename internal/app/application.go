// Package app wires Procguard's dependencies together and owns the
// process lifecycle, grounded on the teacher's internal/app/application.go
// (Initialize/Start/WaitForShutdown/Shutdown, a 30s ticker reporting
// pool stats into metrics.DatabaseConnectionsGauge, SIGINT/SIGTERM
// handling with a bounded shutdown timeout) adapted from an HTTP API
// bootstrap to this domain's engine + scheduler + health endpoint.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/procguard/core/internal/approval"
	"github.com/procguard/core/internal/checkpoint"
	"github.com/procguard/core/internal/config"
	"github.com/procguard/core/internal/engine"
	"github.com/procguard/core/internal/identity"
	"github.com/procguard/core/internal/jobs"
	"github.com/procguard/core/internal/ledger/postgres"
	"github.com/procguard/core/internal/logging"
	"github.com/procguard/core/internal/metrics"
	"github.com/procguard/core/internal/repository"
	"github.com/procguard/core/internal/resilience"
	"github.com/procguard/core/internal/tracing"
)

// Application owns every long-lived dependency procguardd needs and the
// order they must start and stop in.
type Application struct {
	cfg *config.Config
	log *logging.Logger

	db       *postgres.Repository
	reader   *postgres.Reader
	facade   *repository.Facade
	Engine   *engine.Engine
	Identity *identity.AssertionVerifier
	Approval *approval.Ceremony
	Ledger   *resilience.Endpoint
	LKG      *resilience.LKGStore

	scheduler      *jobs.Scheduler
	tracerShutdown func(context.Context) error
	server         *http.Server

	stopMetricsLoop chan struct{}
}

// NewApplication constructs an empty Application; Initialize fills it in.
func NewApplication() *Application {
	return &Application{}
}

// Initialize loads configuration and brings up every dependency in the
// order it's needed: config, logging, tracing, the ledger store and its
// migrations, the engine and its collaborators, the resilience endpoint,
// and the reverification scheduler. Nothing is started yet.
func (a *Application) Initialize() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("app: load config: %w", err)
	}
	a.cfg = cfg
	a.log = logging.New(cfg.LogLevel, cfg.Environment)

	shutdown, err := tracing.InitTracer(context.Background(), tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		CollectorURL: cfg.Tracing.CollectorURL,
		Environment:  cfg.Environment,
		SampleRate:   cfg.Tracing.SampleRate,
	}, a.log.Zap())
	if err != nil {
		return fmt.Errorf("app: init tracing: %w", err)
	}
	a.tracerShutdown = shutdown

	db, err := postgres.Open(cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		return fmt.Errorf("app: open ledger store: %w", err)
	}
	a.db = db

	if cfg.Database.ApplyMigrations {
		if err := postgres.RunMigrations(cfg.Database.URL); err != nil {
			return fmt.Errorf("app: run migrations: %w", err)
		}
	}
	a.reader = postgres.NewReader(db)
	a.facade = repository.NewFacade(db)
	a.Engine = engine.New(a.facade, nil, a.log)

	a.Identity = identity.NewAssertionVerifier([]byte(cfg.Identity.JWTSecret), cfg.Identity.Audience)
	a.Approval = approval.NewCeremony(a.Identity)

	a.Ledger = resilience.NewEndpoint("ledger",
		resilience.Params{
			FailureThreshold: cfg.Resilience.Availability.FailureThreshold,
			ResetTimeout:     cfg.Resilience.Availability.ResetTimeout,
			HalfOpenSuccess:  cfg.Resilience.Availability.HalfOpenSuccess,
		},
		resilience.Params{
			FailureThreshold: cfg.Resilience.Integrity.FailureThreshold,
			ResetTimeout:     cfg.Resilience.Integrity.ResetTimeout,
			HalfOpenSuccess:  cfg.Resilience.Integrity.HalfOpenSuccess,
		},
	)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	a.LKG = resilience.NewLKGStore(redisClient, cfg.LKG.TTL)

	signer := checkpoint.NewSigner([]byte(cfg.Checkpoint.MasterSecret))
	a.scheduler = jobs.NewScheduler(a.reader, a.db, signer, a.log)

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      a.buildHandler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	a.log.Info("application initialized", "environment", cfg.Environment)
	return nil
}

func (a *Application) buildHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Start launches the reverification scheduler, the metrics/health
// server, and the connection-pool reporting loop.
func (a *Application) Start() error {
	if err := a.scheduler.Start(context.Background(), a.cfg.Jobs.FilterAuditCron, a.cfg.Jobs.EvidenceCron); err != nil {
		return fmt.Errorf("app: start scheduler: %w", err)
	}

	a.stopMetricsLoop = make(chan struct{})
	go a.startPoolMetricsLoop()

	go func() {
		a.log.Info("health/metrics server listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("health/metrics server stopped", "error", err)
		}
	}()

	return nil
}

func (a *Application) startPoolMetricsLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			stats := a.db.Stats()
			metrics.DatabaseConnectionsGauge.WithLabelValues("open").Set(float64(stats.OpenConnections))
			metrics.DatabaseConnectionsGauge.WithLabelValues("idle").Set(float64(stats.Idle))
			metrics.DatabaseConnectionsGauge.WithLabelValues("in_use").Set(float64(stats.InUse))
		case <-a.stopMetricsLoop:
			return
		}
	}
}

// WaitForShutdown blocks until SIGINT or SIGTERM arrives.
func (a *Application) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	a.log.Info("shutdown signal received")
}

// Shutdown stops every background component in reverse order of
// startup, bounded by a 30s timeout.
func (a *Application) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.stopMetricsLoop != nil {
		close(a.stopMetricsLoop)
	}
	a.scheduler.Stop()

	if err := a.server.Shutdown(ctx); err != nil {
		a.log.Error("health/metrics server shutdown failed", "error", err)
	}

	if err := a.tracerShutdown(ctx); err != nil {
		a.log.Error("tracing shutdown failed", "error", err)
	}

	if err := a.db.Close(); err != nil {
		a.log.Error("ledger store close failed", "error", err)
	}

	_ = a.log.Sync()
	return nil
}
