// Package app wires the broker's infrastructure and domain layers together
// and runs either the api or the worker mode, generalizing
// wisbric-nightowl/internal/app/app.go's Run/runAPI/runWorker split from a
// single-tenant alerting service to Brokkr's control-plane domain.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/brokkr-io/brokkr/internal/audit"
	"github.com/brokkr-io/brokkr/internal/config"
	"github.com/brokkr-io/brokkr/internal/credential"
	"github.com/brokkr-io/brokkr/internal/eventbus"
	"github.com/brokkr-io/brokkr/internal/httpserver"
	"github.com/brokkr-io/brokkr/internal/platform"
	"github.com/brokkr-io/brokkr/internal/sweep"
	"github.com/brokkr-io/brokkr/internal/telemetry"
	"github.com/brokkr-io/brokkr/internal/tenant"
	"github.com/brokkr-io/brokkr/pkg/agent"
	"github.com/brokkr-io/brokkr/pkg/agentevent"
	"github.com/brokkr-io/brokkr/pkg/diagnostic"
	"github.com/brokkr-io/brokkr/pkg/generator"
	"github.com/brokkr-io/brokkr/pkg/health"
	"github.com/brokkr-io/brokkr/pkg/stack"
	"github.com/brokkr-io/brokkr/pkg/stacktemplate"
	"github.com/brokkr-io/brokkr/pkg/webhook"
	"github.com/brokkr-io/brokkr/pkg/workorder"
)

// Run connects to the infrastructure named in cfg, applies migrations, and
// starts the requested mode (api or worker).
func Run(ctx context.Context, cfg config.BrokerConfig) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting brokkr broker", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConnections)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = platform.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error("closing redis", "error", err)
			}
		}()
	}

	if err := platform.RunGlobalMigrations(cfg.DatabaseURL, cfg.MigrationsGlobalDir); err != nil {
		return fmt.Errorf("running global migrations: %w", err)
	}
	logger.Info("global migrations applied")

	if err := platform.RunTenantMigrations(cfg.DatabaseURL, cfg.MigrationsTenantDir); err != nil {
		return fmt.Errorf("running tenant migrations: %w", err)
	}
	logger.Info("tenant migrations applied")

	metricsReg := telemetry.NewMetricsRegistry()

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg)
	case "worker":
		return runWorker(ctx, cfg, logger, db)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

func runAPI(ctx context.Context, cfg config.BrokerConfig, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	creds := &credential.Store{Pool: db, Schema: cfg.DatabaseSchema, Pepper: []byte(cfg.CredentialPepper)}
	sealer, err := credential.NewSealer([]byte(cfg.EncryptionKey))
	if err != nil {
		return fmt.Errorf("constructing credential sealer: %w", err)
	}

	bus := eventbus.New(logger)

	auditWriter := audit.NewWriter(db, logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	agentSvc := agent.NewService(db, creds, bus)
	stackSvc := stack.NewService(db, bus)
	generatorSvc := generator.NewService(db, creds)
	stackTemplateSvc := stacktemplate.NewService(db, stackSvc, stacktemplate.TextTemplateRenderer{})
	workOrderSvc := workorder.NewService(db, bus)
	webhookSvc := webhook.NewService(db, sealer)
	stopDispatcher := webhookSvc.StartDispatcher(ctx, bus, cfg.DatabaseSchema)
	defer stopDispatcher()
	healthSvc := health.NewService(db, bus)
	diagnosticSvc := diagnostic.NewService(db)
	agentEventSvc := agentevent.NewService(db, bus)

	srv := httpserver.NewServer(httpserver.ServerConfig{
		CORSAllowedOrigins: cfg.BrokerCORSAllowedOrigins,
		MetricsPath:        cfg.MetricsPath,
	}, logger, db, rdb, metricsReg)

	srv.Router.Get("/status", srv.HandleStatus)

	srv.APIRouter.Use(tenant.Middleware(cfg.DatabaseSchema))
	srv.APIRouter.Use(credential.Middleware(creds, logger))

	srv.APIRouter.Mount("/agents", agent.NewHandler(agentSvc, auditWriter).Routes())
	srv.APIRouter.Mount("/stacks", stack.NewHandler(stackSvc, auditWriter).Routes())
	srv.APIRouter.Mount("/generators", generator.NewHandler(generatorSvc, auditWriter).Routes())
	srv.APIRouter.Mount("/stack-templates", stacktemplate.NewHandler(stackTemplateSvc, auditWriter).Routes())
	srv.APIRouter.Mount("/work-orders", workorder.NewHandler(workOrderSvc, auditWriter).Routes())
	srv.APIRouter.Mount("/webhooks", webhook.NewHandler(webhookSvc, auditWriter).Routes())
	srv.APIRouter.Mount("/health", health.NewHandler(healthSvc).Routes())
	srv.APIRouter.Mount("/diagnostics", diagnostic.NewHandler(diagnosticSvc, auditWriter).Routes())
	srv.APIRouter.Mount("/agent-events", agentevent.NewHandler(agentEventSvc).Routes())

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv.Router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runWorker(ctx context.Context, cfg config.BrokerConfig, logger *slog.Logger, db *pgxpool.Pool) error {
	creds := &credential.Store{Pool: db, Schema: cfg.DatabaseSchema, Pepper: []byte(cfg.CredentialPepper)}
	sealer, err := credential.NewSealer([]byte(cfg.EncryptionKey))
	if err != nil {
		return fmt.Errorf("constructing credential sealer: %w", err)
	}

	bus := eventbus.New(logger)
	auditWriter := audit.NewWriter(db, logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	agentSvc := agent.NewService(db, creds, bus)
	workOrderSvc := workorder.NewService(db, bus)
	webhookSvc := webhook.NewService(db, sealer)
	stopDispatcher := webhookSvc.StartDispatcher(ctx, bus, cfg.DatabaseSchema)
	defer stopDispatcher()
	diagnosticSvc := diagnostic.NewService(db)
	agentEventSvc := agentevent.NewService(db, bus)

	runner := sweep.NewRunner(sweep.Config{
		Schema:                 cfg.DatabaseSchema,
		AgentDegradedThreshold: cfg.AgentDegradedAfter,
		WebhookRetention:       cfg.WebhooksRetention,
		WorkOrderLogRetention:  cfg.WorkOrdersRetention,
		AuditRetention:         cfg.AuditRetention,
		AgentEventRetention:    cfg.AgentEventRetention,
	}, agentSvc, workOrderSvc, webhookSvc, diagnosticSvc, auditWriter, agentEventSvc, logger)

	logger.Info("worker started")
	runner.Run(ctx)
	return nil
}
