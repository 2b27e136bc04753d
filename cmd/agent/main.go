package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brokkr-io/brokkr/internal/brokerclient"
	"github.com/brokkr-io/brokkr/internal/config"
	"github.com/brokkr-io/brokkr/internal/reconcile"
	"github.com/brokkr-io/brokkr/internal/telemetry"
)

func main() {
	cfg, err := config.Load[config.AgentConfig]()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.AgentConfig, logger *slog.Logger) error {
	logger.Info("starting brokkr agent", "agent_id", cfg.AgentID, "cluster", cfg.ClusterName)

	kube, err := reconcile.NewClient(cfg.KubeconfigPath)
	if err != nil {
		return fmt.Errorf("building kubernetes client: %w", err)
	}

	broker := brokerclient.New(cfg.BrokerURL, cfg.PAK, cfg.AgentID)
	applier := reconcile.NewApplier(kube)
	health := reconcile.NewHealthChecker(kube)
	diagnostics, err := reconcile.NewDiagnostics(cfg.KubeconfigPath)
	if err != nil {
		return fmt.Errorf("building kubernetes diagnostics client: %w", err)
	}
	engine := reconcile.NewEngine(broker, applier, logger)

	metricsReg := telemetry.NewMetricsRegistry()
	metricsSrv := &http.Server{Addr: cfg.MetricsBind, Handler: promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{})}
	go func() {
		logger.Info("agent metrics listening", "addr", cfg.MetricsBind)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server", "error", err)
		}
	}()

	var wg sync.WaitGroup
	start := func(interval time.Duration, name string, tick func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			loop(ctx, interval, name, logger, tick)
		}()
	}

	start(cfg.PollingInterval, "reconcile", func(tickCtx context.Context) {
		if err := engine.Tick(tickCtx); err != nil {
			logger.Error("reconciliation tick failed", "error", err)
		}
	})

	if cfg.DeploymentHealthEnabled {
		start(cfg.DeploymentHealthInterval, "health", func(tickCtx context.Context) {
			runHealthTick(tickCtx, broker, health, logger)
		})
	}

	start(cfg.WorkOrderPollingInterval, "work-order", func(tickCtx context.Context) {
		runWorkOrderTick(tickCtx, broker, applier, logger)
	})

	start(cfg.WebhookPollingInterval, "webhook", func(tickCtx context.Context) {
		runWebhookTick(tickCtx, broker, logger)
	})

	start(cfg.DiagnosticPollingInterval, "diagnostic", func(tickCtx context.Context) {
		runDiagnosticTick(tickCtx, broker, diagnostics, logger)
	})

	<-ctx.Done()
	logger.Info("shutting down agent")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	wg.Wait()
	return nil
}

// loop mirrors internal/sweep.Runner's loop shape: a ticker-driven tick
// function that never runs concurrently with its own next invocation and
// stops cleanly on context cancellation.
func loop(ctx context.Context, interval time.Duration, name string, logger *slog.Logger, tick func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tick(ctx)
		case <-ctx.Done():
			logger.Info("stopping loop", "loop", name)
			return
		}
	}
}
