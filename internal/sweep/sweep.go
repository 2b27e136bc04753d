// Package sweep hosts the background task set spec §4.9/§2 requires:
// independent cooperative tickers for stale-claim recovery, retention,
// and the agent DEGRADED-promotion check. Grounded on
// pkg/escalation/engine.go's Engine{pool,logger,interval}+Run(ctx) ticker
// shape, generalized from a single alert-escalation tick to one ticker
// per concern since Brokkr's sweeps have independent periods and never
// need to run against the same Kubernetes request context (spec §4.4:
// "they never run in parallel against the same Kubernetes request
// context, but their timers tick independently").
package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/brokkr-io/brokkr/internal/audit"
	"github.com/brokkr-io/brokkr/pkg/agent"
	"github.com/brokkr-io/brokkr/pkg/agentevent"
	"github.com/brokkr-io/brokkr/pkg/diagnostic"
	"github.com/brokkr-io/brokkr/pkg/webhook"
	"github.com/brokkr-io/brokkr/pkg/workorder"
)

// Config tunes every sweeper's interval and retention window. Zero values
// fall back to the defaults below.
type Config struct {
	Schema string

	WorkOrderClaimRecoveryInterval time.Duration
	WebhookClaimRecoveryInterval  time.Duration
	RetentionSweepInterval        time.Duration
	AgentDegradedSweepInterval    time.Duration

	AgentDegradedThreshold time.Duration
	DiagnosticRetention    time.Duration
	WebhookRetention       time.Duration
	WorkOrderLogRetention  time.Duration
	AuditRetention         time.Duration
	AgentEventRetention    time.Duration
}

const (
	defaultClaimRecoveryInterval = 30 * time.Second
	defaultRetentionInterval     = 10 * time.Minute
	defaultDegradedInterval      = 30 * time.Second

	defaultAgentDegradedThreshold = 2 * time.Minute
	defaultDiagnosticRetention    = 60 * time.Minute
	defaultWebhookRetention       = 7 * 24 * time.Hour
	defaultWorkOrderLogRetention  = 0 // 0 means "kept indefinitely", per spec §4.9
	defaultAuditRetention         = 90 * 24 * time.Hour
	defaultAgentEventRetention    = 30 * 24 * time.Hour
)

func (c Config) withDefaults() Config {
	if c.WorkOrderClaimRecoveryInterval == 0 {
		c.WorkOrderClaimRecoveryInterval = defaultClaimRecoveryInterval
	}
	if c.WebhookClaimRecoveryInterval == 0 {
		c.WebhookClaimRecoveryInterval = defaultClaimRecoveryInterval
	}
	if c.RetentionSweepInterval == 0 {
		c.RetentionSweepInterval = defaultRetentionInterval
	}
	if c.AgentDegradedSweepInterval == 0 {
		c.AgentDegradedSweepInterval = defaultDegradedInterval
	}
	if c.AgentDegradedThreshold == 0 {
		c.AgentDegradedThreshold = defaultAgentDegradedThreshold
	}
	if c.DiagnosticRetention == 0 {
		c.DiagnosticRetention = defaultDiagnosticRetention
	}
	if c.WebhookRetention == 0 {
		c.WebhookRetention = defaultWebhookRetention
	}
	if c.AuditRetention == 0 {
		c.AuditRetention = defaultAuditRetention
	}
	if c.AgentEventRetention == 0 {
		c.AgentEventRetention = defaultAgentEventRetention
	}
	return c
}

// Runner owns the broker's background task set: one goroutine per
// sweeper, each ticking at its own configured interval.
type Runner struct {
	cfg Config

	agents      *agent.Service
	workOrders  *workorder.Service
	webhooks    *webhook.Service
	diagnostics *diagnostic.Service
	auditLog    *audit.Writer
	agentEvents *agentevent.Service

	logger *slog.Logger
}

// NewRunner builds a Runner wired to every service whose state it sweeps.
func NewRunner(cfg Config, agents *agent.Service, workOrders *workorder.Service, webhooks *webhook.Service, diagnostics *diagnostic.Service, auditLog *audit.Writer, agentEvents *agentevent.Service, logger *slog.Logger) *Runner {
	return &Runner{
		cfg:         cfg.withDefaults(),
		agents:      agents,
		workOrders:  workOrders,
		webhooks:    webhooks,
		diagnostics: diagnostics,
		auditLog:    auditLog,
		agentEvents: agentEvents,
		logger:      logger,
	}
}

// Run starts every sweeper goroutine and blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	go r.loop(ctx, r.cfg.WorkOrderClaimRecoveryInterval, r.recoverWorkOrderClaims)
	go r.loop(ctx, r.cfg.WebhookClaimRecoveryInterval, r.recoverWebhookAcquisitions)
	go r.loop(ctx, r.cfg.AgentDegradedSweepInterval, r.promoteDegradedAgents)
	go r.loop(ctx, r.cfg.RetentionSweepInterval, r.runRetention)
	<-ctx.Done()
}

func (r *Runner) loop(ctx context.Context, interval time.Duration, tick func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

// recoverWorkOrderClaims returns CLAIMED work orders past their
// claim_timeout_seconds to PENDING, per spec §4.6. The claim query
// directly admits RETRY_PENDING rows whose next_retry_after has passed,
// so no separate retry-promotion sweeper is needed (spec §4.6's
// either-realization note).
func (r *Runner) recoverWorkOrderClaims(ctx context.Context) {
	n, err := r.workOrders.RecoverStaleClaims(ctx, r.cfg.Schema)
	if err != nil {
		r.logger.Error("recovering stale work order claims", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("recovered stale work order claims", "count", n)
	}
}

// recoverWebhookAcquisitions returns acquired deliveries past
// acquired_until to pending, per spec §4.7.
func (r *Runner) recoverWebhookAcquisitions(ctx context.Context) {
	n, err := r.webhooks.RecoverExpiredAcquisitions(ctx, r.cfg.Schema)
	if err != nil {
		r.logger.Error("recovering expired webhook acquisitions", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("recovered expired webhook acquisitions", "count", n)
	}
}

// promoteDegradedAgents demotes ACTIVE agents whose heartbeat has gone
// stale past the configured threshold (spec §4.3, §9 open question
// resolved as a config knob).
func (r *Runner) promoteDegradedAgents(ctx context.Context) {
	n, err := r.agents.MarkDegraded(ctx, r.cfg.Schema, r.cfg.AgentDegradedThreshold)
	if err != nil {
		r.logger.Error("promoting degraded agents", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("promoted agents to degraded", "count", n)
	}
}

// runRetention applies every retention window spec §4.9 names.
func (r *Runner) runRetention(ctx context.Context) {
	if n, err := r.diagnostics.PurgeExpired(ctx, r.cfg.Schema, r.cfg.DiagnosticRetention); err != nil {
		r.logger.Error("purging expired diagnostics", "error", err)
	} else if n > 0 {
		r.logger.Info("purged expired diagnostics", "count", n)
	}

	if n, err := r.webhooks.PurgeTerminal(ctx, r.cfg.Schema, r.cfg.WebhookRetention); err != nil {
		r.logger.Error("purging terminal webhook deliveries", "error", err)
	} else if n > 0 {
		r.logger.Info("purged terminal webhook deliveries", "count", n)
	}

	if r.cfg.WorkOrderLogRetention > 0 {
		if n, err := r.workOrders.PurgeLog(ctx, r.cfg.Schema, r.cfg.WorkOrderLogRetention); err != nil {
			r.logger.Error("purging work order log", "error", err)
		} else if n > 0 {
			r.logger.Info("purged work order log", "count", n)
		}
	}

	if r.auditLog != nil {
		if n, err := r.auditLog.PurgeOlderThan(ctx, r.cfg.Schema, r.cfg.AuditRetention); err != nil {
			r.logger.Error("purging audit log", "error", err)
		} else if n > 0 {
			r.logger.Info("purged audit log", "count", n)
		}
	}

	if r.agentEvents != nil {
		if n, err := r.agentEvents.PurgeOlderThan(ctx, r.cfg.Schema, r.cfg.AgentEventRetention); err != nil {
			r.logger.Error("purging agent events", "error", err)
		} else if n > 0 {
			r.logger.Info("purged agent events", "count", n)
		}
	}
}
