package workorder

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brokkr-io/brokkr/internal/eventbus"
	"github.com/brokkr-io/brokkr/internal/labelmatch"
	"github.com/brokkr-io/brokkr/internal/tenant"
)

// Service wraps the Store with the tenant-acquire lifecycle and emits
// events on completion, per spec §4.7's dotted event namespace.
type Service struct {
	store *Store
	pool  *pgxpool.Pool
	bus   *eventbus.Bus
}

// NewService builds a Service bound to a tenant-scoped pool.
func NewService(pool *pgxpool.Pool, bus *eventbus.Bus) *Service {
	return &Service{store: NewStore(pool), pool: pool, bus: bus}
}

// Create enqueues a new work order with optional OR-match targeting labels.
func (s *Service) Create(ctx context.Context, schema string, req CreateRequest) (WorkOrder, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return WorkOrder{}, err
	}
	defer conn.Release()

	w, err := s.store.Create(ctx, conn, req.WorkType, req.YAMLContent, req.ClaimTimeoutSeconds, req.MaxRetries, req.BackoffSeconds)
	if err != nil {
		return WorkOrder{}, err
	}

	for _, l := range req.Labels {
		if err := labelmatch.ValidateLabel(l); err != nil {
			continue
		}
		_ = s.store.AddLabel(ctx, conn, w.ID, l)
	}
	return w, nil
}

// Claim assigns the next eligible work order to agentID.
func (s *Service) Claim(ctx context.Context, schema string, agentID uuid.UUID) (WorkOrder, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return WorkOrder{}, err
	}
	defer conn.Release()
	return s.store.Claim(ctx, conn, agentID)
}

// Complete resolves a claimed work order and emits workorder.completed or
// workorder.failed.
func (s *Service) Complete(ctx context.Context, schema string, workOrderID, agentID uuid.UUID, success bool, message string) error {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return err
	}
	defer conn.Release()

	if err := s.store.Complete(ctx, conn, workOrderID, agentID, success, message); err != nil {
		return err
	}

	if s.bus != nil {
		eventType := "workorder.completed"
		if !success {
			eventType = "workorder.failed"
		}
		if event, err := eventbus.NewEvent(eventType, map[string]any{
			"work_order_id": workOrderID,
			"agent_id":      agentID,
			"message":       message,
		}); err == nil {
			s.bus.Publish(event)
		}
	}
	return nil
}

// List returns all live work orders.
func (s *Service) List(ctx context.Context, schema string) ([]WorkOrder, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return nil, err
	}
	defer conn.Release()
	return s.store.List(ctx, conn)
}

// Get returns a work order by id.
func (s *Service) Get(ctx context.Context, schema string, id uuid.UUID) (WorkOrder, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return WorkOrder{}, err
	}
	defer conn.Release()
	return s.store.Get(ctx, conn, id)
}

// RecoverStaleClaims returns expired CLAIMED rows to PENDING. Intended to
// be called from internal/sweep on a fixed interval.
func (s *Service) RecoverStaleClaims(ctx context.Context, schema string) (int64, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return 0, err
	}
	defer conn.Release()
	return s.store.RecoverStaleClaims(ctx, conn)
}

// PurgeLog deletes finalized work_order_log rows older than retention.
func (s *Service) PurgeLog(ctx context.Context, schema string, retention time.Duration) (int64, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return 0, err
	}
	defer conn.Release()
	return s.store.PurgeLog(ctx, conn, retention)
}
