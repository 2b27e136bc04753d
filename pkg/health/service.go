package health

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brokkr-io/brokkr/internal/eventbus"
	"github.com/brokkr-io/brokkr/internal/tenant"
)

// Service implements deployment health reporting, with event emission on
// status transitions into/out of a degraded-or-worse state.
type Service struct {
	store *Store
	pool  *pgxpool.Pool
	bus   *eventbus.Bus
}

// NewService builds a Service bound to a tenant-scoped pool.
func NewService(pool *pgxpool.Pool, bus *eventbus.Bus) *Service {
	return &Service{store: NewStore(pool), pool: pool, bus: bus}
}

// ReportBatch upserts every health report an agent submits in one sweep,
// per spec §6's "agents batch-upsert DeploymentHealth". Each report is
// upserted independently so one bad row doesn't block the rest of the
// batch; the first error encountered is returned after all reports have
// been attempted.
func (s *Service) ReportBatch(ctx context.Context, schema string, agentID uuid.UUID, reports []ReportRequest) error {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return err
	}
	defer conn.Release()

	var firstErr error
	for _, r := range reports {
		summary, err := json.Marshal(r.Summary)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("marshaling health summary: %w", err)
			}
			continue
		}

		previous, prevErr := s.store.ByDeploymentObject(ctx, conn, r.DeploymentObjectID)
		wasHealthy := prevErr != nil || !anyDegradedOrWorse(previous, agentID)

		h, err := s.store.Upsert(ctx, conn, agentID, r.DeploymentObjectID, r.Status, summary)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		s.publishTransition(h, wasHealthy)
	}
	return firstErr
}

func anyDegradedOrWorse(reports []DeploymentHealth, agentID uuid.UUID) bool {
	for _, r := range reports {
		if r.AgentID == agentID && r.Status != StatusHealthy {
			return true
		}
	}
	return false
}

// publishTransition emits health.degraded / health.recovered when a
// report crosses the healthy boundary, per the event list in spec §4.7.
func (s *Service) publishTransition(h DeploymentHealth, wasHealthy bool) {
	if s.bus == nil {
		return
	}
	isHealthy := h.Status == StatusHealthy
	if wasHealthy == isHealthy {
		return
	}
	eventType := "health.degraded"
	if isHealthy {
		eventType = "health.recovered"
	}
	event, err := eventbus.NewEvent(eventType, h)
	if err != nil {
		return
	}
	s.bus.Publish(event)
}

// ByDeploymentObject returns every agent's health report for a deployment
// object.
func (s *Service) ByDeploymentObject(ctx context.Context, schema string, deploymentObjectID uuid.UUID) ([]DeploymentHealth, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return nil, err
	}
	defer conn.Release()
	return s.store.ByDeploymentObject(ctx, conn, deploymentObjectID)
}

// ByStack returns every health report across a stack's deployment
// objects.
func (s *Service) ByStack(ctx context.Context, schema string, stackID uuid.UUID) ([]DeploymentHealth, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return nil, err
	}
	defer conn.Release()
	return s.store.ByStack(ctx, conn, stackID)
}
