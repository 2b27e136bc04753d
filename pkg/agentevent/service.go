package agentevent

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brokkr-io/brokkr/internal/eventbus"
	"github.com/brokkr-io/brokkr/internal/tenant"
)

// Service records agent-reported events and republishes them onto the
// bus under the dotted event-type namespace webhook subscriptions match
// against (spec §4.7), distinct from the agent's own free-form
// event_type field.
type Service struct {
	store *Store
	pool  *pgxpool.Pool
	bus   *eventbus.Bus
}

// NewService builds a Service bound to a tenant-scoped pool. bus may be
// nil, in which case deployment.applied/deployment.failed are simply not
// emitted.
func NewService(pool *pgxpool.Pool, bus *eventbus.Bus) *Service {
	return &Service{store: NewStore(pool), pool: pool, bus: bus}
}

func (s *Service) publish(eventType string, data any) {
	if s.bus == nil {
		return
	}
	event, err := eventbus.NewEvent(eventType, data)
	if err != nil {
		return
	}
	s.bus.Publish(event)
}

// Report records one agent-reported event and republishes it as
// deployment.applied or deployment.failed when event_type is
// "deployment", per spec §4.5/§4.7.
func (s *Service) Report(ctx context.Context, schema string, agentID uuid.UUID, req ReportRequest) (Event, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return Event{}, err
	}
	defer conn.Release()

	e, err := s.store.Report(ctx, conn, agentID, req.DeploymentObjectID, req.EventType, req.Status, req.Message, req.Detail)
	if err != nil {
		return Event{}, err
	}

	if e.EventType == TypeDeployment {
		busType := "deployment.applied"
		if e.Status == StatusFailure {
			busType = "deployment.failed"
		}
		s.publish(busType, e)
	}

	return e, nil
}

// ByDeploymentObject returns every event reported for one deployment
// object, for admin inspection.
func (s *Service) ByDeploymentObject(ctx context.Context, schema string, deploymentObjectID uuid.UUID) ([]Event, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return nil, err
	}
	defer conn.Release()
	return s.store.ByDeploymentObject(ctx, conn, deploymentObjectID)
}

// ByAgent returns an agent's most recent reported events.
func (s *Service) ByAgent(ctx context.Context, schema string, agentID uuid.UUID, limit int) ([]Event, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return nil, err
	}
	defer conn.Release()
	if limit <= 0 {
		limit = 100
	}
	return s.store.ByAgent(ctx, conn, agentID, limit)
}

// PurgeOlderThan sweeps events past their retention window.
func (s *Service) PurgeOlderThan(ctx context.Context, schema string, retention time.Duration) (int64, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return 0, err
	}
	defer conn.Release()
	return s.store.PurgeOlderThan(ctx, conn, retention)
}
