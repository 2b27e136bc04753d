package diagnostic

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brokkr-io/brokkr/internal/tenant"
)

// Service implements diagnostic request lifecycle: admin creates, agent
// polls and claims, agent posts a result.
type Service struct {
	store *Store
	pool  *pgxpool.Pool
}

// NewService builds a Service bound to a tenant-scoped pool.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{store: NewStore(pool), pool: pool}
}

// Create opens a new diagnostic request against an agent.
func (s *Service) Create(ctx context.Context, schema string, req CreateRequest) (Request, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return Request{}, err
	}
	defer conn.Release()

	ttl := time.Duration(req.TTLSeconds) * time.Second
	return s.store.Create(ctx, conn, req.AgentID, req.DeploymentObjectID, req.Kind, req.Params, ttl)
}

// ListPendingForAgent returns an agent's unexpired pending requests.
func (s *Service) ListPendingForAgent(ctx context.Context, schema string, agentID uuid.UUID) ([]Request, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return nil, err
	}
	defer conn.Release()
	return s.store.ListPendingForAgent(ctx, conn, agentID)
}

// Claim lets an agent claim one of its own pending requests.
func (s *Service) Claim(ctx context.Context, schema string, agentID, requestID uuid.UUID) (Request, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return Request{}, err
	}
	defer conn.Release()
	return s.store.Claim(ctx, conn, agentID, requestID)
}

// Complete records the agent's result for a request it has claimed.
func (s *Service) Complete(ctx context.Context, schema string, requestID, agentID uuid.UUID, req CompleteRequest) (Result, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return Result{}, err
	}
	defer conn.Release()
	return s.store.Complete(ctx, conn, requestID, agentID, req.Success, req.Output, req.ErrorMessage)
}

// Get returns a diagnostic request by id, for admin inspection.
func (s *Service) Get(ctx context.Context, schema string, id uuid.UUID) (Request, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return Request{}, err
	}
	defer conn.Release()
	return s.store.Get(ctx, conn, id)
}

// Result returns the recorded result for a completed request.
func (s *Service) Result(ctx context.Context, schema string, requestID uuid.UUID) (Result, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return Result{}, err
	}
	defer conn.Release()
	return s.store.ResultFor(ctx, conn, requestID)
}

// PurgeExpired sweeps requests (and cascaded results) past their
// retention window.
func (s *Service) PurgeExpired(ctx context.Context, schema string, retention time.Duration) (int64, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return 0, err
	}
	defer conn.Release()
	return s.store.PurgeExpired(ctx, conn, retention)
}
