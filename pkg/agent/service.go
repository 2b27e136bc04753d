package agent

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brokkr-io/brokkr/internal/credential"
	"github.com/brokkr-io/brokkr/internal/dalerr"
	"github.com/brokkr-io/brokkr/internal/eventbus"
	"github.com/brokkr-io/brokkr/internal/labelmatch"
	"github.com/brokkr-io/brokkr/internal/tenant"
)

// Service wraps the Store with the credential issuance spec §4.1
// requires on principal creation.
type Service struct {
	store *Store
	creds *credential.Store
	pool  *pgxpool.Pool
	bus   *eventbus.Bus
}

// NewService builds a Service bound to a tenant-scoped pool. bus may be
// nil, in which case agent.* lifecycle events are simply not emitted.
func NewService(pool *pgxpool.Pool, creds *credential.Store, bus *eventbus.Bus) *Service {
	return &Service{store: NewStore(pool), creds: creds, pool: pool, bus: bus}
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

// Register creates a new agent and issues its first PAK atomically from
// the caller's point of view: if PAK issuance fails the agent row is left
// in place (its absent pak_hash makes it unverifiable, which is safe) and
// the error is surfaced for the caller to retry Rotate.
func (s *Service) Register(ctx context.Context, schema, name, clusterName string) (CreateResponse, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return CreateResponse{}, err
	}
	defer conn.Release()

	a, err := s.store.Create(ctx, conn, name, clusterName, "")
	if err != nil {
		return CreateResponse{}, err
	}

	plaintext, err := s.creds.Issue(ctx, credential.TableAgents, a.ID)
	if err != nil {
		return CreateResponse{}, err
	}

	s.publish("agent.registered", a)
	return CreateResponse{Agent: a, PAK: plaintext}, nil
}

// RotatePAK issues a fresh PAK for an existing agent.
func (s *Service) RotatePAK(ctx context.Context, agentID uuid.UUID) (string, error) {
	return s.creds.Rotate(ctx, credential.TableAgents, agentID)
}

// Heartbeat refreshes last_heartbeat, promoting INACTIVE to ACTIVE.
func (s *Service) Heartbeat(ctx context.Context, schema string, agentID uuid.UUID) error {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return err
	}
	defer conn.Release()
	return s.store.Heartbeat(ctx, conn, agentID)
}

// Get returns an agent by id.
func (s *Service) Get(ctx context.Context, schema string, id uuid.UUID) (Agent, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return Agent{}, err
	}
	defer conn.Release()

	a, err := s.store.Get(ctx, conn, id)
	if err != nil {
		return Agent{}, err
	}
	a.Labels, _ = s.store.Labels(ctx, conn, id)
	a.Annotations, _ = s.store.Annotations(ctx, conn, id)
	return a, nil
}

// List returns every non-deleted agent.
func (s *Service) List(ctx context.Context, schema string) ([]Agent, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return nil, err
	}
	defer conn.Release()
	return s.store.List(ctx, conn)
}

// Delete soft-deletes an agent.
func (s *Service) Delete(ctx context.Context, schema string, id uuid.UUID) error {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return err
	}
	defer conn.Release()
	return s.store.SoftDelete(ctx, conn, id)
}

// MarkDegraded demotes every ACTIVE agent past threshold since its last
// heartbeat, for the background DEGRADED-promotion sweeper, and emits
// agent.degraded for each one demoted.
func (s *Service) MarkDegraded(ctx context.Context, schema string, threshold time.Duration) (int64, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return 0, err
	}
	defer conn.Release()

	ids, err := s.store.MarkDegraded(ctx, conn, threshold)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.publish("agent.degraded", map[string]uuid.UUID{"id": id})
	}
	return int64(len(ids)), nil
}

// AddLabel attaches a validated label to an agent.
func (s *Service) AddLabel(ctx context.Context, schema string, agentID uuid.UUID, label string) error {
	if err := labelmatch.ValidateLabel(label); err != nil {
		return dalerr.Wrap(dalerr.InvalidInput, "%v", err)
	}

	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return err
	}
	defer conn.Release()
	return s.store.AddLabel(ctx, conn, agentID, label)
}
