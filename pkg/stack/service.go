package stack

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brokkr-io/brokkr/internal/dalerr"
	"github.com/brokkr-io/brokkr/internal/eventbus"
	"github.com/brokkr-io/brokkr/internal/labelmatch"
	"github.com/brokkr-io/brokkr/internal/tenant"
)

// Service wraps the Store with the tenant-acquire lifecycle, matching
// pkg/agent/service.go's per-call Acquire/Release convention.
type Service struct {
	store *Store
	pool  *pgxpool.Pool
	bus   *eventbus.Bus
}

// NewService builds a Service bound to a tenant-scoped pool. bus may be
// nil, in which case stack.created/stack.deleted are simply not emitted.
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

// Create creates a new stack, optionally attributed to a generator.
func (s *Service) Create(ctx context.Context, schema, name, description string, generatorID *uuid.UUID) (Stack, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return Stack{}, err
	}
	defer conn.Release()

	st, err := s.store.Create(ctx, conn, name, description, generatorID)
	if err != nil {
		return Stack{}, err
	}
	s.publish("stack.created", st)
	return st, nil
}

// Get returns a stack by id.
func (s *Service) Get(ctx context.Context, schema string, id uuid.UUID) (Stack, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return Stack{}, err
	}
	defer conn.Release()
	return s.store.Get(ctx, conn, id)
}

// List returns a page of non-deleted stacks.
func (s *Service) List(ctx context.Context, schema string, limit, offset int) ([]Stack, int, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return nil, 0, err
	}
	defer conn.Release()
	return s.store.List(ctx, conn, limit, offset)
}

// Delete soft-deletes a stack, cascading to its deployment objects and
// inserting a deletion-marker object, per spec §3's lifecycle rule.
func (s *Service) Delete(ctx context.Context, schema string, id uuid.UUID) error {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return err
	}
	defer conn.Release()

	if err := s.store.SoftDelete(ctx, conn, id); err != nil {
		return err
	}
	s.publish("stack.deleted", map[string]uuid.UUID{"id": id})
	return nil
}

// SubmitDeploymentObject appends a new immutable deployment object to a
// stack after confirming the stack itself is still live.
func (s *Service) SubmitDeploymentObject(ctx context.Context, schema string, stackID uuid.UUID, yamlContent string, generatorID *uuid.UUID) (DeploymentObject, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return DeploymentObject{}, err
	}
	defer conn.Release()

	if _, err := s.store.Get(ctx, conn, stackID); err != nil {
		return DeploymentObject{}, err
	}
	return s.store.CreateDeploymentObject(ctx, conn, stackID, yamlContent, generatorID)
}

// DeploymentObjects returns a stack's ordered, non-deleted deployment
// objects.
func (s *Service) DeploymentObjects(ctx context.Context, schema string, stackID uuid.UUID) ([]DeploymentObject, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return nil, err
	}
	defer conn.Release()
	return s.store.ListDeploymentObjects(ctx, conn, stackID)
}

// TargetStateForAgent returns the ordered deployment objects an agent
// should reconcile toward, per spec §4.2.
func (s *Service) TargetStateForAgent(ctx context.Context, schema string, agentID uuid.UUID) ([]DeploymentObject, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return nil, err
	}
	defer conn.Release()
	return s.store.TargetStateForAgent(ctx, conn, agentID)
}

// AddDirectTarget targets a stack at a specific agent.
func (s *Service) AddDirectTarget(ctx context.Context, schema string, agentID, stackID uuid.UUID) error {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return err
	}
	defer conn.Release()
	return s.store.AddDirectTarget(ctx, conn, agentID, stackID)
}

// AddLabel attaches a validated label to a stack for label-based targeting.
func (s *Service) AddLabel(ctx context.Context, schema string, stackID uuid.UUID, label string) error {
	if err := labelmatch.ValidateLabel(label); err != nil {
		return dalerr.Wrap(dalerr.InvalidInput, "%v", err)
	}

	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return err
	}
	defer conn.Release()
	return s.store.AddLabel(ctx, conn, stackID, label)
}

// AddAnnotation attaches a key/value annotation to a stack for
// annotation-based targeting.
func (s *Service) AddAnnotation(ctx context.Context, schema string, stackID uuid.UUID, key, value string) error {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return err
	}
	defer conn.Release()
	return s.store.AddAnnotation(ctx, conn, stackID, key, value)
}

// Labels returns a stack's labels.
func (s *Service) Labels(ctx context.Context, schema string, stackID uuid.UUID) ([]string, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return nil, err
	}
	defer conn.Release()
	return s.store.Labels(ctx, conn, stackID)
}

// Annotations returns a stack's annotations.
func (s *Service) Annotations(ctx context.Context, schema string, stackID uuid.UUID) ([]Annotation, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return nil, err
	}
	defer conn.Release()
	return s.store.Annotations(ctx, conn, stackID)
}
