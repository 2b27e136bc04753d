package generator

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brokkr-io/brokkr/internal/credential"
	"github.com/brokkr-io/brokkr/internal/tenant"
)

// Service wraps the Store with PAK issuance, mirroring pkg/agent.Service.
type Service struct {
	store *Store
	creds *credential.Store
	pool  *pgxpool.Pool
}

// NewService builds a Service bound to a tenant-scoped pool.
func NewService(pool *pgxpool.Pool, creds *credential.Store) *Service {
	return &Service{store: NewStore(pool), creds: creds, pool: pool}
}

// Register creates a new generator and issues its first PAK.
func (s *Service) Register(ctx context.Context, schema, name, description string) (CreateResponse, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return CreateResponse{}, err
	}
	defer conn.Release()

	g, err := s.store.Create(ctx, conn, name, description, "")
	if err != nil {
		return CreateResponse{}, err
	}

	plaintext, err := s.creds.Issue(ctx, credential.TableGenerators, g.ID)
	if err != nil {
		return CreateResponse{}, err
	}

	return CreateResponse{Generator: g, PAK: plaintext}, nil
}

// RotatePAK issues a fresh PAK for an existing generator.
func (s *Service) RotatePAK(ctx context.Context, generatorID uuid.UUID) (string, error) {
	return s.creds.Rotate(ctx, credential.TableGenerators, generatorID)
}

// Get returns a generator by id.
func (s *Service) Get(ctx context.Context, schema string, id uuid.UUID) (Generator, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return Generator{}, err
	}
	defer conn.Release()
	return s.store.Get(ctx, conn, id)
}

// List returns every non-deleted generator.
func (s *Service) List(ctx context.Context, schema string) ([]Generator, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return nil, err
	}
	defer conn.Release()
	return s.store.List(ctx, conn)
}

// Touch records generator activity.
func (s *Service) Touch(ctx context.Context, schema string, id uuid.UUID) error {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return err
	}
	defer conn.Release()
	return s.store.Touch(ctx, conn, id)
}

// Delete soft-deletes a generator and cascades to its stacks.
func (s *Service) Delete(ctx context.Context, schema string, id uuid.UUID) error {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return err
	}
	defer conn.Release()
	return s.store.SoftDelete(ctx, conn, id)
}
