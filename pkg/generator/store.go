package generator

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brokkr-io/brokkr/internal/dalerr"
	"github.com/brokkr-io/brokkr/pkg/stack"
)

const generatorColumns = `id, name, description, is_active, last_active_at, created_at, updated_at`

// Store is the raw-pgx DAL for generators, grounded on pkg/apikey/store.go.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore builds a Store bound to the tenant-scoped connection pool.
func NewStore(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

func scanGenerator(row pgx.Row) (Generator, error) {
	var g Generator
	err := row.Scan(&g.ID, &g.Name, &g.Description, &g.IsActive, &g.LastActiveAt, &g.CreatedAt, &g.UpdatedAt)
	return g, err
}

// Create inserts a new generator in the active state with the given pak hash.
func (s *Store) Create(ctx context.Context, conn *pgxpool.Conn, name, description, pakHash string) (Generator, error) {
	row := conn.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO generators (name, description, is_active, pak_hash)
		VALUES ($1, $2, true, $3)
		RETURNING %s`, generatorColumns),
		name, description, pakHash,
	)
	g, err := scanGenerator(row)
	if err != nil {
		if dalerr.PgCode(err) == dalerr.UniqueViolation {
			return Generator{}, dalerr.Wrap(dalerr.Conflict, "generator %q already exists", name)
		}
		return Generator{}, fmt.Errorf("creating generator: %w", err)
	}
	return g, nil
}

// Get returns a non-deleted generator by id.
func (s *Store) Get(ctx context.Context, conn *pgxpool.Conn, id uuid.UUID) (Generator, error) {
	row := conn.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM generators WHERE id = $1 AND deleted_at IS NULL`, generatorColumns), id)
	g, err := scanGenerator(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Generator{}, dalerr.Wrap(dalerr.NotFound, "generator %s", id)
		}
		return Generator{}, fmt.Errorf("getting generator: %w", err)
	}
	return g, nil
}

// List returns all non-deleted generators.
func (s *Store) List(ctx context.Context, conn *pgxpool.Conn) ([]Generator, error) {
	rows, err := conn.Query(ctx, fmt.Sprintf(`SELECT %s FROM generators WHERE deleted_at IS NULL ORDER BY created_at`, generatorColumns))
	if err != nil {
		return nil, fmt.Errorf("listing generators: %w", err)
	}
	defer rows.Close()

	var out []Generator
	for rows.Next() {
		g, err := scanGenerator(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// Touch updates last_active_at, called whenever a generator submits a
// deployment object or stack template.
func (s *Store) Touch(ctx context.Context, conn *pgxpool.Conn, id uuid.UUID) error {
	_, err := conn.Exec(ctx, `UPDATE generators SET last_active_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("touching generator: %w", err)
	}
	return nil
}

// SoftDelete tombstones a generator and cascades soft-delete to every
// stack it owns and, through stack.SoftDelete's own cascade, to their
// deployment objects (spec §3: "deleting a generator cascades soft-delete
// to its stacks and their deployment objects").
func (s *Store) SoftDelete(ctx context.Context, conn *pgxpool.Conn, id uuid.UUID) error {
	tag, err := conn.Exec(ctx, `UPDATE generators SET deleted_at = now(), is_active = false WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("soft-deleting generator: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dalerr.Wrap(dalerr.NotFound, "generator %s", id)
	}

	rows, err := conn.Query(ctx, `SELECT id FROM stacks WHERE generator_id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("listing generator's stacks: %w", err)
	}
	var stackIDs []uuid.UUID
	for rows.Next() {
		var sid uuid.UUID
		if err := rows.Scan(&sid); err != nil {
			rows.Close()
			return err
		}
		stackIDs = append(stackIDs, sid)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	stackStore := stack.NewStore(s.pool)
	for _, sid := range stackIDs {
		if err := stackStore.SoftDelete(ctx, conn, sid); err != nil {
			return fmt.Errorf("cascading delete to stack %s: %w", sid, err)
		}
	}
	return nil
}
