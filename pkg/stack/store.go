package stack

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brokkr-io/brokkr/internal/dalerr"
)

const stackColumns = `id, name, description, generator_id, created_at, updated_at`
const doColumns = `id, sequence_id, stack_id, yaml_content, yaml_checksum, submitted_at, is_deletion_marker, generator_id`

// Store is the raw-pgx DAL for stacks and their deployment objects,
// grounded on pkg/apikey/store.go's shape and pkg/incident/store.go's
// dynamic-filter listing pattern.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore builds a Store bound to the tenant-scoped connection pool.
func NewStore(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

func scanStack(row pgx.Row) (Stack, error) {
	var s Stack
	err := row.Scan(&s.ID, &s.Name, &s.Description, &s.GeneratorID, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func scanDeploymentObject(row pgx.Row) (DeploymentObject, error) {
	var d DeploymentObject
	err := row.Scan(&d.ID, &d.SequenceID, &d.StackID, &d.YAMLContent, &d.YAMLChecksum, &d.SubmittedAt, &d.IsDeletionMarker, &d.GeneratorID)
	return d, err
}

// Checksum computes the content hash used as yaml_checksum.
func Checksum(yamlContent string) string {
	sum := sha256.Sum256([]byte(yamlContent))
	return hex.EncodeToString(sum[:])
}

// Create inserts a new stack, optionally owned by a generator.
func (s *Store) Create(ctx context.Context, conn *pgxpool.Conn, name, description string, generatorID *uuid.UUID) (Stack, error) {
	row := conn.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO stacks (name, description, generator_id)
		VALUES ($1, $2, $3)
		RETURNING %s`, stackColumns),
		name, description, generatorID,
	)
	st, err := scanStack(row)
	if err != nil {
		if dalerr.PgCode(err) == dalerr.UniqueViolation {
			return Stack{}, dalerr.Wrap(dalerr.Conflict, "stack %q already exists", name)
		}
		return Stack{}, fmt.Errorf("creating stack: %w", err)
	}
	return st, nil
}

// Get returns a non-deleted stack by id.
func (s *Store) Get(ctx context.Context, conn *pgxpool.Conn, id uuid.UUID) (Stack, error) {
	row := conn.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM stacks WHERE id = $1 AND deleted_at IS NULL`, stackColumns), id)
	st, err := scanStack(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Stack{}, dalerr.Wrap(dalerr.NotFound, "stack %s", id)
		}
		return Stack{}, fmt.Errorf("getting stack: %w", err)
	}
	return st, nil
}

// List returns all non-deleted stacks.
func (s *Store) List(ctx context.Context, conn *pgxpool.Conn, limit, offset int) ([]Stack, int, error) {
	var total int
	if err := conn.QueryRow(ctx, `SELECT count(*) FROM stacks WHERE deleted_at IS NULL`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting stacks: %w", err)
	}

	rows, err := conn.Query(ctx, fmt.Sprintf(`SELECT %s FROM stacks WHERE deleted_at IS NULL ORDER BY created_at LIMIT $1 OFFSET $2`, stackColumns), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing stacks: %w", err)
	}
	defer rows.Close()

	var out []Stack
	for rows.Next() {
		st, err := scanStack(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, st)
	}
	return out, total, rows.Err()
}

// SoftDelete tombstones a stack, all of its non-deleted deployment
// objects, and inserts a new deletion-marker deployment object, all in one
// transaction. This is the DAL-level transactional helper spec §9 calls
// for in place of a database trigger.
func (s *Store) SoftDelete(ctx context.Context, conn *pgxpool.Conn, stackID uuid.UUID) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE stacks SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, stackID)
	if err != nil {
		return fmt.Errorf("soft-deleting stack: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dalerr.Wrap(dalerr.NotFound, "stack %s", stackID)
	}

	if _, err := tx.Exec(ctx, `UPDATE deployment_objects SET deleted_at = now() WHERE stack_id = $1 AND deleted_at IS NULL`, stackID); err != nil {
		return fmt.Errorf("soft-deleting deployment objects: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO deployment_objects (stack_id, yaml_content, yaml_checksum, is_deletion_marker)
		VALUES ($1, '', $2, true)`,
		stackID, Checksum(""),
	); err != nil {
		return fmt.Errorf("inserting deletion marker: %w", err)
	}

	return tx.Commit(ctx)
}

// CreateDeploymentObject inserts a new immutable deployment object under a
// stack. Only SoftDelete ever writes deleted_at afterward — no Update
// method exists for DeploymentObject by design, enforcing spec §3's
// "immutable after creation" invariant at the API surface, not just by
// convention.
func (s *Store) CreateDeploymentObject(ctx context.Context, conn *pgxpool.Conn, stackID uuid.UUID, yamlContent string, generatorID *uuid.UUID) (DeploymentObject, error) {
	row := conn.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO deployment_objects (stack_id, yaml_content, yaml_checksum, generator_id)
		VALUES ($1, $2, $3, $4)
		RETURNING %s`, doColumns),
		stackID, yamlContent, Checksum(yamlContent), generatorID,
	)
	do, err := scanDeploymentObject(row)
	if err != nil {
		return DeploymentObject{}, fmt.Errorf("creating deployment object: %w", err)
	}
	return do, nil
}

// ListDeploymentObjects returns a stack's non-deleted deployment objects
// ascending by sequence_id.
func (s *Store) ListDeploymentObjects(ctx context.Context, conn *pgxpool.Conn, stackID uuid.UUID) ([]DeploymentObject, error) {
	rows, err := conn.Query(ctx, fmt.Sprintf(`SELECT %s FROM deployment_objects WHERE stack_id = $1 AND deleted_at IS NULL ORDER BY sequence_id`, doColumns), stackID)
	if err != nil {
		return nil, fmt.Errorf("listing deployment objects: %w", err)
	}
	defer rows.Close()

	var out []DeploymentObject
	for rows.Next() {
		do, err := scanDeploymentObject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, do)
	}
	return out, rows.Err()
}

// TargetStateForAgent returns the ordered set of deployment objects the
// given agent should consider: the union of direct targets, label-matched
// stacks, and annotation-matched stacks, per spec §4.2/§4.3. Selection is
// by current targeting state (this query re-evaluates the join on every
// call), not by when the target relationship or the deployment object was
// created — satisfying spec §4.3's "re-targeting is order-independent".
func (s *Store) TargetStateForAgent(ctx context.Context, conn *pgxpool.Conn, agentID uuid.UUID) ([]DeploymentObject, error) {
	rows, err := conn.Query(ctx, `
		SELECT DISTINCT do.id, do.sequence_id, do.stack_id, do.yaml_content, do.yaml_checksum, do.submitted_at, do.is_deletion_marker, do.generator_id
		FROM deployment_objects do
		JOIN stacks s ON s.id = do.stack_id AND s.deleted_at IS NULL
		WHERE do.deleted_at IS NULL
		AND (
			EXISTS (SELECT 1 FROM agent_targets tgt WHERE tgt.agent_id = $1 AND tgt.stack_id = s.id)
			OR EXISTS (
				SELECT 1 FROM agent_labels al
				JOIN stack_labels sl ON sl.label = al.label
				WHERE al.agent_id = $1 AND sl.stack_id = s.id
			)
			OR EXISTS (
				SELECT 1 FROM agent_annotations aa
				JOIN stack_annotations sa ON sa.key = aa.key AND sa.value = aa.value
				WHERE aa.agent_id = $1 AND sa.stack_id = s.id
			)
		)
		ORDER BY do.sequence_id`,
		agentID,
	)
	if err != nil {
		return nil, fmt.Errorf("fetching target state: %w", err)
	}
	defer rows.Close()

	var out []DeploymentObject
	for rows.Next() {
		do, err := scanDeploymentObject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, do)
	}
	return out, rows.Err()
}

// AddDirectTarget creates an (agent_id, stack_id) direct targeting row.
func (s *Store) AddDirectTarget(ctx context.Context, conn *pgxpool.Conn, agentID, stackID uuid.UUID) error {
	_, err := conn.Exec(ctx, `
		INSERT INTO agent_targets (agent_id, stack_id) VALUES ($1, $2)
		ON CONFLICT (agent_id, stack_id) DO NOTHING`, agentID, stackID)
	if err != nil {
		return fmt.Errorf("adding direct target: %w", err)
	}
	return nil
}

// AddLabel attaches a label to a stack.
func (s *Store) AddLabel(ctx context.Context, conn *pgxpool.Conn, stackID uuid.UUID, label string) error {
	_, err := conn.Exec(ctx, `
		INSERT INTO stack_labels (stack_id, label) VALUES ($1, $2)
		ON CONFLICT (stack_id, label) DO NOTHING`, stackID, label)
	if err != nil {
		return fmt.Errorf("adding stack label: %w", err)
	}
	return nil
}

// AddAnnotation attaches a key/value annotation to a stack.
func (s *Store) AddAnnotation(ctx context.Context, conn *pgxpool.Conn, stackID uuid.UUID, key, value string) error {
	_, err := conn.Exec(ctx, `
		INSERT INTO stack_annotations (stack_id, key, value) VALUES ($1, $2, $3)
		ON CONFLICT (stack_id, key, value) DO NOTHING`, stackID, key, value)
	if err != nil {
		return fmt.Errorf("adding stack annotation: %w", err)
	}
	return nil
}

// Labels returns the stack's labels.
func (s *Store) Labels(ctx context.Context, conn *pgxpool.Conn, stackID uuid.UUID) ([]string, error) {
	rows, err := conn.Query(ctx, `SELECT label FROM stack_labels WHERE stack_id = $1`, stackID)
	if err != nil {
		return nil, fmt.Errorf("listing stack labels: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Annotations returns the stack's annotations as key/value pairs.
func (s *Store) Annotations(ctx context.Context, conn *pgxpool.Conn, stackID uuid.UUID) ([]Annotation, error) {
	rows, err := conn.Query(ctx, `SELECT key, value FROM stack_annotations WHERE stack_id = $1`, stackID)
	if err != nil {
		return nil, fmt.Errorf("listing stack annotations: %w", err)
	}
	defer rows.Close()

	var out []Annotation
	for rows.Next() {
		var a Annotation
		if err := rows.Scan(&a.Key, &a.Value); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
