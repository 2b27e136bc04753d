package health

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const healthColumns = `agent_id, deployment_object_id, status, summary, created_at, updated_at`

// Store is the raw-pgx DAL for deployment health reports.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore builds a Store bound to the tenant-scoped connection pool.
func NewStore(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

func scanHealth(row pgx.Row) (DeploymentHealth, error) {
	var h DeploymentHealth
	err := row.Scan(&h.AgentID, &h.DeploymentObjectID, &h.Status, &h.Summary, &h.CreatedAt, &h.UpdatedAt)
	return h, err
}

// Upsert records the latest health classification an agent observed for
// one deployment object, per spec §3's "(agent_id, deployment_object_id)
// unique ... upserted per agent check".
func (s *Store) Upsert(ctx context.Context, conn *pgxpool.Conn, agentID, deploymentObjectID uuid.UUID, status Status, summary []byte) (DeploymentHealth, error) {
	row := conn.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO deployment_health (agent_id, deployment_object_id, status, summary)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (agent_id, deployment_object_id)
		DO UPDATE SET status = EXCLUDED.status, summary = EXCLUDED.summary, updated_at = now()
		RETURNING %s`, healthColumns),
		agentID, deploymentObjectID, status, summary,
	)
	h, err := scanHealth(row)
	if err != nil {
		return DeploymentHealth{}, fmt.Errorf("upserting deployment health: %w", err)
	}
	return h, nil
}

// ByDeploymentObject returns every agent's health report for one
// deployment object.
func (s *Store) ByDeploymentObject(ctx context.Context, conn *pgxpool.Conn, deploymentObjectID uuid.UUID) ([]DeploymentHealth, error) {
	rows, err := conn.Query(ctx, fmt.Sprintf(`SELECT %s FROM deployment_health WHERE deployment_object_id = $1 ORDER BY agent_id`, healthColumns), deploymentObjectID)
	if err != nil {
		return nil, fmt.Errorf("listing deployment health: %w", err)
	}
	defer rows.Close()
	return collectHealth(rows)
}

// ByStack returns every health report for every deployment object of a
// stack, per spec §6's "admins query by deployment_object or by stack".
func (s *Store) ByStack(ctx context.Context, conn *pgxpool.Conn, stackID uuid.UUID) ([]DeploymentHealth, error) {
	rows, err := conn.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM deployment_health dh
		JOIN deployment_objects do ON do.id = dh.deployment_object_id
		WHERE do.stack_id = $1
		ORDER BY dh.deployment_object_id, dh.agent_id`, prefixedHealthColumns("dh")), stackID)
	if err != nil {
		return nil, fmt.Errorf("listing deployment health by stack: %w", err)
	}
	defer rows.Close()
	return collectHealth(rows)
}

// ByAgent returns every health report an agent has filed.
func (s *Store) ByAgent(ctx context.Context, conn *pgxpool.Conn, agentID uuid.UUID) ([]DeploymentHealth, error) {
	rows, err := conn.Query(ctx, fmt.Sprintf(`SELECT %s FROM deployment_health WHERE agent_id = $1 ORDER BY deployment_object_id`, healthColumns), agentID)
	if err != nil {
		return nil, fmt.Errorf("listing deployment health by agent: %w", err)
	}
	defer rows.Close()
	return collectHealth(rows)
}

func collectHealth(rows pgx.Rows) ([]DeploymentHealth, error) {
	var out []DeploymentHealth
	for rows.Next() {
		h, err := scanHealth(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func prefixedHealthColumns(alias string) string {
	return fmt.Sprintf("%s.agent_id, %s.deployment_object_id, %s.status, %s.summary, %s.created_at, %s.updated_at",
		alias, alias, alias, alias, alias, alias)
}
