package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brokkr-io/brokkr/internal/dalerr"
)

const agentColumns = `id, name, cluster_name, status, last_heartbeat, created_at, updated_at`

// Store is the raw-pgx DAL for agents, grounded on pkg/apikey/store.go's
// column-const + scan-helper shape.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore builds a Store over pool. Store methods do not acquire
// connections themselves: each runs on the *pgxpool.Conn passed to it,
// which the Service acquires through internal/tenant, matching
// incident/store.go's Service-wraps-a-connection convention.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanAgent(row pgx.Row) (Agent, error) {
	var a Agent
	err := row.Scan(&a.ID, &a.Name, &a.ClusterName, &a.Status, &a.LastHeartbeat, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// Create inserts a new agent row in INACTIVE status with the given pak hash.
func (s *Store) Create(ctx context.Context, conn *pgxpool.Conn, name, clusterName, pakHash string) (Agent, error) {
	row := conn.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO agents (name, cluster_name, status, pak_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING %s`, agentColumns),
		name, clusterName, StatusInactive, pakHash,
	)
	a, err := scanAgent(row)
	if err != nil {
		if dalerr.PgCode(err) == dalerr.UniqueViolation {
			return Agent{}, dalerr.Wrap(dalerr.Conflict, "agent %s/%s already exists", name, clusterName)
		}
		return Agent{}, fmt.Errorf("creating agent: %w", err)
	}
	return a, nil
}

// Get returns a non-deleted agent by id.
func (s *Store) Get(ctx context.Context, conn *pgxpool.Conn, id uuid.UUID) (Agent, error) {
	row := conn.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM agents WHERE id = $1 AND deleted_at IS NULL`, agentColumns), id)
	a, err := scanAgent(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Agent{}, dalerr.Wrap(dalerr.NotFound, "agent %s", id)
		}
		return Agent{}, fmt.Errorf("getting agent: %w", err)
	}
	return a, nil
}

// List returns all non-deleted agents.
func (s *Store) List(ctx context.Context, conn *pgxpool.Conn) ([]Agent, error) {
	rows, err := conn.Query(ctx, fmt.Sprintf(`SELECT %s FROM agents WHERE deleted_at IS NULL ORDER BY created_at`, agentColumns))
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	defer rows.Close()

	var out []Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning agent: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Heartbeat refreshes last_heartbeat and, if the agent is INACTIVE,
// promotes it to ACTIVE (spec §4.3: "register/first heartbeat").
func (s *Store) Heartbeat(ctx context.Context, conn *pgxpool.Conn, id uuid.UUID) error {
	tag, err := conn.Exec(ctx, `
		UPDATE agents
		SET last_heartbeat = now(),
		    status = CASE WHEN status = $2 THEN $3 ELSE status END,
		    updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`,
		id, StatusInactive, StatusActive,
	)
	if err != nil {
		return fmt.Errorf("recording heartbeat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dalerr.Wrap(dalerr.NotFound, "agent %s", id)
	}
	return nil
}

// MarkDegraded demotes any ACTIVE agent whose last_heartbeat is older than
// threshold, realizing the "missed-heartbeat threshold" transition. The
// exact threshold is left to deployment configuration per spec §9's open
// question. It returns the ids of every agent demoted, so the caller can
// emit one agent.degraded event per transition.
func (s *Store) MarkDegraded(ctx context.Context, conn *pgxpool.Conn, threshold time.Duration) ([]uuid.UUID, error) {
	rows, err := conn.Query(ctx, `
		UPDATE agents
		SET status = $1, updated_at = now()
		WHERE status = $2 AND deleted_at IS NULL
		  AND (last_heartbeat IS NULL OR last_heartbeat < now() - $3::interval)
		RETURNING id`,
		StatusDegraded, StatusActive, fmt.Sprintf("%d seconds", int(threshold.Seconds())),
	)
	if err != nil {
		return nil, fmt.Errorf("marking agents degraded: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SoftDelete tombstones an agent.
func (s *Store) SoftDelete(ctx context.Context, conn *pgxpool.Conn, id uuid.UUID) error {
	tag, err := conn.Exec(ctx, `UPDATE agents SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("soft-deleting agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dalerr.Wrap(dalerr.NotFound, "agent %s", id)
	}
	return nil
}

// Labels returns the agent's labels.
func (s *Store) Labels(ctx context.Context, conn *pgxpool.Conn, agentID uuid.UUID) ([]string, error) {
	rows, err := conn.Query(ctx, `SELECT label FROM agent_labels WHERE agent_id = $1`, agentID)
	if err != nil {
		return nil, fmt.Errorf("listing agent labels: %w", err)
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

// Annotations returns the agent's annotations as key/value pairs.
func (s *Store) Annotations(ctx context.Context, conn *pgxpool.Conn, agentID uuid.UUID) (map[string]string, error) {
	rows, err := conn.Query(ctx, `SELECT key, value FROM agent_annotations WHERE agent_id = $1`, agentID)
	if err != nil {
		return nil, fmt.Errorf("listing agent annotations: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// AddLabel attaches label to agentID, ignoring duplicates.
func (s *Store) AddLabel(ctx context.Context, conn *pgxpool.Conn, agentID uuid.UUID, label string) error {
	_, err := conn.Exec(ctx, `
		INSERT INTO agent_labels (agent_id, label) VALUES ($1, $2)
		ON CONFLICT (agent_id, label) DO NOTHING`, agentID, label)
	if err != nil {
		return fmt.Errorf("adding agent label: %w", err)
	}
	return nil
}

// RemoveLabel detaches label from agentID.
func (s *Store) RemoveLabel(ctx context.Context, conn *pgxpool.Conn, agentID uuid.UUID, label string) error {
	_, err := conn.Exec(ctx, `DELETE FROM agent_labels WHERE agent_id = $1 AND label = $2`, agentID, label)
	if err != nil {
		return fmt.Errorf("removing agent label: %w", err)
	}
	return nil
}
