package agentevent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const eventColumns = `id, agent_id, deployment_object_id, event_type, status, message, detail, created_at`

// Store is the raw-pgx DAL for agent-reported events.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore builds a Store bound to the tenant-scoped connection pool.
func NewStore(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

func scanEvent(row pgx.Row) (Event, error) {
	var e Event
	err := row.Scan(&e.ID, &e.AgentID, &e.DeploymentObjectID, &e.EventType, &e.Status, &e.Message, &e.Detail, &e.CreatedAt)
	return e, err
}

// Report inserts one agent-reported event.
func (s *Store) Report(ctx context.Context, conn *pgxpool.Conn, agentID uuid.UUID, deploymentObjectID *uuid.UUID, eventType string, status Status, message string, detail []byte) (Event, error) {
	row := conn.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO agent_events (agent_id, deployment_object_id, event_type, status, message, detail)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING %s`, eventColumns),
		agentID, deploymentObjectID, eventType, status, message, detail,
	)
	e, err := scanEvent(row)
	if err != nil {
		return Event{}, fmt.Errorf("reporting agent event: %w", err)
	}
	return e, nil
}

// ByDeploymentObject returns every event reported for one deployment
// object, newest first.
func (s *Store) ByDeploymentObject(ctx context.Context, conn *pgxpool.Conn, deploymentObjectID uuid.UUID) ([]Event, error) {
	rows, err := conn.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM agent_events WHERE deployment_object_id = $1 ORDER BY created_at DESC`, eventColumns), deploymentObjectID)
	if err != nil {
		return nil, fmt.Errorf("listing agent events by deployment object: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// ByAgent returns an agent's most recent reported events, bounded by
// limit, used for admin inspection and agent-status debugging.
func (s *Store) ByAgent(ctx context.Context, conn *pgxpool.Conn, agentID uuid.UUID, limit int) ([]Event, error) {
	rows, err := conn.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM agent_events WHERE agent_id = $1 ORDER BY created_at DESC LIMIT $2`, eventColumns), agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing agent events by agent: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// PurgeOlderThan deletes events older than retention, mirroring
// internal/audit.Writer.PurgeOlderThan's retention sweep for the other
// append-only log table.
func (s *Store) PurgeOlderThan(ctx context.Context, conn *pgxpool.Conn, retention time.Duration) (int64, error) {
	tag, err := conn.Exec(ctx, `DELETE FROM agent_events WHERE created_at < now() - $1::interval`, retention.String())
	if err != nil {
		return 0, fmt.Errorf("purging agent events: %w", err)
	}
	return tag.RowsAffected(), nil
}

func collectEvents(rows pgx.Rows) ([]Event, error) {
	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
