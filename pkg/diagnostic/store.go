package diagnostic

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brokkr-io/brokkr/internal/dalerr"
)

const requestColumns = `id, agent_id, deployment_object_id, kind, params, status, claimed_at, expires_at, created_at, updated_at`
const resultColumns = `id, request_id, success, output, error_message, created_at`

// defaultTTL is used when a CreateRequest doesn't specify one.
const defaultTTL = 15 * time.Minute

// Store is the raw-pgx DAL for diagnostic requests and their results.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore builds a Store bound to the tenant-scoped connection pool.
func NewStore(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

func scanRequest(row pgx.Row) (Request, error) {
	var req Request
	err := row.Scan(&req.ID, &req.AgentID, &req.DeploymentObjectID, &req.Kind, &req.Params, &req.Status, &req.ClaimedAt, &req.ExpiresAt, &req.CreatedAt, &req.UpdatedAt)
	return req, err
}

func scanResult(row pgx.Row) (Result, error) {
	var res Result
	err := row.Scan(&res.ID, &res.RequestID, &res.Success, &res.Output, &res.ErrorMessage, &res.CreatedAt)
	return res, err
}

// Create opens a new pending diagnostic request.
func (s *Store) Create(ctx context.Context, conn *pgxpool.Conn, agentID uuid.UUID, deploymentObjectID *uuid.UUID, kind string, params []byte, ttl time.Duration) (Request, error) {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	row := conn.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO diagnostic_requests (agent_id, deployment_object_id, kind, params, status, expires_at)
		VALUES ($1, $2, $3, $4, 'pending', now() + $5::interval)
		RETURNING %s`, requestColumns),
		agentID, deploymentObjectID, kind, params, ttl.String(),
	)
	req, err := scanRequest(row)
	if err != nil {
		return Request{}, fmt.Errorf("creating diagnostic request: %w", err)
	}
	return req, nil
}

// Get returns a diagnostic request by id.
func (s *Store) Get(ctx context.Context, conn *pgxpool.Conn, id uuid.UUID) (Request, error) {
	row := conn.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM diagnostic_requests WHERE id = $1`, requestColumns), id)
	req, err := scanRequest(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Request{}, dalerr.Wrap(dalerr.NotFound, "diagnostic request %s", id)
		}
		return Request{}, fmt.Errorf("getting diagnostic request: %w", err)
	}
	return req, nil
}

// ListPendingForAgent lists an agent's unexpired pending requests, used
// by the agent's poll loop.
func (s *Store) ListPendingForAgent(ctx context.Context, conn *pgxpool.Conn, agentID uuid.UUID) ([]Request, error) {
	rows, err := conn.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM diagnostic_requests
		WHERE agent_id = $1 AND status = 'pending' AND expires_at > now()
		ORDER BY created_at`, requestColumns), agentID)
	if err != nil {
		return nil, fmt.Errorf("listing pending diagnostic requests: %w", err)
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// Claim atomically transitions one unexpired pending request belonging to
// agentID into claimed, mirroring the work-order and webhook claim
// pattern: a single UPDATE ... WHERE id = (SELECT ... FOR UPDATE SKIP
// LOCKED) so two concurrent polls never claim the same request.
func (s *Store) Claim(ctx context.Context, conn *pgxpool.Conn, agentID, requestID uuid.UUID) (Request, error) {
	row := conn.QueryRow(ctx, fmt.Sprintf(`
		UPDATE diagnostic_requests
		SET status = 'claimed', claimed_at = now(), updated_at = now()
		WHERE id = (
			SELECT id FROM diagnostic_requests
			WHERE id = $2 AND agent_id = $1 AND status = 'pending' AND expires_at > now()
			FOR UPDATE SKIP LOCKED
		)
		RETURNING %s`, requestColumns), agentID, requestID)
	req, err := scanRequest(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Request{}, dalerr.Wrap(dalerr.NotFound, "diagnostic request %s not claimable", requestID)
		}
		return Request{}, fmt.Errorf("claiming diagnostic request: %w", err)
	}
	return req, nil
}

// Complete records the agent's result and marks the request completed.
// It is transactional: the request row is locked, asserted claimed, and
// finalized together with its result row in one statement group.
func (s *Store) Complete(ctx context.Context, conn *pgxpool.Conn, requestID, agentID uuid.UUID, success bool, output []byte, errorMessage string) (Result, error) {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("beginning diagnostic completion: %w", err)
	}
	defer tx.Rollback(ctx)

	var currentStatus Status
	var currentAgentID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT status, agent_id FROM diagnostic_requests WHERE id = $1 FOR UPDATE`, requestID).Scan(&currentStatus, &currentAgentID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Result{}, dalerr.Wrap(dalerr.NotFound, "diagnostic request %s", requestID)
		}
		return Result{}, fmt.Errorf("locking diagnostic request: %w", err)
	}
	if currentAgentID != agentID {
		return Result{}, dalerr.Wrap(dalerr.Forbidden, "diagnostic request %s not claimed by this agent", requestID)
	}
	if currentStatus != StatusClaimed {
		return Result{}, dalerr.Wrap(dalerr.Conflict, "diagnostic request %s is not claimed", requestID)
	}

	row := tx.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO diagnostic_results (request_id, success, output, error_message)
		VALUES ($1, $2, $3, $4)
		RETURNING %s`, resultColumns), requestID, success, output, errorMessage)
	res, err := scanResult(row)
	if err != nil {
		return Result{}, fmt.Errorf("recording diagnostic result: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE diagnostic_requests SET status = 'completed', updated_at = now() WHERE id = $1`, requestID); err != nil {
		return Result{}, fmt.Errorf("completing diagnostic request: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("committing diagnostic completion: %w", err)
	}
	return res, nil
}

// ResultFor returns the result recorded for a completed request, if any.
func (s *Store) ResultFor(ctx context.Context, conn *pgxpool.Conn, requestID uuid.UUID) (Result, error) {
	row := conn.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM diagnostic_results WHERE request_id = $1`, resultColumns), requestID)
	res, err := scanResult(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Result{}, dalerr.Wrap(dalerr.NotFound, "diagnostic result for request %s", requestID)
		}
		return Result{}, fmt.Errorf("getting diagnostic result: %w", err)
	}
	return res, nil
}

// PurgeExpired deletes diagnostic requests (and their results, via the
// schema's ON DELETE CASCADE) whose expires_at passed more than retention
// ago, per spec §4.9's "diagnostic_requests and diagnostic_results
// (default 60 minutes after expires_at)".
func (s *Store) PurgeExpired(ctx context.Context, conn *pgxpool.Conn, retention time.Duration) (int64, error) {
	tag, err := conn.Exec(ctx, `DELETE FROM diagnostic_requests WHERE expires_at < now() - $1::interval`, retention.String())
	if err != nil {
		return 0, fmt.Errorf("purging expired diagnostic requests: %w", err)
	}
	return tag.RowsAffected(), nil
}
