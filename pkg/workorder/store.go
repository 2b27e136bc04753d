package workorder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brokkr-io/brokkr/internal/dalerr"
)

const workOrderColumns = `id, work_type, yaml_content, status, claimed_by, claimed_at, claim_timeout_seconds, retry_count, max_retries, backoff_seconds, next_retry_after, last_error, last_error_at, created_at, updated_at`

// Store is the raw-pgx DAL for the work-order queue, grounded on
// pkg/apikey/store.go's shape. The claim protocol's atomicity comes from a
// single UPDATE ... WHERE id = (SELECT ... FOR UPDATE SKIP LOCKED) rather
// than application-level locking, matching spec §5's "no explicit
// application-level locking for queue operations — atomic conditional
// updates against the relational store serve as the only mutex".
type Store struct {
	pool *pgxpool.Pool
}

// NewStore builds a Store bound to the tenant-scoped connection pool.
func NewStore(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

func scanWorkOrder(row pgx.Row) (WorkOrder, error) {
	var w WorkOrder
	err := row.Scan(&w.ID, &w.WorkType, &w.YAMLContent, &w.Status, &w.ClaimedBy, &w.ClaimedAt, &w.ClaimTimeoutSeconds, &w.RetryCount, &w.MaxRetries, &w.BackoffSeconds, &w.NextRetryAfter, &w.LastError, &w.LastErrorAt, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

// Create enqueues a new PENDING work order.
func (s *Store) Create(ctx context.Context, conn *pgxpool.Conn, workType, yamlContent string, claimTimeoutSeconds, maxRetries, backoffSeconds int) (WorkOrder, error) {
	row := conn.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO work_orders (work_type, yaml_content, status, claim_timeout_seconds, max_retries, backoff_seconds)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING %s`, workOrderColumns),
		workType, yamlContent, StatusPending, claimTimeoutSeconds, maxRetries, backoffSeconds,
	)
	w, err := scanWorkOrder(row)
	if err != nil {
		return WorkOrder{}, fmt.Errorf("creating work order: %w", err)
	}
	return w, nil
}

// AddLabel attaches an OR-match targeting label to a work order.
func (s *Store) AddLabel(ctx context.Context, conn *pgxpool.Conn, workOrderID uuid.UUID, label string) error {
	_, err := conn.Exec(ctx, `
		INSERT INTO work_order_labels (work_order_id, label) VALUES ($1, $2)
		ON CONFLICT (work_order_id, label) DO NOTHING`, workOrderID, label)
	if err != nil {
		return fmt.Errorf("adding work order label: %w", err)
	}
	return nil
}

// Get returns a work order by id.
func (s *Store) Get(ctx context.Context, conn *pgxpool.Conn, id uuid.UUID) (WorkOrder, error) {
	row := conn.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM work_orders WHERE id = $1`, workOrderColumns), id)
	w, err := scanWorkOrder(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return WorkOrder{}, dalerr.Wrap(dalerr.NotFound, "work order %s", id)
		}
		return WorkOrder{}, fmt.Errorf("getting work order: %w", err)
	}
	return w, nil
}

// List returns all live work orders.
func (s *Store) List(ctx context.Context, conn *pgxpool.Conn) ([]WorkOrder, error) {
	rows, err := conn.Query(ctx, fmt.Sprintf(`SELECT %s FROM work_orders ORDER BY created_at`, workOrderColumns))
	if err != nil {
		return nil, fmt.Errorf("listing work orders: %w", err)
	}
	defer rows.Close()

	var out []WorkOrder
	for rows.Next() {
		w, err := scanWorkOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// Claim atomically assigns the oldest eligible PENDING or due RETRY_PENDING
// work order to agentID, per spec §4.6's claim protocol. Eligibility
// follows the same OR-across-labels/annotations semantics as stack
// targeting; a work order carrying no targeting metadata is eligible for
// any agent. Returns dalerr.NotFound if nothing is currently claimable —
// callers treat that as "no work available", not an error condition.
func (s *Store) Claim(ctx context.Context, conn *pgxpool.Conn, agentID uuid.UUID) (WorkOrder, error) {
	row := conn.QueryRow(ctx, fmt.Sprintf(`
		UPDATE work_orders
		SET status = $2, claimed_by = $1, claimed_at = now(), updated_at = now()
		WHERE id = (
			SELECT wo.id FROM work_orders wo
			WHERE wo.status IN ($3, $4)
			  AND (wo.next_retry_after IS NULL OR wo.next_retry_after <= now())
			  AND (
			  	(
			  		NOT EXISTS (SELECT 1 FROM work_order_labels l WHERE l.work_order_id = wo.id)
			  		AND NOT EXISTS (SELECT 1 FROM work_order_annotations a WHERE a.work_order_id = wo.id)
			  	)
			  	OR EXISTS (
			  		SELECT 1 FROM work_order_labels l
			  		JOIN agent_labels al ON al.label = l.label
			  		WHERE l.work_order_id = wo.id AND al.agent_id = $1
			  	)
			  	OR EXISTS (
			  		SELECT 1 FROM work_order_annotations a
			  		JOIN agent_annotations aa ON aa.key = a.key AND aa.value = a.value
			  		WHERE a.work_order_id = wo.id AND aa.agent_id = $1
			  	)
			  )
			ORDER BY wo.created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING %s`, workOrderColumns),
		agentID, StatusClaimed, StatusPending, StatusRetryPending,
	)
	w, err := scanWorkOrder(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return WorkOrder{}, dalerr.Wrap(dalerr.NotFound, "no claimable work order for agent %s", agentID)
		}
		return WorkOrder{}, fmt.Errorf("claiming work order: %w", err)
	}
	return w, nil
}

// Complete resolves a claimed work order per spec §4.6: on success, or
// once retry_count+1 reaches max_retries, it is finalized into
// work_order_log and removed from the live table; otherwise it is
// returned to RETRY_PENDING with an exponential backoff deadline.
func (s *Store) Complete(ctx context.Context, conn *pgxpool.Conn, workOrderID, agentID uuid.UUID, success bool, message string) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM work_orders WHERE id = $1 FOR UPDATE`, workOrderColumns), workOrderID)
	w, err := scanWorkOrder(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return dalerr.Wrap(dalerr.NotFound, "work order %s", workOrderID)
		}
		return fmt.Errorf("locking work order: %w", err)
	}

	if w.ClaimedBy == nil || *w.ClaimedBy != agentID {
		return dalerr.Wrap(dalerr.Forbidden, "agent %s is not the current claimant of work order %s", agentID, workOrderID)
	}

	if success || w.RetryCount+1 >= w.MaxRetries {
		if _, err := tx.Exec(ctx, `
			INSERT INTO work_order_log (work_order_id, work_type, yaml_content, success, retries_attempted, result_message)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			w.ID, w.WorkType, w.YAMLContent, success, w.RetryCount, message,
		); err != nil {
			return fmt.Errorf("writing work order log: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM work_orders WHERE id = $1`, w.ID); err != nil {
			return fmt.Errorf("removing finalized work order: %w", err)
		}
		return tx.Commit(ctx)
	}

	nextRetryAfter := time.Duration(w.BackoffSeconds) * time.Second * time.Duration(pow2(w.RetryCount))
	if _, err := tx.Exec(ctx, `
		UPDATE work_orders
		SET status = $2, retry_count = retry_count + 1,
		    next_retry_after = now() + $3::interval,
		    last_error = $4, last_error_at = now(),
		    claimed_by = NULL, claimed_at = NULL,
		    updated_at = now()
		WHERE id = $1`,
		w.ID, StatusRetryPending, fmt.Sprintf("%d seconds", int(nextRetryAfter.Seconds())), message,
	); err != nil {
		return fmt.Errorf("scheduling retry: %w", err)
	}
	return tx.Commit(ctx)
}

// pow2 returns 2^n for n >= 0.
func pow2(n int) int64 {
	result := int64(1)
	for i := 0; i < n; i++ {
		result *= 2
	}
	return result
}

// RecoverStaleClaims returns any CLAIMED row whose claim has outlived its
// claim_timeout_seconds back to PENDING, per spec §4.6's stale-claim
// recovery sweeper.
func (s *Store) RecoverStaleClaims(ctx context.Context, conn *pgxpool.Conn) (int64, error) {
	tag, err := conn.Exec(ctx, `
		UPDATE work_orders
		SET status = $1, claimed_by = NULL, claimed_at = NULL, updated_at = now()
		WHERE status = $2
		  AND claimed_at + (claim_timeout_seconds * interval '1 second') < now()`,
		StatusPending, StatusClaimed,
	)
	if err != nil {
		return 0, fmt.Errorf("recovering stale claims: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PurgeLog deletes work_order_log rows older than retention. The sweep
// runner calls it only when a positive work-order log retention is
// configured; otherwise the log is kept.
func (s *Store) PurgeLog(ctx context.Context, conn *pgxpool.Conn, retention time.Duration) (int64, error) {
	tag, err := conn.Exec(ctx, `DELETE FROM work_order_log WHERE finalized_at < now() - $1::interval`,
		fmt.Sprintf("%d seconds", int(retention.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("purging work order log: %w", err)
	}
	return tag.RowsAffected(), nil
}
