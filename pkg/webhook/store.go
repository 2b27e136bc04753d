package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brokkr-io/brokkr/internal/dalerr"
)

const subscriptionColumns = `id, name, encrypted_url, encrypted_auth_header, event_types, filters, target_labels, enabled, max_retries, timeout_seconds, created_at, updated_at`
const deliveryColumns = `id, subscription_id, event_type, event_id, payload, status, acquired_by, acquired_until, attempts, next_retry_at, last_error, target_labels, created_at, updated_at`

// claimTTL is how long a claimed delivery is reserved before a sweeper
// reclaims it, per spec §4.7 ("acquired_until = now() + 60s").
const claimTTL = 60 * time.Second

// Store is the raw-pgx DAL for webhook subscriptions and deliveries.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore builds a Store bound to the tenant-scoped connection pool.
func NewStore(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

func scanSubscription(row pgx.Row) (Subscription, error) {
	var s Subscription
	err := row.Scan(&s.ID, &s.Name, &s.EncryptedURL, &s.EncryptedAuthHeader, &s.EventTypes, &s.Filters, &s.TargetLabels, &s.Enabled, &s.MaxRetries, &s.TimeoutSeconds, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func scanDelivery(row pgx.Row) (Delivery, error) {
	var d Delivery
	err := row.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.EventID, &d.Payload, &d.Status, &d.AcquiredBy, &d.AcquiredUntil, &d.Attempts, &d.NextRetryAt, &d.LastError, &d.TargetLabels, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

// CreateSubscription inserts a new webhook subscription with its URL and
// auth header already sealed by the caller.
func (s *Store) CreateSubscription(ctx context.Context, conn *pgxpool.Conn, name string, encryptedURL, encryptedAuthHeader []byte, eventTypes, targetLabels []string, maxRetries, timeoutSeconds int) (Subscription, error) {
	row := conn.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO webhook_subscriptions (name, encrypted_url, encrypted_auth_header, event_types, target_labels, enabled, max_retries, timeout_seconds)
		VALUES ($1, $2, $3, $4, $5, true, $6, $7)
		RETURNING %s`, subscriptionColumns),
		name, encryptedURL, encryptedAuthHeader, eventTypes, targetLabels, maxRetries, timeoutSeconds,
	)
	sub, err := scanSubscription(row)
	if err != nil {
		if dalerr.PgCode(err) == dalerr.UniqueViolation {
			return Subscription{}, dalerr.Wrap(dalerr.Conflict, "webhook subscription %q already exists", name)
		}
		return Subscription{}, fmt.Errorf("creating webhook subscription: %w", err)
	}
	return sub, nil
}

// ListEnabledSubscriptions returns every enabled, non-deleted subscription,
// used by the dispatcher to find matches for a newly published event.
func (s *Store) ListEnabledSubscriptions(ctx context.Context, conn *pgxpool.Conn) ([]Subscription, error) {
	rows, err := conn.Query(ctx, fmt.Sprintf(`SELECT %s FROM webhook_subscriptions WHERE enabled = true AND deleted_at IS NULL`, subscriptionColumns))
	if err != nil {
		return nil, fmt.Errorf("listing enabled subscriptions: %w", err)
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// List returns every non-deleted subscription.
func (s *Store) List(ctx context.Context, conn *pgxpool.Conn) ([]Subscription, error) {
	rows, err := conn.Query(ctx, fmt.Sprintf(`SELECT %s FROM webhook_subscriptions WHERE deleted_at IS NULL ORDER BY created_at`, subscriptionColumns))
	if err != nil {
		return nil, fmt.Errorf("listing subscriptions: %w", err)
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// Get returns a subscription by id.
func (s *Store) Get(ctx context.Context, conn *pgxpool.Conn, id uuid.UUID) (Subscription, error) {
	row := conn.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM webhook_subscriptions WHERE id = $1 AND deleted_at IS NULL`, subscriptionColumns), id)
	sub, err := scanSubscription(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Subscription{}, dalerr.Wrap(dalerr.NotFound, "webhook subscription %s", id)
		}
		return Subscription{}, fmt.Errorf("getting subscription: %w", err)
	}
	return sub, nil
}

// GetDelivery returns a delivery by id.
func (s *Store) GetDelivery(ctx context.Context, conn *pgxpool.Conn, id uuid.UUID) (Delivery, error) {
	row := conn.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM webhook_deliveries WHERE id = $1`, deliveryColumns), id)
	d, err := scanDelivery(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Delivery{}, dalerr.Wrap(dalerr.NotFound, "webhook delivery %s", id)
		}
		return Delivery{}, fmt.Errorf("getting delivery: %w", err)
	}
	return d, nil
}

// SoftDelete tombstones a subscription.
func (s *Store) SoftDelete(ctx context.Context, conn *pgxpool.Conn, id uuid.UUID) error {
	tag, err := conn.Exec(ctx, `UPDATE webhook_subscriptions SET deleted_at = now(), enabled = false WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("soft-deleting subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dalerr.Wrap(dalerr.NotFound, "webhook subscription %s", id)
	}
	return nil
}

// CreateDelivery inserts a new pending delivery, deduplicated on
// (subscription_id, event_id) so republishing the same event is a no-op,
// per spec §4.7's "event_id = event.id (idempotency key)".
func (s *Store) CreateDelivery(ctx context.Context, conn *pgxpool.Conn, subscriptionID uuid.UUID, eventType string, eventID uuid.UUID, payload json.RawMessage, targetLabels []string) (Delivery, error) {
	row := conn.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO webhook_deliveries (subscription_id, event_type, event_id, payload, status, target_labels)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (subscription_id, event_id) DO NOTHING
		RETURNING %s`, deliveryColumns),
		subscriptionID, eventType, eventID, payload, DeliveryPending, targetLabels,
	)
	d, err := scanDelivery(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Delivery{}, dalerr.Wrap(dalerr.Conflict, "delivery for event %s already exists", eventID)
		}
		return Delivery{}, fmt.Errorf("creating delivery: %w", err)
	}
	return d, nil
}

// ClaimBroker atomically claims the oldest pending, or failed and due for
// retry, broker-delivered (empty target_labels) delivery.
func (s *Store) ClaimBroker(ctx context.Context, conn *pgxpool.Conn) (Delivery, error) {
	row := conn.QueryRow(ctx, fmt.Sprintf(`
		UPDATE webhook_deliveries
		SET status = $1, acquired_until = now() + $2::interval, updated_at = now()
		WHERE id = (
			SELECT id FROM webhook_deliveries
			WHERE status IN ($3, $4) AND cardinality(target_labels) = 0
			  AND (next_retry_at IS NULL OR next_retry_at <= now())
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING %s`, deliveryColumns),
		DeliveryAcquired, fmt.Sprintf("%d seconds", int(claimTTL.Seconds())), DeliveryPending, DeliveryFailed,
	)
	d, err := scanDelivery(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Delivery{}, dalerr.Wrap(dalerr.NotFound, "no claimable broker delivery")
		}
		return Delivery{}, fmt.Errorf("claiming broker delivery: %w", err)
	}
	return d, nil
}

// ClaimForAgent atomically claims the oldest pending, or failed and due for
// retry, agent-delivered delivery whose target_labels are all present among agentID's labels
// (spec §4.7: "dispatched to an agent whose labels contain all
// target_labels").
func (s *Store) ClaimForAgent(ctx context.Context, conn *pgxpool.Conn, agentID uuid.UUID) (Delivery, error) {
	row := conn.QueryRow(ctx, fmt.Sprintf(`
		UPDATE webhook_deliveries
		SET status = $1, acquired_by = $2, acquired_until = now() + $3::interval, updated_at = now()
		WHERE id = (
			SELECT wd.id FROM webhook_deliveries wd
			WHERE wd.status IN ($4, $5) AND cardinality(wd.target_labels) > 0
			  AND (wd.next_retry_at IS NULL OR wd.next_retry_at <= now())
			  AND wd.target_labels <@ (
			  	SELECT COALESCE(array_agg(label), ARRAY[]::text[]) FROM agent_labels WHERE agent_id = $2
			  )
			ORDER BY wd.created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING %s`, deliveryColumns),
		DeliveryAcquired, agentID, fmt.Sprintf("%d seconds", int(claimTTL.Seconds())), DeliveryPending, DeliveryFailed,
	)
	d, err := scanDelivery(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Delivery{}, dalerr.Wrap(dalerr.NotFound, "no claimable delivery for agent %s", agentID)
		}
		return Delivery{}, fmt.Errorf("claiming delivery for agent: %w", err)
	}
	return d, nil
}

// MarkSuccess finalizes a delivery as delivered.
func (s *Store) MarkSuccess(ctx context.Context, conn *pgxpool.Conn, id uuid.UUID) error {
	_, err := conn.Exec(ctx, `
		UPDATE webhook_deliveries
		SET status = $1, attempts = attempts + 1, updated_at = now()
		WHERE id = $2`, DeliverySuccess, id)
	if err != nil {
		return fmt.Errorf("marking delivery success: %w", err)
	}
	return nil
}

// MarkDead finalizes a delivery as permanently failed (non-retryable 4xx,
// or retries exhausted).
func (s *Store) MarkDead(ctx context.Context, conn *pgxpool.Conn, id uuid.UUID, lastError string) error {
	_, err := conn.Exec(ctx, `
		UPDATE webhook_deliveries
		SET status = $1, attempts = attempts + 1, last_error = $2, updated_at = now()
		WHERE id = $3`, DeliveryDead, lastError, id)
	if err != nil {
		return fmt.Errorf("marking delivery dead: %w", err)
	}
	return nil
}

// ScheduleRetry returns a delivery to failed/pending-for-retry with an
// exponential backoff deadline (spec §4.7: "next_retry_at = now() + base *
// 2^attempts", base 2s).
func (s *Store) ScheduleRetry(ctx context.Context, conn *pgxpool.Conn, id uuid.UUID, attempts int, lastError string) error {
	backoff := 2 * time.Second * time.Duration(pow2(attempts))
	_, err := conn.Exec(ctx, `
		UPDATE webhook_deliveries
		SET status = $1, attempts = attempts + 1, next_retry_at = now() + $2::interval,
		    last_error = $3, acquired_by = NULL, acquired_until = NULL, updated_at = now()
		WHERE id = $4`,
		DeliveryFailed, fmt.Sprintf("%d seconds", int(backoff.Seconds())), lastError, id,
	)
	if err != nil {
		return fmt.Errorf("scheduling delivery retry: %w", err)
	}
	return nil
}

func pow2(n int) int64 {
	result := int64(1)
	for i := 0; i < n; i++ {
		result *= 2
	}
	return result
}

// RecoverExpiredAcquisitions returns any acquired delivery whose
// acquired_until has passed back to pending, per spec §4.7's sweeper.
func (s *Store) RecoverExpiredAcquisitions(ctx context.Context, conn *pgxpool.Conn) (int64, error) {
	tag, err := conn.Exec(ctx, `
		UPDATE webhook_deliveries
		SET status = $1, acquired_by = NULL, acquired_until = NULL, updated_at = now()
		WHERE status = $2 AND acquired_until < now()`,
		DeliveryPending, DeliveryAcquired,
	)
	if err != nil {
		return 0, fmt.Errorf("recovering expired acquisitions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PurgeTerminal deletes success/dead deliveries older than retention.
func (s *Store) PurgeTerminal(ctx context.Context, conn *pgxpool.Conn, retention time.Duration) (int64, error) {
	tag, err := conn.Exec(ctx, `
		DELETE FROM webhook_deliveries
		WHERE status IN ($1, $2) AND updated_at < now() - $3::interval`,
		DeliverySuccess, DeliveryDead, fmt.Sprintf("%d seconds", int(retention.Seconds())),
	)
	if err != nil {
		return 0, fmt.Errorf("purging terminal deliveries: %w", err)
	}
	return tag.RowsAffected(), nil
}
