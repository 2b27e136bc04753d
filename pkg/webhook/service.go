package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brokkr-io/brokkr/internal/credential"
	"github.com/brokkr-io/brokkr/internal/dalerr"
	"github.com/brokkr-io/brokkr/internal/eventbus"
	"github.com/brokkr-io/brokkr/internal/tenant"
)

// Service implements subscription management, event-to-subscription
// matching (spec §4.7), and delivery attempts.
type Service struct {
	store  *Store
	sealer *credential.Sealer
	pool   *pgxpool.Pool
	client *http.Client
}

// NewService builds a Service bound to a tenant-scoped pool.
func NewService(pool *pgxpool.Pool, sealer *credential.Sealer) *Service {
	return &Service{store: NewStore(pool), sealer: sealer, pool: pool, client: &http.Client{}}
}

// Subscribe registers a new webhook subscription, sealing its URL and
// optional auth header before persisting them.
func (s *Service) Subscribe(ctx context.Context, schema string, req CreateSubscriptionRequest) (Subscription, error) {
	encryptedURL, err := s.sealer.Seal(req.URL)
	if err != nil {
		return Subscription{}, fmt.Errorf("sealing webhook url: %w", err)
	}
	var encryptedAuthHeader []byte
	if req.AuthHeader != "" {
		encryptedAuthHeader, err = s.sealer.Seal(req.AuthHeader)
		if err != nil {
			return Subscription{}, fmt.Errorf("sealing auth header: %w", err)
		}
	}

	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return Subscription{}, err
	}
	defer conn.Release()

	return s.store.CreateSubscription(ctx, conn, req.Name, encryptedURL, encryptedAuthHeader, req.EventTypes, req.TargetLabels, req.MaxRetries, req.TimeoutSeconds)
}

// List returns every non-deleted subscription.
func (s *Service) List(ctx context.Context, schema string) ([]Subscription, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return nil, err
	}
	defer conn.Release()
	return s.store.List(ctx, conn)
}

// Unsubscribe soft-deletes a subscription.
func (s *Service) Unsubscribe(ctx context.Context, schema string, id uuid.UUID) error {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return err
	}
	defer conn.Release()
	return s.store.SoftDelete(ctx, conn, id)
}

// Dispatch fans an event out to every enabled subscription whose
// event_types pattern list matches, creating a pending delivery for each
// (spec §4.7). Called from an eventbus.Handler, so it must never block the
// publisher — callers should invoke it from the subscriber's own
// dispatcher goroutine, never synchronously inside Publish.
func (s *Service) Dispatch(ctx context.Context, schema string, event eventbus.Event) error {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return err
	}
	defer conn.Release()

	subs, err := s.store.ListEnabledSubscriptions(ctx, conn)
	if err != nil {
		return err
	}

	for _, sub := range subs {
		if !AnyPatternMatches(sub.EventTypes, event.Type) {
			continue
		}
		if !filtersMatch(sub.Filters, event.Data) {
			continue
		}
		if _, err := s.store.CreateDelivery(ctx, conn, sub.ID, event.Type, event.ID, event.Data, sub.TargetLabels); err != nil && !dalerr.Is(err, dalerr.Conflict) {
			return err
		}
	}
	return nil
}

// filtersMatch reports whether every key present in filters has an equal
// value in eventData, per spec §4.7's "additional per-subscription JSON
// filters (agent_id, stack_id, labels) must also match if present".
func filtersMatch(filters, eventData json.RawMessage) bool {
	if len(filters) == 0 {
		return true
	}
	var want map[string]any
	if err := json.Unmarshal(filters, &want); err != nil || len(want) == 0 {
		return true
	}
	var have map[string]any
	if err := json.Unmarshal(eventData, &have); err != nil {
		return false
	}
	for k, v := range want {
		hv, ok := have[k]
		if !ok {
			return false
		}
		wantJSON, _ := json.Marshal(v)
		haveJSON, _ := json.Marshal(hv)
		if string(wantJSON) != string(haveJSON) {
			return false
		}
	}
	return true
}

// StartDispatcher subscribes to bus and enqueues a delivery for every
// published event matching an enabled subscription, until ctx is
// cancelled. Each call to Dispatch acquires and releases its own
// connection, so a slow subscription lookup never blocks the publisher
// beyond the bus's own per-subscriber buffer.
func (s *Service) StartDispatcher(ctx context.Context, bus *eventbus.Bus, schema string) func() {
	return bus.Subscribe(ctx, 256, func(ctx context.Context, event eventbus.Event) {
		if err := s.Dispatch(ctx, schema, event); err != nil {
			// Dispatch failures are transient DB errors; the event is
			// already durable in the emitting entity's own table, so
			// nothing is lost — the next publish on the same topic will
			// still reach any subscription this attempt missed.
			return
		}
	})
}

// ClaimBroker claims the next claimable broker-delivered delivery; the
// claim endpoint calls it for callers that are not agents.
func (s *Service) ClaimBroker(ctx context.Context, schema string) (Delivery, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return Delivery{}, err
	}
	defer conn.Release()
	return s.store.ClaimBroker(ctx, conn)
}

// ClaimForAgent claims the next agent-delivered pending delivery eligible
// for agentID, decrypting its subscription's target URL and auth header
// so the agent can perform the delivery itself (spec §4.7: label-targeted
// deliveries reach destinations only the claiming agent's cluster can
// route to).
func (s *Service) ClaimForAgent(ctx context.Context, schema string, agentID uuid.UUID) (AgentDelivery, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return AgentDelivery{}, err
	}
	defer conn.Release()

	delivery, err := s.store.ClaimForAgent(ctx, conn, agentID)
	if err != nil {
		return AgentDelivery{}, err
	}

	sub, err := s.store.Get(ctx, conn, delivery.SubscriptionID)
	if err != nil {
		return AgentDelivery{}, fmt.Errorf("loading subscription: %w", err)
	}

	url, err := s.sealer.Open(sub.EncryptedURL)
	if err != nil {
		_ = s.store.MarkDead(ctx, conn, delivery.ID, "failed to decrypt subscription url")
		return AgentDelivery{}, dalerr.Wrap(dalerr.Fatal, "decrypting subscription url: %v", err)
	}

	var authHeader string
	if len(sub.EncryptedAuthHeader) > 0 {
		if opened, err := s.sealer.Open(sub.EncryptedAuthHeader); err == nil {
			authHeader = opened
		}
	}

	return AgentDelivery{Delivery: delivery, TargetURL: url, AuthHeader: authHeader}, nil
}

// Attempt performs the HTTP delivery attempt for a claimed, broker-side
// delivery and records its outcome, per spec §4.7's delivery-attempt and
// retry-classification rules.
func (s *Service) Attempt(ctx context.Context, schema string, delivery Delivery) error {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return err
	}
	defer conn.Release()

	sub, err := s.store.Get(ctx, conn, delivery.SubscriptionID)
	if err != nil {
		return err
	}

	url, err := s.sealer.Open(sub.EncryptedURL)
	if err != nil {
		return s.store.MarkDead(ctx, conn, delivery.ID, "failed to decrypt subscription url")
	}

	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(sub.TimeoutSeconds)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(delivery.Payload))
	if err != nil {
		return s.store.MarkDead(ctx, conn, delivery.ID, fmt.Sprintf("building request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Brokkr-Event-Type", delivery.EventType)
	req.Header.Set("X-Brokkr-Delivery-Id", delivery.ID.String())
	if len(sub.EncryptedAuthHeader) > 0 {
		if authHeader, err := s.sealer.Open(sub.EncryptedAuthHeader); err == nil {
			req.Header.Set("Authorization", authHeader)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return s.retryOrDead(ctx, conn, delivery, sub.MaxRetries, err.Error())
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return s.store.MarkSuccess(ctx, conn, delivery.ID)
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return s.retryOrDead(ctx, conn, delivery, sub.MaxRetries, fmt.Sprintf("http %d", resp.StatusCode))
	default:
		// Other 4xx are non-retryable per spec §4.7.
		return s.store.MarkDead(ctx, conn, delivery.ID, fmt.Sprintf("http %d", resp.StatusCode))
	}
}

// CompleteAgentDelivery records the outcome an agent reports for a
// delivery it claimed via ClaimForAgent, applying the same
// success/retry/dead classification as Attempt.
func (s *Service) CompleteAgentDelivery(ctx context.Context, schema string, deliveryID uuid.UUID, success bool, lastError string) error {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return err
	}
	defer conn.Release()

	if success {
		return s.store.MarkSuccess(ctx, conn, deliveryID)
	}

	delivery, err := s.store.GetDelivery(ctx, conn, deliveryID)
	if err != nil {
		return err
	}
	sub, err := s.store.Get(ctx, conn, delivery.SubscriptionID)
	if err != nil {
		return err
	}
	return s.retryOrDead(ctx, conn, delivery, sub.MaxRetries, lastError)
}

func (s *Service) retryOrDead(ctx context.Context, conn *pgxpool.Conn, delivery Delivery, maxRetries int, lastError string) error {
	if delivery.Attempts+1 >= maxRetries {
		return s.store.MarkDead(ctx, conn, delivery.ID, lastError)
	}
	return s.store.ScheduleRetry(ctx, conn, delivery.ID, delivery.Attempts, lastError)
}

// RecoverExpiredAcquisitions returns any acquired delivery whose
// acquired_until has passed back to pending.
func (s *Service) RecoverExpiredAcquisitions(ctx context.Context, schema string) (int64, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return 0, err
	}
	defer conn.Release()
	return s.store.RecoverExpiredAcquisitions(ctx, conn)
}

// PurgeTerminal deletes success/dead deliveries older than retention.
func (s *Service) PurgeTerminal(ctx context.Context, schema string, retention time.Duration) (int64, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return 0, err
	}
	defer conn.Release()
	return s.store.PurgeTerminal(ctx, conn, retention)
}
