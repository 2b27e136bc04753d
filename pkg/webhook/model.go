// Package webhook implements webhook subscriptions and the claim-based
// delivery queue of spec §4.7.
package webhook

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus is a delivery's position in its state machine.
type DeliveryStatus string

const (
	DeliveryPending  DeliveryStatus = "pending"
	DeliveryAcquired DeliveryStatus = "acquired"
	DeliverySuccess  DeliveryStatus = "success"
	DeliveryFailed   DeliveryStatus = "failed"
	DeliveryDead     DeliveryStatus = "dead"
)

// Subscription is a registered webhook target.
type Subscription struct {
	ID                  uuid.UUID       `json:"id"`
	Name                string          `json:"name"`
	EncryptedURL        []byte          `json:"-"`
	EncryptedAuthHeader []byte          `json:"-"`
	EventTypes          []string        `json:"event_types"`
	Filters             json.RawMessage `json:"filters,omitempty"`
	TargetLabels        []string        `json:"target_labels,omitempty"`
	Enabled             bool            `json:"enabled"`
	MaxRetries          int             `json:"max_retries"`
	TimeoutSeconds      int             `json:"timeout_seconds"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Delivery is one attempt (and its retry history) to deliver an event to
// a subscription.
type Delivery struct {
	ID             uuid.UUID       `json:"id"`
	SubscriptionID uuid.UUID       `json:"subscription_id"`
	EventType      string          `json:"event_type"`
	EventID        uuid.UUID       `json:"event_id"`
	Payload        json.RawMessage `json:"payload"`
	Status         DeliveryStatus  `json:"status"`
	AcquiredBy     *uuid.UUID      `json:"acquired_by,omitempty"`
	AcquiredUntil  *time.Time      `json:"acquired_until,omitempty"`
	Attempts       int             `json:"attempts"`
	NextRetryAt    *time.Time      `json:"next_retry_at,omitempty"`
	LastError      string          `json:"last_error,omitempty"`
	TargetLabels   []string        `json:"target_labels,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// IsAgentDelivered reports whether a delivery must be dispatched to an
// agent rather than handled by the broker's own delivery worker (spec
// §4.7: "target_labels empty ⇒ broker delivery; non-empty ⇒ agent
// delivery").
func (d Delivery) IsAgentDelivered() bool {
	return len(d.TargetLabels) > 0
}

// AgentDelivery is what an agent receives from claiming a label-targeted
// delivery: the delivery itself plus the subscription's target URL and
// auth header, decrypted once at claim time since only the agent (not
// the broker) can reach the target from inside its cluster's network.
// These are never persisted — the broker discards them after responding.
type AgentDelivery struct {
	Delivery
	TargetURL  string `json:"target_url"`
	AuthHeader string `json:"auth_header,omitempty"`
}

// CreateSubscriptionRequest is the payload for registering a webhook.
type CreateSubscriptionRequest struct {
	Name           string   `json:"name" validate:"required,max=255"`
	URL            string   `json:"url" validate:"required,url"`
	AuthHeader     string   `json:"auth_header"`
	EventTypes     []string `json:"event_types" validate:"required,min=1"`
	TargetLabels   []string `json:"target_labels"`
	MaxRetries     int      `json:"max_retries" validate:"min=0"`
	TimeoutSeconds int      `json:"timeout_seconds" validate:"required,min=1"`
}
