// Package workorder implements the work-order queue (spec §4.6): an
// opaque task an agent executes on behalf of the broker, with atomic
// claim/complete/retry semantics realized as conditional SQL updates.
package workorder

import (
	"time"

	"github.com/google/uuid"
)

// Status is a live work order's position in the state diagram.
type Status string

const (
	StatusPending      Status = "PENDING"
	StatusClaimed      Status = "CLAIMED"
	StatusRetryPending Status = "RETRY_PENDING"
)

// WorkOrder is a live row in work_orders.
type WorkOrder struct {
	ID                 uuid.UUID  `json:"id"`
	WorkType            string     `json:"work_type"`
	YAMLContent         string     `json:"yaml_content"`
	Status              Status     `json:"status"`
	ClaimedBy           *uuid.UUID `json:"claimed_by,omitempty"`
	ClaimedAt           *time.Time `json:"claimed_at,omitempty"`
	ClaimTimeoutSeconds int        `json:"claim_timeout_seconds"`
	RetryCount          int        `json:"retry_count"`
	MaxRetries          int        `json:"max_retries"`
	BackoffSeconds      int        `json:"backoff_seconds"`
	NextRetryAfter      *time.Time `json:"next_retry_after,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
	LastErrorAt         *time.Time `json:"last_error_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Log is an immutable, append-only final outcome in work_order_log.
type Log struct {
	ID               uuid.UUID `json:"id"`
	WorkOrderID      uuid.UUID `json:"work_order_id"`
	WorkType         string    `json:"work_type"`
	YAMLContent      string    `json:"yaml_content"`
	Success          bool      `json:"success"`
	RetriesAttempted int       `json:"retries_attempted"`
	ResultMessage    string    `json:"result_message,omitempty"`
	FinalizedAt       time.Time `json:"finalized_at"`
}

// CreateRequest is the payload for enqueuing a new work order.
type CreateRequest struct {
	WorkType            string   `json:"work_type" validate:"required,max=255"`
	YAMLContent         string   `json:"yaml_content" validate:"required"`
	ClaimTimeoutSeconds int      `json:"claim_timeout_seconds" validate:"required,min=1"`
	MaxRetries          int      `json:"max_retries" validate:"min=0"`
	BackoffSeconds      int      `json:"backoff_seconds" validate:"min=1"`
	Labels              []string `json:"labels"`
}

// CompleteRequest is the payload an agent posts to resolve a claimed work
// order.
type CompleteRequest struct {
	Success bool   `json:"success"`
	Message string `json:"message" validate:"max=4000"`
}
