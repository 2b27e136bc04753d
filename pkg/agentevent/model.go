// Package agentevent records the AgentEvent entity: the append-only log
// of per-deployment-object outcomes an agent reports as it reconciles
// (spec §3, §4.5: "these events are the primary observability surface
// for the broker").
package agentevent

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is the outcome an agent reports for one reconciliation attempt.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
)

// Known event types. "deployment" is the only type the reconciliation
// engine emits today (spec §4.5); the column is free text so future
// event kinds (e.g. a work-order-execution event) need no migration.
const (
	TypeDeployment = "deployment"
)

// Event is one reported outcome, append-only under normal operation —
// it has no deleted_at and is never mutated after insertion.
type Event struct {
	ID                 uuid.UUID       `json:"id"`
	AgentID            uuid.UUID       `json:"agent_id"`
	DeploymentObjectID *uuid.UUID      `json:"deployment_object_id,omitempty"`
	EventType          string          `json:"event_type"`
	Status             Status          `json:"status"`
	Message            string          `json:"message,omitempty"`
	Detail             json.RawMessage `json:"detail,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

// ReportRequest is the agent-facing payload for posting one event.
type ReportRequest struct {
	DeploymentObjectID *uuid.UUID      `json:"deployment_object_id,omitempty"`
	EventType          string          `json:"event_type" validate:"required"`
	Status             Status          `json:"status" validate:"required,oneof=SUCCESS FAILURE"`
	Message            string          `json:"message"`
	Detail             json.RawMessage `json:"detail,omitempty"`
}
