// Package diagnostic implements on-demand per-agent diagnostic requests
// (spec §3, §6: "admin creates; agent polls pending; agent posts result").
package diagnostic

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is a diagnostic request's position in its lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusClaimed   Status = "claimed"
	StatusCompleted Status = "completed"
)

// Request is a single diagnostic ask targeted at one agent and (usually)
// one deployment object — e.g. "tail the last 200 log lines", "list
// events since timestamp".
type Request struct {
	ID                 uuid.UUID       `json:"id"`
	AgentID             uuid.UUID       `json:"agent_id"`
	DeploymentObjectID  *uuid.UUID      `json:"deployment_object_id,omitempty"`
	Kind                string          `json:"kind"`
	Params              json.RawMessage `json:"params,omitempty"`
	Status              Status          `json:"status"`
	ClaimedAt           *time.Time      `json:"claimed_at,omitempty"`
	ExpiresAt           time.Time       `json:"expires_at"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Result is the agent's answer to a Request.
type Result struct {
	ID          uuid.UUID       `json:"id"`
	RequestID   uuid.UUID       `json:"request_id"`
	Success     bool            `json:"success"`
	Output      json.RawMessage `json:"output,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Known diagnostic kinds the agent's Kubernetes interface supports per
// spec §6: "pod list for health, events list, log tail for diagnostics".
const (
	KindLogTail    = "log_tail"
	KindEventsList = "events_list"
	KindPodList    = "pod_list"
)

// CreateRequest is the admin-facing payload for opening a diagnostic
// request against an agent.
type CreateRequest struct {
	AgentID            uuid.UUID       `json:"agent_id" validate:"required"`
	DeploymentObjectID *uuid.UUID      `json:"deployment_object_id,omitempty"`
	Kind               string          `json:"kind" validate:"required,oneof=log_tail events_list pod_list"`
	Params             json.RawMessage `json:"params,omitempty"`
	TTLSeconds         int             `json:"ttl_seconds" validate:"min=0"`
}

// CompleteRequest is the agent-facing payload for posting a result.
type CompleteRequest struct {
	Success      bool            `json:"success"`
	Output       json.RawMessage `json:"output,omitempty"`
	ErrorMessage string          `json:"error_message"`
}
