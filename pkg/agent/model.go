// Package agent implements the Agent entity: registration, heartbeat-driven
// status lifecycle, and label/annotation identity used for stack and
// work-order targeting (spec §3, §4.3).
package agent

import (
	"time"

	"github.com/google/uuid"
)

// Status is the agent lifecycle state, per spec §4.3's state diagram.
type Status string

const (
	StatusInactive Status = "INACTIVE"
	StatusActive   Status = "ACTIVE"
	StatusDegraded Status = "DEGRADED"
)

// Agent is a registered per-cluster reconciliation process.
type Agent struct {
	ID            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	ClusterName   string     `json:"cluster_name"`
	Status        Status     `json:"status"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	Labels        []string   `json:"labels,omitempty"`
	Annotations    map[string]string `json:"annotations,omitempty"`
}

// CreateRequest is the payload for registering a new agent.
type CreateRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	ClusterName string `json:"cluster_name" validate:"required,max=255"`
}

// CreateResponse carries the plaintext PAK exactly once.
type CreateResponse struct {
	Agent Agent  `json:"agent"`
	PAK   string `json:"pak"`
}
