// Package health stores per-agent deployment health reports (spec §4.5).
package health

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is a deployment object's classification on a single agent.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusFailing  Status = "failing"
	StatusUnknown  Status = "unknown"
)

// Summary is the JSON payload attached to a health report, mirroring the
// fields the reconciliation engine observes when classifying pods.
type Summary struct {
	PodsReady  int      `json:"pods_ready"`
	PodsTotal  int      `json:"pods_total"`
	Conditions []string `json:"conditions,omitempty"`
	Resources  []string `json:"resources,omitempty"`
}

// DeploymentHealth is the most recent health report an agent filed for a
// deployment object, keyed by (agent_id, deployment_object_id).
type DeploymentHealth struct {
	AgentID            uuid.UUID       `json:"agent_id"`
	DeploymentObjectID uuid.UUID       `json:"deployment_object_id"`
	Status             Status          `json:"status"`
	Summary            json.RawMessage `json:"summary"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// ReportRequest is a single deployment object's health as reported by its
// agent; agents submit a batch of these per spec §6's "agents batch-upsert
// DeploymentHealth".
type ReportRequest struct {
	DeploymentObjectID uuid.UUID `json:"deployment_object_id" validate:"required"`
	Status             Status    `json:"status" validate:"required,oneof=healthy degraded failing unknown"`
	Summary            Summary   `json:"summary"`
}

// BatchReportRequest is the payload for an agent's periodic health sweep.
type BatchReportRequest struct {
	Reports []ReportRequest `json:"reports" validate:"required,min=1,dive"`
}
