// Package stack implements the Stack and DeploymentObject entities (spec
// §3): named collections of immutable, sequence-numbered YAML deployment
// objects, plus the targeting union (direct + label + annotation) that
// determines which agent receives which stack's objects (spec §4.3).
package stack

import (
	"time"

	"github.com/google/uuid"
)

// Stack is a named collection of deployment objects.
type Stack struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	GeneratorID *uuid.UUID `json:"generator_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// DeploymentObject is an immutable, sequence-numbered YAML document
// belonging to a stack.
type DeploymentObject struct {
	ID              uuid.UUID `json:"id"`
	SequenceID      int64     `json:"sequence_id"`
	StackID         uuid.UUID `json:"stack_id"`
	YAMLContent     string    `json:"yaml_content"`
	YAMLChecksum    string    `json:"yaml_checksum"`
	SubmittedAt     time.Time `json:"submitted_at"`
	IsDeletionMarker bool     `json:"is_deletion_marker"`
	GeneratorID     *uuid.UUID `json:"generator_id,omitempty"`
}

// Annotation is a key/value targeting requirement attached to a stack.
type Annotation struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// CreateRequest is the payload for creating a stack.
type CreateRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description" validate:"max=2000"`
}

// CreateDeploymentObjectRequest is the payload for submitting a new
// deployment object to a stack.
type CreateDeploymentObjectRequest struct {
	YAMLContent string `json:"yaml_content" validate:"required"`
}
