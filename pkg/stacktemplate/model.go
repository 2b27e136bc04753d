// Package stacktemplate implements the StackTemplate and
// RenderedDeploymentObject entities and the five-step Instantiate contract
// of spec §4.8.
package stacktemplate

import (
	"time"

	"github.com/google/uuid"
)

// StackTemplate carries template text plus a JSON-Schema parameter
// contract, versioned by (generator_id, name, version).
type StackTemplate struct {
	ID               uuid.UUID  `json:"id"`
	GeneratorID      *uuid.UUID `json:"generator_id,omitempty"`
	Name             string     `json:"name"`
	Version          int        `json:"version"`
	TemplateContent  string     `json:"template_content"`
	ParametersSchema string     `json:"parameters_schema"`
	Checksum         string     `json:"checksum"`
	Labels           []string   `json:"labels,omitempty"`
	Annotations      []Annotation `json:"annotations,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Annotation is a key/value targeting requirement, matching labelmatch's
// shape.
type Annotation struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// RenderedDeploymentObject links a rendered deployment object back to the
// template version and parameters that produced it, a provenance row per
// spec §4.8 step 5.
type RenderedDeploymentObject struct {
	ID                 uuid.UUID `json:"id"`
	DeploymentObjectID uuid.UUID `json:"deployment_object_id"`
	TemplateID         uuid.UUID `json:"template_id"`
	TemplateVersion    int       `json:"template_version"`
	Parameters         []byte    `json:"parameters"`
	CreatedAt          time.Time `json:"created_at"`
}

// CreateRequest is the payload for submitting a new template version.
type CreateRequest struct {
	Name             string       `json:"name" validate:"required,max=255"`
	TemplateContent  string       `json:"template_content" validate:"required"`
	ParametersSchema string       `json:"parameters_schema" validate:"required"`
	Labels           []string     `json:"labels"`
	Annotations      []Annotation `json:"annotations"`
}

// InstantiateRequest is the payload for rendering a template into a stack.
type InstantiateRequest struct {
	StackID    uuid.UUID      `json:"stack_id" validate:"required"`
	Parameters map[string]any `json:"parameters"`
}
