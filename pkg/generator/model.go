// Package generator implements the Generator entity (spec §3): a
// non-human principal, typically a CI pipeline, scoped to the stacks and
// templates it creates.
package generator

import (
	"time"

	"github.com/google/uuid"
)

// Generator is a PAK-holding, non-human principal.
type Generator struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	IsActive     bool       `json:"is_active"`
	LastActiveAt *time.Time `json:"last_active_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// CreateRequest is the payload for registering a new generator.
type CreateRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description" validate:"max=2000"`
}

// CreateResponse returns the new generator plus its one-time PAK.
type CreateResponse struct {
	Generator Generator `json:"generator"`
	PAK       string    `json:"pak"`
}
