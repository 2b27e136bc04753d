package credential

import (
	"context"

	"github.com/google/uuid"
)

// PrincipalType distinguishes the three kinds of callers Brokkr recognizes.
type PrincipalType string

const (
	PrincipalAdmin     PrincipalType = "admin"
	PrincipalAgent     PrincipalType = "agent"
	PrincipalGenerator PrincipalType = "generator"
)

// Principal is the authenticated identity attached to a request, resolved
// by Store.Verify from a bearer PAK.
type Principal struct {
	Type PrincipalType
	ID   uuid.UUID
	Name string
}

type ctxKey int

const principalKey ctxKey = iota

// NewContext stores p in ctx.
func NewContext(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// FromContext retrieves the Principal stored by NewContext, if any.
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey).(*Principal)
	return p
}
