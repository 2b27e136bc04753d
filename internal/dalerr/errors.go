// Package dalerr defines the small, stable error taxonomy shared by every
// data-access and service-layer operation in Brokkr.
package dalerr

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Callers compare with errors.Is; handlers map these to
// transport-level status the way incident/handler.go maps pgx.ErrNoRows.
var (
	NotFound          = errors.New("not found")
	Forbidden         = errors.New("forbidden")
	InvalidCredential = errors.New("invalid credential")
	Conflict          = errors.New("conflict")
	InvalidInput      = errors.New("invalid input")
	ConnectionPool    = errors.New("connection pool exhausted")
	Transient         = errors.New("transient downstream error")
	Fatal             = errors.New("invariant violation")
)

// Wrap annotates a sentinel kind with request-specific detail while
// preserving errors.Is(err, kind).
func Wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// Is reports whether err ultimately wraps kind.
func Is(err, kind error) bool {
	return errors.Is(err, kind)
}
