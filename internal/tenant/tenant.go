// Package tenant scopes a pooled database connection to a tenant's schema
// by setting search_path on acquisition, per spec §4.2.
package tenant

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaNameRegex guards against search_path injection: only a plain
// identifier starting with a letter is accepted.
var schemaNameRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ValidateSchemaName returns an error if name is not a safe schema
// identifier.
func ValidateSchemaName(name string) error {
	if name == "" {
		return nil
	}
	if !schemaNameRegex.MatchString(name) {
		return fmt.Errorf("invalid schema name %q", name)
	}
	return nil
}

// Acquire checks out a pooled connection and, when schema is non-empty,
// scopes every subsequent statement on it to that schema via search_path.
// The caller must Release() the returned connection on every exit path.
func Acquire(ctx context.Context, pool *pgxpool.Pool, schema string) (*pgxpool.Conn, error) {
	if err := ValidateSchemaName(schema); err != nil {
		return nil, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}

	if schema != "" {
		if _, err := conn.Exec(ctx, "SELECT set_config('search_path', $1, false)", schema+", public"); err != nil {
			conn.Release()
			return nil, fmt.Errorf("setting search_path: %w", err)
		}
	}

	return conn, nil
}
