package tenant

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brokkr-io/brokkr/internal/platform"
)

// Provisioner creates and tears down per-tenant schemas. Only relevant when
// Brokkr is deployed in schema-per-tenant mode (spec §6 "when multi-tenant").
type Provisioner struct {
	Pool          *pgxpool.Pool
	DatabaseURL   string
	MigrationsDir string
	Logger        *slog.Logger
}

// Provision creates schema, runs tenant migrations against it, and rolls
// back the schema creation if any step fails.
func (p *Provisioner) Provision(ctx context.Context, schema string) (err error) {
	if err := ValidateSchemaName(schema); err != nil {
		return err
	}

	if _, err := p.Pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	defer func() {
		if err != nil {
			if _, dropErr := p.Pool.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema)); dropErr != nil {
				p.Logger.Error("rolling back schema after failed provisioning", "schema", schema, "error", dropErr)
			}
		}
	}()

	scopedURL, err := withSearchPath(p.DatabaseURL, schema)
	if err != nil {
		return fmt.Errorf("building tenant database URL: %w", err)
	}

	if err := platform.RunTenantMigrations(scopedURL, p.MigrationsDir); err != nil {
		return fmt.Errorf("running tenant migrations: %w", err)
	}

	return nil
}

// Deprovision drops a tenant's schema irrecoverably. Callers are expected
// to have already soft-deleted or exported anything worth keeping.
func (p *Provisioner) Deprovision(ctx context.Context, schema string) error {
	if err := ValidateSchemaName(schema); err != nil {
		return err
	}
	if _, err := p.Pool.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema)); err != nil {
		return fmt.Errorf("dropping schema: %w", err)
	}
	return nil
}

func withSearchPath(databaseURL, schema string) (string, error) {
	return fmt.Sprintf("%s&search_path=%s,public", databaseURL, schema), nil
}
