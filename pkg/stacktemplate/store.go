package stacktemplate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brokkr-io/brokkr/internal/dalerr"
)

const templateColumns = `id, generator_id, name, version, template_content, parameters_schema, checksum, created_at, updated_at`

// Store is the raw-pgx DAL for stack templates, grounded on
// pkg/apikey/store.go.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore builds a Store bound to the tenant-scoped connection pool.
func NewStore(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

// Checksum computes the content hash persisted alongside a template
// version.
func Checksum(templateContent string) string {
	sum := sha256.Sum256([]byte(templateContent))
	return hex.EncodeToString(sum[:])
}

func scanTemplate(row pgx.Row) (StackTemplate, error) {
	var t StackTemplate
	err := row.Scan(&t.ID, &t.GeneratorID, &t.Name, &t.Version, &t.TemplateContent, &t.ParametersSchema, &t.Checksum, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// Create inserts the next version of a (generator_id, name) template,
// computing version = max(existing)+1 inside the same statement (spec
// §4.8: "any update creates a new row with version = max(existing)+1; past
// versions are retained"). Two concurrent submissions can compute the same
// version; the unique index rejects the second, which is reported as
// dalerr.Conflict.
func (s *Store) Create(ctx context.Context, conn *pgxpool.Conn, generatorID *uuid.UUID, name, templateContent, parametersSchema string) (StackTemplate, error) {
	row := conn.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO stack_templates (generator_id, name, version, template_content, parameters_schema, checksum)
		SELECT $1, $2, COALESCE(MAX(version), 0) + 1, $3, $4, $5
		FROM stack_templates
		WHERE name = $2 AND deleted_at IS NULL
		  AND ((generator_id IS NULL AND $1::uuid IS NULL) OR generator_id = $1)
		RETURNING %s`, templateColumns),
		generatorID, name, templateContent, parametersSchema, Checksum(templateContent),
	)
	t, err := scanTemplate(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return s.createFirst(ctx, conn, generatorID, name, templateContent, parametersSchema)
		}
		if dalerr.PgCode(err) == dalerr.UniqueViolation {
			return StackTemplate{}, dalerr.Wrap(dalerr.Conflict, "template %q version conflict, retry", name)
		}
		return StackTemplate{}, fmt.Errorf("creating template: %w", err)
	}
	return t, nil
}

// createFirst inserts version 1 directly. Create falls back to it only when
// its INSERT ... SELECT returns no row; because that SELECT aggregates
// without GROUP BY, it already yields version 1 when no prior version
// exists.
func (s *Store) createFirst(ctx context.Context, conn *pgxpool.Conn, generatorID *uuid.UUID, name, templateContent, parametersSchema string) (StackTemplate, error) {
	row := conn.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO stack_templates (generator_id, name, version, template_content, parameters_schema, checksum)
		VALUES ($1, $2, 1, $3, $4, $5)
		RETURNING %s`, templateColumns),
		generatorID, name, templateContent, parametersSchema, Checksum(templateContent),
	)
	t, err := scanTemplate(row)
	if err != nil {
		if dalerr.PgCode(err) == dalerr.UniqueViolation {
			return StackTemplate{}, dalerr.Wrap(dalerr.Conflict, "template %q version conflict, retry", name)
		}
		return StackTemplate{}, fmt.Errorf("creating first template version: %w", err)
	}
	return t, nil
}

// Get returns a non-deleted template by id.
func (s *Store) Get(ctx context.Context, conn *pgxpool.Conn, id uuid.UUID) (StackTemplate, error) {
	row := conn.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM stack_templates WHERE id = $1 AND deleted_at IS NULL`, templateColumns), id)
	t, err := scanTemplate(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return StackTemplate{}, dalerr.Wrap(dalerr.NotFound, "stack template %s", id)
		}
		return StackTemplate{}, fmt.Errorf("getting template: %w", err)
	}
	return t, nil
}

// LatestVersion returns the highest non-deleted version for a template
// name.
func (s *Store) LatestVersion(ctx context.Context, conn *pgxpool.Conn, name string) (StackTemplate, error) {
	row := conn.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM stack_templates
		WHERE name = $1 AND deleted_at IS NULL
		ORDER BY version DESC LIMIT 1`, templateColumns), name)
	t, err := scanTemplate(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return StackTemplate{}, dalerr.Wrap(dalerr.NotFound, "stack template %q", name)
		}
		return StackTemplate{}, fmt.Errorf("getting latest template version: %w", err)
	}
	return t, nil
}

// List returns all non-deleted template versions.
func (s *Store) List(ctx context.Context, conn *pgxpool.Conn) ([]StackTemplate, error) {
	rows, err := conn.Query(ctx, fmt.Sprintf(`SELECT %s FROM stack_templates WHERE deleted_at IS NULL ORDER BY name, version`, templateColumns))
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}
	defer rows.Close()

	var out []StackTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Labels returns a template's required labels.
func (s *Store) Labels(ctx context.Context, conn *pgxpool.Conn, templateID uuid.UUID) ([]string, error) {
	rows, err := conn.Query(ctx, `SELECT label FROM stack_template_labels WHERE stack_template_id = $1`, templateID)
	if err != nil {
		return nil, fmt.Errorf("listing template labels: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Annotations returns a template's required annotations.
func (s *Store) Annotations(ctx context.Context, conn *pgxpool.Conn, templateID uuid.UUID) ([]Annotation, error) {
	rows, err := conn.Query(ctx, `SELECT key, value FROM stack_template_annotations WHERE stack_template_id = $1`, templateID)
	if err != nil {
		return nil, fmt.Errorf("listing template annotations: %w", err)
	}
	defer rows.Close()

	var out []Annotation
	for rows.Next() {
		var a Annotation
		if err := rows.Scan(&a.Key, &a.Value); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AddLabel attaches a required label to a template version.
func (s *Store) AddLabel(ctx context.Context, conn *pgxpool.Conn, templateID uuid.UUID, label string) error {
	_, err := conn.Exec(ctx, `
		INSERT INTO stack_template_labels (stack_template_id, label) VALUES ($1, $2)
		ON CONFLICT (stack_template_id, label) DO NOTHING`, templateID, label)
	if err != nil {
		return fmt.Errorf("adding template label: %w", err)
	}
	return nil
}

// AddAnnotation attaches a required annotation to a template version.
func (s *Store) AddAnnotation(ctx context.Context, conn *pgxpool.Conn, templateID uuid.UUID, key, value string) error {
	_, err := conn.Exec(ctx, `
		INSERT INTO stack_template_annotations (stack_template_id, key, value) VALUES ($1, $2, $3)
		ON CONFLICT (stack_template_id, key, value) DO NOTHING`, templateID, key, value)
	if err != nil {
		return fmt.Errorf("adding template annotation: %w", err)
	}
	return nil
}

// RecordRendering persists the provenance row linking a deployment object
// back to the template version and parameters that rendered it.
func (s *Store) RecordRendering(ctx context.Context, conn *pgxpool.Conn, deploymentObjectID, templateID uuid.UUID, templateVersion int, parameters []byte) (RenderedDeploymentObject, error) {
	row := conn.QueryRow(ctx, `
		INSERT INTO rendered_deployment_objects (deployment_object_id, template_id, template_version, parameters)
		VALUES ($1, $2, $3, $4)
		RETURNING id, deployment_object_id, template_id, template_version, parameters, created_at`,
		deploymentObjectID, templateID, templateVersion, parameters,
	)
	var rdo RenderedDeploymentObject
	err := row.Scan(&rdo.ID, &rdo.DeploymentObjectID, &rdo.TemplateID, &rdo.TemplateVersion, &rdo.Parameters, &rdo.CreatedAt)
	if err != nil {
		return RenderedDeploymentObject{}, fmt.Errorf("recording rendered deployment object: %w", err)
	}
	return rdo, nil
}
