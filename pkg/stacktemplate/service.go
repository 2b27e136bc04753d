package stacktemplate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/brokkr-io/brokkr/internal/dalerr"
	"github.com/brokkr-io/brokkr/internal/labelmatch"
	"github.com/brokkr-io/brokkr/internal/tenant"
	"github.com/brokkr-io/brokkr/pkg/stack"
)

// Service implements template versioning and the five-step Instantiate
// contract of spec §4.8. `InvalidParameters` and `RenderError` from the
// spec's prose both surface here as dalerr.InvalidInput, since Brokkr's
// Go error taxonomy (spec §7) has no finer-grained sibling for them — see
// DESIGN.md.
type Service struct {
	store    *Store
	stacks   *stack.Service
	renderer Renderer
	pool     *pgxpool.Pool
}

// NewService builds a Service bound to a tenant-scoped pool.
func NewService(pool *pgxpool.Pool, stacks *stack.Service, renderer Renderer) *Service {
	if renderer == nil {
		renderer = TextTemplateRenderer{}
	}
	return &Service{store: NewStore(pool), stacks: stacks, renderer: renderer, pool: pool}
}

// Create submits a new template version, validating that
// parameters_schema is itself a well-formed JSON-Schema document before
// persisting it.
func (s *Service) Create(ctx context.Context, schema string, generatorID *uuid.UUID, name, templateContent, parametersSchema string, labels []string, annotations []Annotation) (StackTemplate, error) {
	if _, err := compileSchema(parametersSchema); err != nil {
		return StackTemplate{}, dalerr.Wrap(dalerr.InvalidInput, "invalid parameters_schema: %v", err)
	}

	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return StackTemplate{}, err
	}
	defer conn.Release()

	t, err := s.store.Create(ctx, conn, generatorID, name, templateContent, parametersSchema)
	if err != nil {
		return StackTemplate{}, err
	}

	for _, l := range labels {
		if err := labelmatch.ValidateLabel(l); err != nil {
			return StackTemplate{}, dalerr.Wrap(dalerr.InvalidInput, "%v", err)
		}
		if err := s.store.AddLabel(ctx, conn, t.ID, l); err != nil {
			return StackTemplate{}, err
		}
	}
	for _, a := range annotations {
		if err := s.store.AddAnnotation(ctx, conn, t.ID, a.Key, a.Value); err != nil {
			return StackTemplate{}, err
		}
	}
	t.Labels = labels
	t.Annotations = annotations
	return t, nil
}

// Get returns a template version by id, including its targeting
// requirements.
func (s *Service) Get(ctx context.Context, schema string, id uuid.UUID) (StackTemplate, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return StackTemplate{}, err
	}
	defer conn.Release()

	t, err := s.store.Get(ctx, conn, id)
	if err != nil {
		return StackTemplate{}, err
	}
	t.Labels, _ = s.store.Labels(ctx, conn, id)
	t.Annotations, _ = s.store.Annotations(ctx, conn, id)
	return t, nil
}

// List returns every non-deleted template version.
func (s *Service) List(ctx context.Context, schema string) ([]StackTemplate, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return nil, err
	}
	defer conn.Release()
	return s.store.List(ctx, conn)
}

// Instantiate runs five steps: a check that the stack exists and is not
// soft-deleted, label/annotation compatibility, parameter validation,
// rendering, and deployment-object creation with provenance. It does not
// check whether the caller has access to the stack.
func (s *Service) Instantiate(ctx context.Context, schema string, templateID uuid.UUID, stackID uuid.UUID, params map[string]any) (stack.DeploymentObject, error) {
	conn, err := tenant.Acquire(ctx, s.pool, schema)
	if err != nil {
		return stack.DeploymentObject{}, err
	}
	defer conn.Release()

	// Step 1: stack must exist and not be soft-deleted.
	st, err := s.stacks.Get(ctx, schema, stackID)
	if err != nil {
		return stack.DeploymentObject{}, err
	}

	tmpl, err := s.store.Get(ctx, conn, templateID)
	if err != nil {
		return stack.DeploymentObject{}, err
	}
	tmplLabels, err := s.store.Labels(ctx, conn, templateID)
	if err != nil {
		return stack.DeploymentObject{}, err
	}
	tmplAnnotations, err := s.store.Annotations(ctx, conn, templateID)
	if err != nil {
		return stack.DeploymentObject{}, err
	}

	// Step 2: label/annotation compatibility. A template with no
	// labels/annotations matches any stack; otherwise every template
	// label/annotation must be present on the stack (subset, not OR-match).
	if len(tmplLabels) > 0 {
		stackLabels, err := s.stacks.Labels(ctx, schema, stackID)
		if err != nil {
			return stack.DeploymentObject{}, err
		}
		if missing, ok := labelsSubset(tmplLabels, stackLabels); !ok {
			return stack.DeploymentObject{}, dalerr.Wrap(dalerr.InvalidInput, "stack missing required label %q", missing)
		}
	}
	if len(tmplAnnotations) > 0 {
		stackAnnotationRows, err := s.stacks.Annotations(ctx, schema, stackID)
		if err != nil {
			return stack.DeploymentObject{}, err
		}
		stackAnnotations := make([]Annotation, len(stackAnnotationRows))
		for i, a := range stackAnnotationRows {
			stackAnnotations[i] = Annotation{Key: a.Key, Value: a.Value}
		}
		if missing, ok := annotationsSubset(tmplAnnotations, stackAnnotations); !ok {
			return stack.DeploymentObject{}, dalerr.Wrap(dalerr.InvalidInput, "stack missing required annotation %s=%s", missing.Key, missing.Value)
		}
	}

	// Step 3: validate parameters against parameters_schema.
	compiled, err := compileSchema(tmpl.ParametersSchema)
	if err != nil {
		return stack.DeploymentObject{}, dalerr.Wrap(dalerr.Fatal, "stored parameters_schema is invalid: %v", err)
	}
	if err := compiled.Validate(toJSONValue(params)); err != nil {
		return stack.DeploymentObject{}, dalerr.Wrap(dalerr.InvalidInput, "invalid parameters: %v", err)
	}

	// Step 4: render.
	rendered, err := s.renderer.Render(tmpl.TemplateContent, params)
	if err != nil {
		return stack.DeploymentObject{}, err
	}

	// Step 5: create the deployment object plus its provenance row.
	do, err := s.stacks.SubmitDeploymentObject(ctx, schema, st.ID, rendered, tmpl.GeneratorID)
	if err != nil {
		return stack.DeploymentObject{}, err
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return stack.DeploymentObject{}, fmt.Errorf("marshaling parameters: %w", err)
	}
	if _, err := s.store.RecordRendering(ctx, conn, do.ID, tmpl.ID, tmpl.Version, paramsJSON); err != nil {
		return stack.DeploymentObject{}, err
	}

	return do, nil
}

// compileSchema parses a JSON-Schema document from its string form.
func compileSchema(schemaText string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("parameters_schema.json", strings.NewReader(schemaText)); err != nil {
		return nil, err
	}
	return compiler.Compile("parameters_schema.json")
}

// toJSONValue round-trips v through encoding/json into the
// interface{}-shaped value jsonschema.Schema.Validate expects.
func toJSONValue(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

// labelsSubset reports whether every label in required is present in have,
// returning the first missing label otherwise.
func labelsSubset(required, have []string) (string, bool) {
	set := make(map[string]struct{}, len(have))
	for _, l := range have {
		set[l] = struct{}{}
	}
	for _, l := range required {
		if _, ok := set[l]; !ok {
			return l, false
		}
	}
	return "", true
}

// annotationsSubset reports whether every (key,value) pair in required is
// present in have, returning the first missing pair otherwise.
func annotationsSubset(required, have []Annotation) (Annotation, bool) {
	set := make(map[Annotation]struct{}, len(have))
	for _, a := range have {
		set[a] = struct{}{}
	}
	for _, a := range required {
		if _, ok := set[a]; !ok {
			return a, false
		}
	}
	return Annotation{}, true
}
