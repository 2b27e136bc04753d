package stacktemplate

import (
	"bytes"
	"text/template"

	"github.com/brokkr-io/brokkr/internal/dalerr"
)

// Renderer turns template text plus caller-supplied parameters into YAML.
// spec §1 explicitly leaves "external templating engines" out of scope as
// a concrete choice, so this package specifies only the contract; callers
// may substitute a Tera-family engine without changing Instantiate's
// control flow.
type Renderer interface {
	Render(templateText string, params map[string]any) (string, error)
}

// TextTemplateRenderer is the default Renderer, built on stdlib
// text/template. It is sufficient for tests and for deployments that don't
// need a Tera-compatible engine.
type TextTemplateRenderer struct{}

// Render implements Renderer.
func (TextTemplateRenderer) Render(templateText string, params map[string]any) (string, error) {
	tmpl, err := template.New("stacktemplate").Option("missingkey=error").Parse(templateText)
	if err != nil {
		return "", dalerr.Wrap(dalerr.InvalidInput, "render error: %v", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, params); err != nil {
		return "", dalerr.Wrap(dalerr.InvalidInput, "render error: %v", err)
	}
	return buf.String(), nil
}

var _ Renderer = TextTemplateRenderer{}
