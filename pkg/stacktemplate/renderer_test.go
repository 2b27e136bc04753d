package stacktemplate

import "testing"

func TestTextTemplateRenderer_Render(t *testing.T) {
	r := TextTemplateRenderer{}

	yaml, err := r.Render(
		"apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: {{.name}}\ndata:\n  replicas: \"{{.replicas}}\"\n",
		map[string]any{"name": "cm1", "replicas": 3},
	)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	want := "apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: cm1\ndata:\n  replicas: \"3\"\n"
	if yaml != want {
		t.Errorf("Render() = %q, want %q", yaml, want)
	}
}

func TestTextTemplateRenderer_MissingParameterFails(t *testing.T) {
	r := TextTemplateRenderer{}
	_, err := r.Render("name: {{.name}}", map[string]any{})
	if err == nil {
		t.Error("Render() with a missing required parameter should fail")
	}
}

func TestTextTemplateRenderer_SyntaxErrorFails(t *testing.T) {
	r := TextTemplateRenderer{}
	_, err := r.Render("name: {{.name", map[string]any{"name": "x"})
	if err == nil {
		t.Error("Render() with malformed template syntax should fail")
	}
}
