package stacktemplate

import "testing"

func TestLabelsSubset(t *testing.T) {
	tests := []struct {
		name        string
		required    []string
		have        []string
		wantOK      bool
		wantMissing string
	}{
		{"empty required always matches", nil, []string{"env-prod"}, true, ""},
		{"required subset of have", []string{"env-prod"}, []string{"env-prod", "team-a"}, true, ""},
		{"required exactly equals have", []string{"env-prod"}, []string{"env-prod"}, true, ""},
		{"missing required label", []string{"env-prod"}, []string{"env-stage"}, false, "env-prod"},
		{"have is empty", []string{"env-prod"}, nil, false, "env-prod"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			missing, ok := labelsSubset(tt.required, tt.have)
			if ok != tt.wantOK {
				t.Errorf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok && missing != tt.wantMissing {
				t.Errorf("missing = %q, want %q", missing, tt.wantMissing)
			}
		})
	}
}

func TestAnnotationsSubset(t *testing.T) {
	required := []Annotation{{Key: "env", Value: "prod"}}

	t.Run("present", func(t *testing.T) {
		have := []Annotation{{Key: "env", Value: "prod"}, {Key: "team", Value: "platform"}}
		if _, ok := annotationsSubset(required, have); !ok {
			t.Error("annotationsSubset() should be true when the required pair is present")
		}
	})

	t.Run("wrong value", func(t *testing.T) {
		have := []Annotation{{Key: "env", Value: "stage"}}
		missing, ok := annotationsSubset(required, have)
		if ok {
			t.Error("annotationsSubset() should be false when the value differs")
		}
		if missing != required[0] {
			t.Errorf("missing = %+v, want %+v", missing, required[0])
		}
	})

	t.Run("no requirements matches anything", func(t *testing.T) {
		if _, ok := annotationsSubset(nil, nil); !ok {
			t.Error("annotationsSubset(nil, nil) should be true")
		}
	})
}

func TestCompileSchema(t *testing.T) {
	t.Run("valid schema", func(t *testing.T) {
		schema := `{"type":"object","required":["replicas"],"properties":{"replicas":{"type":"integer"}}}`
		if _, err := compileSchema(schema); err != nil {
			t.Fatalf("compileSchema() error = %v", err)
		}
	})

	t.Run("invalid schema document", func(t *testing.T) {
		if _, err := compileSchema(`{not json`); err == nil {
			t.Error("compileSchema() on malformed JSON should fail")
		}
	})
}

func TestCompileSchema_ValidatesParameters(t *testing.T) {
	schema := `{"type":"object","required":["replicas"],"properties":{"replicas":{"type":"integer","minimum":1}}}`
	compiled, err := compileSchema(schema)
	if err != nil {
		t.Fatalf("compileSchema() error = %v", err)
	}

	if err := compiled.Validate(toJSONValue(map[string]any{"replicas": 3})); err != nil {
		t.Errorf("Validate() on a conforming value should pass, got %v", err)
	}
	if err := compiled.Validate(toJSONValue(map[string]any{"replicas": 0})); err == nil {
		t.Error("Validate() should fail when replicas is below the schema minimum")
	}
	if err := compiled.Validate(toJSONValue(map[string]any{})); err == nil {
		t.Error("Validate() should fail when a required field is missing")
	}
}

func TestToJSONValue(t *testing.T) {
	got := toJSONValue(map[string]any{"replicas": 3})
	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("toJSONValue() = %T, want map[string]any", got)
	}
	// JSON numbers decode as float64, not int, which is exactly why
	// instantiate round-trips params through this before validating.
	if _, ok := m["replicas"].(float64); !ok {
		t.Errorf("replicas = %T, want float64", m["replicas"])
	}
}
