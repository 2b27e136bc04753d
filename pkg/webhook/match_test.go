package webhook

import "testing"

func TestPatternMatches(t *testing.T) {
	tests := []struct {
		pattern   string
		eventType string
		want      bool
	}{
		{"deployment.applied", "deployment.applied", true},
		{"deployment.applied", "deployment.failed", false},
		{"deployment.*", "deployment.applied", true},
		{"deployment.*", "deployment.failed", true},
		{"deployment.*", "deployment", true},
		{"deployment.*", "workorder.completed", false},
		{"*", "anything.goes", true},
		{"*", "", true},
		{"workorder.*", "workorder.completed.extra", true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.eventType, func(t *testing.T) {
			got := PatternMatches(tt.pattern, tt.eventType)
			if got != tt.want {
				t.Errorf("PatternMatches(%q, %q) = %v, want %v", tt.pattern, tt.eventType, got, tt.want)
			}
		})
	}
}

func TestAnyPatternMatches(t *testing.T) {
	patterns := []string{"agent.registered", "health.*"}

	tests := []struct {
		eventType string
		want      bool
	}{
		{"agent.registered", true},
		{"health.degraded", true},
		{"health.recovered", true},
		{"workorder.completed", false},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			got := AnyPatternMatches(patterns, tt.eventType)
			if got != tt.want {
				t.Errorf("AnyPatternMatches(%v, %q) = %v, want %v", patterns, tt.eventType, got, tt.want)
			}
		})
	}
}

func TestAnyPatternMatches_EmptyPatterns(t *testing.T) {
	if AnyPatternMatches(nil, "deployment.applied") {
		t.Error("AnyPatternMatches(nil, ...) should be false")
	}
}
