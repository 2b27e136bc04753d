package webhook

import (
	"encoding/json"
	"testing"
)

func TestFiltersMatch(t *testing.T) {
	tests := []struct {
		name    string
		filters string
		event   string
		want    bool
	}{
		{
			name:    "no filters matches anything",
			filters: ``,
			event:   `{"agent_id":"a1"}`,
			want:    true,
		},
		{
			name:    "empty object filters matches anything",
			filters: `{}`,
			event:   `{"agent_id":"a1"}`,
			want:    true,
		},
		{
			name:    "matching single key",
			filters: `{"agent_id":"a1"}`,
			event:   `{"agent_id":"a1","stack_id":"s1"}`,
			want:    true,
		},
		{
			name:    "mismatched value",
			filters: `{"agent_id":"a1"}`,
			event:   `{"agent_id":"a2"}`,
			want:    false,
		},
		{
			name:    "missing key in event",
			filters: `{"agent_id":"a1"}`,
			event:   `{"stack_id":"s1"}`,
			want:    false,
		},
		{
			name:    "multiple keys all must match",
			filters: `{"agent_id":"a1","stack_id":"s1"}`,
			event:   `{"agent_id":"a1","stack_id":"s1"}`,
			want:    true,
		},
		{
			name:    "multiple keys one mismatches",
			filters: `{"agent_id":"a1","stack_id":"s1"}`,
			event:   `{"agent_id":"a1","stack_id":"s2"}`,
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var filters json.RawMessage
			if tt.filters != "" {
				filters = json.RawMessage(tt.filters)
			}
			got := filtersMatch(filters, json.RawMessage(tt.event))
			if got != tt.want {
				t.Errorf("filtersMatch(%q, %q) = %v, want %v", tt.filters, tt.event, got, tt.want)
			}
		})
	}
}
