package webhook

import "testing"

func TestDelivery_IsAgentDelivered(t *testing.T) {
	tests := []struct {
		name         string
		targetLabels []string
		want         bool
	}{
		{"no target labels is broker delivery", nil, false},
		{"empty target labels is broker delivery", []string{}, false},
		{"any target label is agent delivery", []string{"env-prod"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Delivery{TargetLabels: tt.targetLabels}
			if got := d.IsAgentDelivered(); got != tt.want {
				t.Errorf("IsAgentDelivered() = %v, want %v", got, tt.want)
			}
		})
	}
}
