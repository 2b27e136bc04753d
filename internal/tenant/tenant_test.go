package tenant

import "testing"

func TestValidateSchemaName(t *testing.T) {
	tests := []struct {
		name    string
		schema  string
		wantErr bool
	}{
		{"empty is allowed (single-tenant)", "", false},
		{"simple identifier", "tenant_acme", false},
		{"starts with underscore", "_acme", true},
		{"starts with digit", "1acme", true},
		{"contains dash", "tenant-acme", true},
		{"contains space", "tenant acme", true},
		{"sql injection attempt", "public; DROP TABLE users;--", true},
		{"quote injection attempt", "public'; SELECT 1--", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSchemaName(tt.schema)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSchemaName(%q) error = %v, wantErr %v", tt.schema, err, tt.wantErr)
			}
		})
	}
}
