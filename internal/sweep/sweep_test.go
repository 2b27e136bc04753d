package sweep

import (
	"testing"
	"time"
)

func TestConfig_WithDefaults_FillsZeroValues(t *testing.T) {
	got := Config{}.withDefaults()

	want := Config{
		WorkOrderClaimRecoveryInterval: defaultClaimRecoveryInterval,
		WebhookClaimRecoveryInterval:   defaultClaimRecoveryInterval,
		RetentionSweepInterval:         defaultRetentionInterval,
		AgentDegradedSweepInterval:     defaultDegradedInterval,
		AgentDegradedThreshold:         defaultAgentDegradedThreshold,
		DiagnosticRetention:            defaultDiagnosticRetention,
		WebhookRetention:               defaultWebhookRetention,
		AuditRetention:                 defaultAuditRetention,
		AgentEventRetention:            defaultAgentEventRetention,
	}

	if got != want {
		t.Errorf("withDefaults() = %+v, want %+v", got, want)
	}
}

func TestConfig_WithDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := Config{
		Schema:                         "tenant_acme",
		WorkOrderClaimRecoveryInterval: 5 * time.Second,
		AgentDegradedThreshold:         90 * time.Second,
		WorkOrderLogRetention:          24 * time.Hour,
	}

	got := cfg.withDefaults()

	if got.Schema != "tenant_acme" {
		t.Errorf("Schema = %q, want %q", got.Schema, "tenant_acme")
	}
	if got.WorkOrderClaimRecoveryInterval != 5*time.Second {
		t.Errorf("WorkOrderClaimRecoveryInterval = %v, want 5s", got.WorkOrderClaimRecoveryInterval)
	}
	if got.AgentDegradedThreshold != 90*time.Second {
		t.Errorf("AgentDegradedThreshold = %v, want 90s", got.AgentDegradedThreshold)
	}
	// Explicit zero for WorkOrderLogRetention ("kept indefinitely") is a
	// default too, so this only checks the explicitly-set non-default field.
	if got.WorkOrderLogRetention != 24*time.Hour {
		t.Errorf("WorkOrderLogRetention = %v, want 24h", got.WorkOrderLogRetention)
	}
}
