package config

import "testing"

func TestLoadBrokerConfig_Defaults(t *testing.T) {
	t.Setenv("DATABASE__URL", "postgres://localhost/brokkr")
	t.Setenv("ENCRYPTION__KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("CREDENTIAL__PEPPER", "pepper")

	cfg, err := Load[BrokerConfig]()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"mode", cfg.Mode, "api"},
		{"bind", cfg.BrokerBind, ":8080"},
		{"listen addr", cfg.ListenAddr(), ":8080"},
		{"metrics path", cfg.MetricsPath, "/metrics"},
		{"log format", cfg.LogFormat, "json"},
		{"log level", cfg.LogLevel, "info"},
		{"db max connections", cfg.DatabaseMaxConnections, int32(10)},
		{"audit retention", cfg.AuditRetention.String(), "2160h0m0s"},
		{"agent degraded after", cfg.AgentDegradedAfter.String(), "5m0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestLoadBrokerConfig_MissingRequired(t *testing.T) {
	if _, err := Load[BrokerConfig](); err == nil {
		t.Error("Load() should fail without required database.url/encryption.key/credential.pepper")
	}
}

func TestLoadBrokerConfig_CORSOrigins(t *testing.T) {
	t.Setenv("DATABASE__URL", "postgres://localhost/brokkr")
	t.Setenv("ENCRYPTION__KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("CREDENTIAL__PEPPER", "pepper")
	t.Setenv("BROKER__CORS__ALLOWED_ORIGINS", "https://a.example.com,https://b.example.com")

	cfg, err := Load[BrokerConfig]()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	want := []string{"https://a.example.com", "https://b.example.com"}
	if len(cfg.BrokerCORSAllowedOrigins) != len(want) {
		t.Fatalf("origins = %v, want %v", cfg.BrokerCORSAllowedOrigins, want)
	}
	for i, o := range want {
		if cfg.BrokerCORSAllowedOrigins[i] != o {
			t.Errorf("origins[%d] = %q, want %q", i, cfg.BrokerCORSAllowedOrigins[i], o)
		}
	}
}

func TestLoadAgentConfig_Defaults(t *testing.T) {
	t.Setenv("AGENT__BROKER_URL", "https://broker.example.com")
	t.Setenv("AGENT__PAK", "brokkr_abc_def")
	t.Setenv("AGENT__AGENT_ID", "11111111-1111-1111-1111-111111111111")
	t.Setenv("AGENT__AGENT_NAME", "a1")
	t.Setenv("AGENT__CLUSTER_NAME", "c1")

	cfg, err := Load[AgentConfig]()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.PollingInterval.String() != "30s" {
		t.Errorf("PollingInterval = %v, want 30s", cfg.PollingInterval)
	}
	if !cfg.DeploymentHealthEnabled {
		t.Error("DeploymentHealthEnabled should default true")
	}
	if cfg.DeploymentHealthInterval.String() != "1m0s" {
		t.Errorf("DeploymentHealthInterval = %v, want 1m0s", cfg.DeploymentHealthInterval)
	}
	if cfg.MetricsBind != ":9090" {
		t.Errorf("MetricsBind = %q, want :9090", cfg.MetricsBind)
	}
}

func TestLoadAgentConfig_MissingRequired(t *testing.T) {
	if _, err := Load[AgentConfig](); err == nil {
		t.Error("Load() should fail without required agent.* fields")
	}
}
