// Package config loads broker and agent configuration from the environment
// using the double-underscore namespacing convention required by §6 of the
// specification (e.g. DATABASE__URL, AGENT__POLLING_INTERVAL).
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// BrokerConfig configures the broker process (api and worker modes).
type BrokerConfig struct {
	Mode string `env:"MODE" envDefault:"api"` // api | worker

	DatabaseURL            string `env:"DATABASE__URL,required"`
	DatabaseSchema         string `env:"DATABASE__SCHEMA"`
	DatabaseMaxConnections int32  `env:"DATABASE__MAX_CONNECTIONS" envDefault:"10"`

	RedisURL string `env:"REDIS__URL"`

	BrokerBind                string   `env:"BROKER__BIND" envDefault:":8080"`
	BrokerCORSAllowedOrigins  []string `env:"BROKER__CORS__ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	MetricsPath              string   `env:"BROKER__METRICS_PATH" envDefault:"/metrics"`

	LogFormat string `env:"LOG__FORMAT" envDefault:"json"`
	LogLevel  string `env:"LOG__LEVEL" envDefault:"info"`

	MigrationsGlobalDir string `env:"MIGRATIONS__GLOBAL_DIR" envDefault:"migrations/global"`
	MigrationsTenantDir string `env:"MIGRATIONS__TENANT_DIR" envDefault:"migrations/tenant"`

	// EncryptionKey seals webhook URLs/auth headers (internal/credential.Sealer).
	// CredentialPepper is mixed into PAK hashes (internal/credential.Store) —
	// kept distinct from EncryptionKey so compromising one secret doesn't also
	// unseal the other.
	EncryptionKey    string `env:"ENCRYPTION__KEY,required"`
	CredentialPepper string `env:"CREDENTIAL__PEPPER,required"`

	WebhooksRetention   time.Duration `env:"WEBHOOKS__RETENTION" envDefault:"168h"`
	WorkOrdersRetention time.Duration `env:"WORK_ORDERS__RETENTION" envDefault:"0"`
	AuditRetention      time.Duration `env:"AUDIT__RETENTION" envDefault:"2160h"`
	AgentEventRetention time.Duration `env:"AGENT_EVENTS__RETENTION" envDefault:"720h"`

	AgentDegradedAfter time.Duration `env:"AGENT__DEGRADED_AFTER" envDefault:"5m"`

	SweepInterval time.Duration `env:"SWEEP__INTERVAL" envDefault:"30s"`
}

// ListenAddr returns the address the broker HTTP server should bind to.
func (c BrokerConfig) ListenAddr() string { return c.BrokerBind }

// AgentConfig configures the per-cluster agent process.
type AgentConfig struct {
	BrokerURL      string `env:"AGENT__BROKER_URL,required"`
	PAK            string `env:"AGENT__PAK,required"`
	AgentID        string `env:"AGENT__AGENT_ID,required"`
	AgentName      string `env:"AGENT__AGENT_NAME,required"`
	ClusterName    string `env:"AGENT__CLUSTER_NAME,required"`
	KubeconfigPath string `env:"AGENT__KUBECONFIG_PATH"`

	PollingInterval             time.Duration `env:"AGENT__POLLING_INTERVAL" envDefault:"30s"`
	DeploymentHealthEnabled     bool          `env:"AGENT__DEPLOYMENT_HEALTH_ENABLED" envDefault:"true"`
	DeploymentHealthInterval    time.Duration `env:"AGENT__DEPLOYMENT_HEALTH_INTERVAL" envDefault:"60s"`
	WorkOrderPollingInterval    time.Duration `env:"AGENT__WORK_ORDER_POLLING_INTERVAL" envDefault:"15s"`
	WebhookPollingInterval      time.Duration `env:"AGENT__WEBHOOK_POLLING_INTERVAL" envDefault:"15s"`
	DiagnosticPollingInterval   time.Duration `env:"AGENT__DIAGNOSTIC_POLLING_INTERVAL" envDefault:"15s"`

	LogFormat string `env:"LOG__FORMAT" envDefault:"json"`
	LogLevel  string `env:"LOG__LEVEL" envDefault:"info"`

	MetricsBind string `env:"AGENT__METRICS_BIND" envDefault:":9090"`
}

// Load parses environment variables into T using the caarlos0/env struct
// tags defined on the concrete config type.
func Load[T any]() (T, error) {
	var cfg T
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}
