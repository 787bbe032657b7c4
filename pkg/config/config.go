package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the relay system, loaded from a
// YAML file with environment overrides applied in main.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Webhooks  WebhooksConfig  `yaml:"webhooks"`
	Queue     QueueConfig     `yaml:"queue"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Agent     AgentConfig     `yaml:"agent"`
	Engine    EngineConfig    `yaml:"engine"`
	Tokens    TokensConfig    `yaml:"tokens"`
	Providers ProvidersConfig `yaml:"providers"`
	Events    EventsConfig    `yaml:"events"`
	Activity  ActivityConfig  `yaml:"activity"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig configures the HTTP ingress server.
type ServerConfig struct {
	HTTPPort     int           `yaml:"http_port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// WebhooksConfig configures inbound webhook handling. A provider with an
// empty secret has signature validation disabled — a deliberate operator
// opt-out, logged loudly at startup.
type WebhooksConfig struct {
	Secrets       map[string]string `yaml:"secrets"` // keyed by provider name
	TriggerPrefix string            `yaml:"trigger_prefix"`
	Commands      []CommandConfig   `yaml:"commands"`
	DeniedSenders []string          `yaml:"denied_senders"`

	// SlackReplayWindow bounds |now - request timestamp| for Slack
	// signatures. Requests outside the window are rejected.
	SlackReplayWindow time.Duration `yaml:"slack_replay_window"`
}

// CommandConfig declares one allowed command word, its aliases, and the
// priority tasks created from it receive.
type CommandConfig struct {
	Name     string   `yaml:"name"`
	Aliases  []string `yaml:"aliases"`
	Priority int      `yaml:"priority"`
}

// QueueConfig selects and tunes the task queue backing store.
type QueueConfig struct {
	// Backend is "memory" or "redis".
	Backend        string        `yaml:"backend"`
	RedisURL       string        `yaml:"redis_url"`
	Key            string        `yaml:"key"`
	DequeueTimeout time.Duration `yaml:"dequeue_timeout"`
}

// LedgerConfig tunes the posted-content ledger used for loop prevention.
type LedgerConfig struct {
	Backend  string        `yaml:"backend"` // "memory" or "redis"
	RedisURL string        `yaml:"redis_url"`
	TTL      time.Duration `yaml:"ttl"`
}

// AgentConfig configures the external agent binary.
type AgentConfig struct {
	Binary       string        `yaml:"binary"`
	Model        string        `yaml:"model"`
	AllowedTools []string      `yaml:"allowed_tools"`
	Timeout      time.Duration `yaml:"timeout"`
	WorkdirRoot  string        `yaml:"workdir_root"`
}

// EngineConfig configures the worker pool.
type EngineConfig struct {
	NumWorkers int `yaml:"num_workers"`
}

// TokensConfig configures the token service used for outbound provider
// calls. Static tokens serve dev/single-tenant setups; the GitHub App key
// enables installation-token minting.
type TokensConfig struct {
	ServiceURL       string            `yaml:"service_url"`
	Static           map[string]string `yaml:"static"` // keyed by provider name
	GitHubAppID      string            `yaml:"github_app_id"`
	GitHubPrivateKey string            `yaml:"github_private_key"`
}

// ProvidersConfig carries outbound API base URLs, overridable for tests.
type ProvidersConfig struct {
	GitHubBaseURL string `yaml:"github_base_url"`
	JiraBaseURL   string `yaml:"jira_base_url"`
	SlackBaseURL  string `yaml:"slack_base_url"`
	SentryBaseURL string `yaml:"sentry_base_url"`
}

// EventsConfig configures the NATS observability event bus. Empty URL
// disables publishing.
type EventsConfig struct {
	NATSURL    string `yaml:"nats_url"`
	StreamName string `yaml:"stream_name"`
}

// ActivityConfig configures the Postgres task activity log. Empty DSN
// disables it.
type ActivityConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
}

// TelemetryConfig configures OTLP trace export. Empty endpoint disables it.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// DefaultConfig returns a configuration that runs with zero external
// infrastructure: in-memory queue and ledger, no NATS, no Postgres.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:     8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Webhooks: WebhooksConfig{
			Secrets:       map[string]string{},
			TriggerPrefix: "@agent",
			Commands: []CommandConfig{
				{Name: "fix", Aliases: []string{"implement", "execute"}, Priority: 0},
				{Name: "review", Aliases: []string{"code-review", "review-pr"}, Priority: 1},
				{Name: "plan", Aliases: []string{"plan-fix", "create-plan"}, Priority: 2},
				{Name: "analyze", Aliases: []string{"analysis"}, Priority: 2},
			},
			DeniedSenders:     []string{},
			SlackReplayWindow: 5 * time.Minute,
		},
		Queue: QueueConfig{
			Backend:        "memory",
			Key:            "relay:tasks",
			DequeueTimeout: 5 * time.Second,
		},
		Ledger: LedgerConfig{
			Backend: "memory",
			TTL:     time.Hour,
		},
		Agent: AgentConfig{
			Binary:      "claude",
			Timeout:     time.Hour,
			WorkdirRoot: "data/tasks",
		},
		Engine: EngineConfig{
			NumWorkers: 3,
		},
		Providers: ProvidersConfig{
			GitHubBaseURL: "https://api.github.com",
			SlackBaseURL:  "https://slack.com/api",
		},
		Events: EventsConfig{
			StreamName: "RELAY",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "relay",
		},
	}
}

// LoadConfigFromFile reads the YAML config at path, layered over defaults.
func LoadConfigFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints that YAML parsing can't express.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port %d", c.Server.HTTPPort)
	}
	if c.Engine.NumWorkers <= 0 {
		return fmt.Errorf("num_workers must be positive, got %d", c.Engine.NumWorkers)
	}
	switch c.Queue.Backend {
	case "memory":
	case "redis":
		if c.Queue.RedisURL == "" {
			return fmt.Errorf("queue backend is redis but redis_url is empty")
		}
	default:
		return fmt.Errorf("unknown queue backend %q", c.Queue.Backend)
	}
	switch c.Ledger.Backend {
	case "memory":
	case "redis":
		if c.Ledger.RedisURL == "" {
			return fmt.Errorf("ledger backend is redis but redis_url is empty")
		}
	default:
		return fmt.Errorf("unknown ledger backend %q", c.Ledger.Backend)
	}
	if c.Queue.DequeueTimeout <= 0 {
		return fmt.Errorf("dequeue_timeout must be positive")
	}
	if c.Webhooks.TriggerPrefix == "" {
		return fmt.Errorf("trigger_prefix must not be empty")
	}
	if len(c.Webhooks.Commands) == 0 {
		return fmt.Errorf("at least one webhook command must be configured")
	}
	return nil
}
