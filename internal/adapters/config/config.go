package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config represents application configuration
type Config struct {
	Agent         AgentConfig         `envconfig:"AGENT"`
	Generator     GeneratorConfig     `envconfig:"GENERATOR"`
	Sandbox       SandboxConfig       `envconfig:"SANDBOX"`
	Store         StoreConfig         `envconfig:"STORE"`
	RAG           RAGConfig           `envconfig:"RAG"`
	Signer        SignerConfig        `envconfig:"SIGNER"`
	Chain         ChainConfig         `envconfig:"CHAIN"`
	Social        SocialConfig        `envconfig:"SOCIAL"`
	Notifications NotificationsConfig `envconfig:"NOTIFICATIONS"`
	Redis         RedisConfig         `envconfig:"REDIS"`
	ClickHouse    ClickHouseConfig    `envconfig:"CLICKHOUSE"`
	Logging       LoggingConfig       `envconfig:"LOGGING"`
}

// AgentConfig represents per-agent driver parameters
type AgentConfig struct {
	PacingInterval   time.Duration `envconfig:"AGENT_PACING_INTERVAL" default:"15s"`
	ResearchAttempts int           `envconfig:"AGENT_RESEARCH_ATTEMPTS" default:"3"`
	StrategyAttempts int           `envconfig:"AGENT_STRATEGY_ATTEMPTS" default:"3"`
	CodeAttempts     int           `envconfig:"AGENT_CODE_ATTEMPTS" default:"5"`
	SessionConfigURL string        `envconfig:"AGENT_SESSION_CONFIG_URL" required:"false"`
	Instruments      []string      `envconfig:"AGENT_INSTRUMENTS" default:"spot"`
	Assisted         bool          `envconfig:"AGENT_ASSISTED" default:"true"`
}

// GeneratorConfig represents language model backend configuration
type GeneratorConfig struct {
	BaseURL           string `envconfig:"GENERATOR_BASE_URL" required:"false"`
	APIKey            string `envconfig:"GENERATOR_API_KEY" required:"false"`
	Model             string `envconfig:"GENERATOR_MODEL" default:"gpt-4o"`
	Streaming         bool   `envconfig:"GENERATOR_STREAMING" default:"false"`
	ThinkingDelimiter string `envconfig:"GENERATOR_THINKING_DELIMITER" default:""`
	EmbeddingAPIKey   string `envconfig:"GENERATOR_EMBEDDING_API_KEY" required:"false"`
}

// SandboxConfig represents code execution container parameters
type SandboxConfig struct {
	ContainerName string        `envconfig:"SANDBOX_CONTAINER_NAME" default:"agent-executor"`
	Image         string        `envconfig:"SANDBOX_IMAGE" default:"superagent/executor:latest"`
	CacheDir      string        `envconfig:"SANDBOX_CACHE_DIR" default:"./code_cache"`
	Timeout       time.Duration `envconfig:"SANDBOX_TIMEOUT" default:"150s"`
}

// StoreConfig represents outcome store backend selection. Postgres wins when
// a DSN is configured; otherwise the HTTP backend when a URL is set;
// otherwise in-memory.
type StoreConfig struct {
	Host     string `envconfig:"DB_HOST" required:"false"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"superagent"`
	User     string `envconfig:"DB_USER" required:"false"`
	Password string `envconfig:"DB_PASSWORD" required:"false"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`

	HTTPBaseURL string `envconfig:"STORE_HTTP_BASE_URL" required:"false"`
	HTTPAPIKey  string `envconfig:"STORE_HTTP_API_KEY" required:"false"`
}

// RAGConfig represents semantic index parameters
type RAGConfig struct {
	DataDir string `envconfig:"RAG_DATA_DIR" default:"./rag_data"`
	TopK    int    `envconfig:"RAG_TOP_K" default:"1"`
}

// SignerConfig represents the transaction signer service
type SignerConfig struct {
	URL string `envconfig:"SIGNER_URL" default:"http://localhost:9009"`
}

// ChainConfig represents on-chain read access for the wallet sensor
type ChainConfig struct {
	RPCURL        string `envconfig:"CHAIN_RPC_URL" required:"false"`
	IndexerURL    string `envconfig:"CHAIN_INDEXER_URL" default:"https://api.etherscan.io/api"`
	IndexerAPIKey string `envconfig:"CHAIN_INDEXER_API_KEY" required:"false"`
	OracleURL     string `envconfig:"CHAIN_ORACLE_URL" default:"https://api.coingecko.com/api/v3"`
}

// SocialConfig represents the social platform API for marketing sensors
type SocialConfig struct {
	BearerToken string `envconfig:"SOCIAL_BEARER_TOKEN" required:"false"`
	Username    string `envconfig:"SOCIAL_USERNAME" required:"false"`
}

// NotificationsConfig represents the scraper notification service
type NotificationsConfig struct {
	BaseURL string `envconfig:"NOTIFICATIONS_BASE_URL" required:"false"`
	APIKey  string `envconfig:"NOTIFICATIONS_API_KEY" required:"false"`
}

// RedisConfig represents Redis used for distributed session locks
type RedisConfig struct {
	Enabled  bool   `envconfig:"REDIS_ENABLED" default:"false"`
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" required:"false"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// ClickHouseConfig represents the metrics sink
type ClickHouseConfig struct {
	Enabled bool   `envconfig:"CLICKHOUSE_ENABLED" default:"false"`
	DSN     string `envconfig:"CLICKHOUSE_DSN" default:"clickhouse://localhost:9000/superagent"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
	File  string `envconfig:"LOG_FILE" required:"false"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Agent.PacingInterval <= 0 {
		return fmt.Errorf("pacing interval must be positive")
	}
	if c.Agent.StrategyAttempts < 1 || c.Agent.ResearchAttempts < 1 || c.Agent.CodeAttempts < 1 {
		return fmt.Errorf("stage attempt budgets must be at least 1")
	}
	if c.Sandbox.Timeout <= 0 {
		return fmt.Errorf("sandbox timeout must be positive")
	}
	if c.Sandbox.ContainerName == "" {
		return fmt.Errorf("sandbox container name is required")
	}
	for _, inst := range c.Agent.Instruments {
		switch inst {
		case "spot", "futures", "options", "defi":
		default:
			return fmt.Errorf("unknown instrument: %s", inst)
		}
	}
	return nil
}

// GetDSN returns PostgreSQL connection string, or "" when Postgres is not
// configured
func (c *StoreConfig) GetDSN() string {
	if c.Host == "" || c.User == "" {
		return ""
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}
