// Package config provides unified configuration for the conduit gateway.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (CONDUIT_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the conduit gateway.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Provider      ProviderConfig      `yaml:"provider"`
	Storage       StorageConfig       `yaml:"storage"`
	VectorStore   VectorStoreConfig   `yaml:"vectorstore"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Auth          AuthConfig          `yaml:"auth"`
	MCP           MCPConfig           `yaml:"mcp"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // default: 8080
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 300s
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
}

// ProviderConfig holds LLM backend settings.
type ProviderConfig struct {
	// Type selects the vendor mapper: "openai", "anthropic", or "ollama".
	Type string `yaml:"type"`

	BaseURL      string `yaml:"base_url"`
	APIKey       string `yaml:"api_key"`
	APIKeyFile   string `yaml:"api_key_file"` // _file variant for api_key
	DefaultModel string `yaml:"default_model"`

	// MaxToolTurns bounds the tool-calling loop. Default: 10.
	MaxToolTurns int `yaml:"max_tool_turns"`

	Timeout time.Duration `yaml:"timeout"`
	Retry   RetryConfig   `yaml:"retry"`
}

// RetryConfig holds backoff settings for provider calls.
type RetryConfig struct {
	MaxRetries      int           `yaml:"max_retries"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

// StorageConfig holds conversation store settings.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "memory" or "postgres", default: "memory"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 10000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"` // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

// VectorStoreConfig holds vector store settings for retrieval.
type VectorStoreConfig struct {
	// Type selects the backend: "memory", "qdrant", "pgvector", or "badger".
	// Empty disables retrieval.
	Type string `yaml:"type"`

	Dimensions int `yaml:"dimensions"`

	Qdrant   QdrantConfig   `yaml:"qdrant"`
	Pgvector PgvectorConfig `yaml:"pgvector"`
	Badger   BadgerConfig   `yaml:"badger"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	URL        string `yaml:"url"`
	Collection string `yaml:"collection"` // default: "conduit"
}

// PgvectorConfig holds pgvector connection settings.
type PgvectorConfig struct {
	DSN     string `yaml:"dsn"`
	DSNFile string `yaml:"dsn_file"` // _file variant for dsn
	Table   string `yaml:"table"`    // default: "documents"
}

// BadgerConfig holds Badger store settings.
type BadgerConfig struct {
	Path string `yaml:"path"` // empty means in-memory
}

// EmbeddingConfig holds embedding backend settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend: "openai" or "ollama".
	// Empty reuses the chat provider type when compatible.
	Provider string `yaml:"provider"`

	Model     string `yaml:"model"`
	BatchSize int    `yaml:"batch_size"` // default: 64
	Workers   int    `yaml:"workers"`    // default: 4
	Normalize bool   `yaml:"normalize"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// Type is "none", "apikey", or "jwt". Default: "none".
	Type string `yaml:"type"`

	APIKeys []APIKeyConfig `yaml:"api_keys"`
	JWT     JWTConfig      `yaml:"jwt"`

	RateLimits map[string]RateLimitConfig `yaml:"rate_limits"` // keyed by tier
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key         string `yaml:"key"`
	KeyFile     string `yaml:"key_file"` // _file variant for key
	Subject     string `yaml:"subject"`
	TenantID    string `yaml:"tenant_id"`
	ServiceTier string `yaml:"service_tier"`
}

// JWTConfig holds HMAC JWT validation settings.
type JWTConfig struct {
	Secret     string `yaml:"secret"`
	SecretFile string `yaml:"secret_file"` // _file variant for secret
	Issuer     string `yaml:"issuer"`
	Audience   string `yaml:"audience"`
}

// RateLimitConfig holds per-tier rate limit settings.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// MCPConfig holds MCP (Model Context Protocol) server settings.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes a single MCP server connection.
type MCPServerConfig struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"` // "sse" or "streamable-http"
	URL       string            `yaml:"url"`
	Headers   map[string]string `yaml:"headers"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 300 * time.Second,
			MaxBodyBytes: 10 << 20,
		},
		Provider: ProviderConfig{
			Type:         "openai",
			MaxToolTurns: 10,
			Retry: RetryConfig{
				MaxRetries:      3,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     10 * time.Second,
			},
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		VectorStore: VectorStoreConfig{
			Qdrant: QdrantConfig{
				Collection: "conduit",
			},
			Pgvector: PgvectorConfig{
				Table: "documents",
			},
		},
		Embedding: EmbeddingConfig{
			BatchSize: 64,
			Workers:   4,
			Normalize: true,
		},
		Auth: AuthConfig{
			Type: "none",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}
