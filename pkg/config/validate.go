package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// All failures are joined so a bad config reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	switch c.Provider.Type {
	case "openai", "anthropic", "ollama":
		// valid
	default:
		errs = append(errs, fmt.Errorf("provider.type must be \"openai\", \"anthropic\", or \"ollama\", got %q", c.Provider.Type))
	}

	if c.Provider.Type == "openai" && c.Provider.BaseURL == "" {
		errs = append(errs, fmt.Errorf("provider.base_url is required for provider.type \"openai\""))
	}

	if c.Provider.MaxToolTurns < 0 {
		errs = append(errs, fmt.Errorf("provider.max_tool_turns must be >= 0, got %d", c.Provider.MaxToolTurns))
	}

	switch c.Storage.Type {
	case "memory", "postgres", "none", "":
		// valid; "none" or empty runs the gateway stateless
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\", \"postgres\", or \"none\", got %q", c.Storage.Type))
	}

	if c.Storage.Type == "postgres" {
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	}

	switch c.VectorStore.Type {
	case "", "memory", "qdrant", "pgvector", "badger":
		// valid; empty disables retrieval
	default:
		errs = append(errs, fmt.Errorf("vectorstore.type must be \"memory\", \"qdrant\", \"pgvector\", or \"badger\", got %q", c.VectorStore.Type))
	}

	if c.VectorStore.Type != "" && c.VectorStore.Type != "memory" && c.VectorStore.Type != "badger" && c.VectorStore.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("vectorstore.dimensions must be > 0 for vectorstore.type %q", c.VectorStore.Type))
	}

	if c.VectorStore.Type == "qdrant" && c.VectorStore.Qdrant.URL == "" {
		errs = append(errs, fmt.Errorf("vectorstore.qdrant.url is required when vectorstore.type is \"qdrant\""))
	}

	if c.VectorStore.Type == "pgvector" {
		if c.VectorStore.Pgvector.DSN == "" && c.VectorStore.Pgvector.DSNFile == "" {
			errs = append(errs, fmt.Errorf("vectorstore.pgvector.dsn or vectorstore.pgvector.dsn_file is required when vectorstore.type is \"pgvector\""))
		}
	}

	switch c.Auth.Type {
	case "none", "apikey", "jwt":
		// valid
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type))
	}

	if c.Auth.Type == "apikey" && len(c.Auth.APIKeys) == 0 {
		errs = append(errs, fmt.Errorf("auth.api_keys must not be empty when auth.type is \"apikey\""))
	}

	if c.Auth.Type == "jwt" && c.Auth.JWT.Secret == "" && c.Auth.JWT.SecretFile == "" {
		errs = append(errs, fmt.Errorf("auth.jwt.secret or auth.jwt.secret_file is required when auth.type is \"jwt\""))
	}

	for i, s := range c.MCP.Servers {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("mcp.servers[%d].name is required", i))
		}
		if s.URL == "" {
			errs = append(errs, fmt.Errorf("mcp.servers[%d].url is required", i))
		}
		switch s.Transport {
		case "", "sse", "streamable-http":
			// valid; empty defaults to streamable-http
		default:
			errs = append(errs, fmt.Errorf("mcp.servers[%d].transport must be \"sse\" or \"streamable-http\", got %q", i, s.Transport))
		}
	}

	return errors.Join(errs...)
}
