package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openconduit/conduit/pkg/auth"
	"github.com/openconduit/conduit/pkg/auth/apikey"
	"github.com/openconduit/conduit/pkg/auth/jwt"
	"github.com/openconduit/conduit/pkg/auth/noop"
	"github.com/openconduit/conduit/pkg/config"
	"github.com/openconduit/conduit/pkg/embedding"
	"github.com/openconduit/conduit/pkg/provider"
	"github.com/openconduit/conduit/pkg/provider/anthropic"
	"github.com/openconduit/conduit/pkg/provider/ollama"
	"github.com/openconduit/conduit/pkg/provider/openaicompat"
	"github.com/openconduit/conduit/pkg/retry"
	"github.com/openconduit/conduit/pkg/storage/memory"
	"github.com/openconduit/conduit/pkg/storage/postgres"
	"github.com/openconduit/conduit/pkg/tools"
	"github.com/openconduit/conduit/pkg/tools/builtins/retrieval"
	"github.com/openconduit/conduit/pkg/tools/mcp"
	"github.com/openconduit/conduit/pkg/transport"
	"github.com/openconduit/conduit/pkg/vectorstore"
)

func retryConfig(cfg config.RetryConfig) retry.Config {
	return retry.Config{
		MaxRetries:      cfg.MaxRetries,
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     cfg.MaxInterval,
	}
}

func buildProvider(cfg config.ProviderConfig) (provider.Provider, error) {
	switch cfg.Type {
	case "openai":
		return openaicompat.NewClient(openaicompat.Options{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
			Retry:   retryConfig(cfg.Retry),
		}), nil
	case "anthropic":
		return anthropic.NewClient(anthropic.Options{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
			Retry:   retryConfig(cfg.Retry),
		}), nil
	case "ollama":
		return ollama.NewClient(ollama.Options{
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
			Retry:   retryConfig(cfg.Retry),
		}), nil
	}
	return nil, fmt.Errorf("unknown provider type %q", cfg.Type)
}

func buildStorage(ctx context.Context, cfg config.StorageConfig) (transport.ConversationStore, error) {
	switch cfg.Type {
	case "memory":
		slog.Info("storage enabled", "type", "memory", "max_size", cfg.MaxSize)
		return memory.New(cfg.MaxSize), nil
	case "postgres":
		store, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("storage enabled", "type", "postgres")
		return store, nil
	case "none", "":
		slog.Info("storage disabled")
		return nil, nil
	}
	return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
}

// buildEmbedder creates the embedding client. An empty embedding provider
// reuses the chat provider when its API also serves embeddings; Anthropic
// has no embeddings endpoint, so an explicit embedding provider is
// required there.
func buildEmbedder(cfg config.EmbeddingConfig, prov config.ProviderConfig) (embedding.Embedder, error) {
	embProvider := cfg.Provider
	if embProvider == "" {
		switch prov.Type {
		case "openai", "ollama":
			embProvider = prov.Type
		default:
			return nil, nil
		}
	}
	if cfg.Model == "" {
		return nil, nil
	}

	var inner embedding.Embedder
	switch embProvider {
	case "openai":
		client := openaicompat.NewClient(openaicompat.Options{
			BaseURL: prov.BaseURL,
			APIKey:  prov.APIKey,
			Timeout: prov.Timeout,
			Retry:   retryConfig(prov.Retry),
		})
		inner = embedding.NewOpenAI(client, cfg.Model)
	case "ollama":
		baseURL := ""
		if prov.Type == "ollama" {
			baseURL = prov.BaseURL
		}
		client := ollama.NewClient(ollama.Options{
			BaseURL: baseURL,
			Timeout: prov.Timeout,
			Retry:   retryConfig(prov.Retry),
		})
		inner = embedding.NewOllama(client, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", embProvider)
	}

	if cfg.Normalize {
		inner = embedding.Normalized{Inner: inner}
	}

	batcher, err := embedding.NewBatcher(inner, cfg.BatchSize, cfg.Workers)
	if err != nil {
		return nil, err
	}
	slog.Info("embeddings enabled", "provider", embProvider, "model", cfg.Model)
	return batcher, nil
}

func buildVectorStore(ctx context.Context, cfg config.VectorStoreConfig) (vectorstore.Store, error) {
	switch cfg.Type {
	case "memory":
		return vectorstore.NewMemory(), nil
	case "qdrant":
		return vectorstore.NewQdrant(cfg.Qdrant.URL, cfg.Qdrant.Collection, cfg.Dimensions), nil
	case "pgvector":
		return vectorstore.NewPgvector(ctx, vectorstore.PgvectorConfig{
			DSN:            cfg.Pgvector.DSN,
			Table:          cfg.Pgvector.Table,
			Dimensions:     cfg.Dimensions,
			MigrateOnStart: true,
		})
	case "badger":
		return vectorstore.NewBadger(cfg.Badger.Path)
	}
	return nil, fmt.Errorf("unknown vectorstore type %q", cfg.Type)
}

// registerRetrieval wires the vector store and embedder into the
// retrieval tool. Retrieval is skipped unless both are configured.
func registerRetrieval(ctx context.Context, registry *tools.Registry, cfg config.VectorStoreConfig, embedder embedding.Embedder) error {
	if cfg.Type == "" {
		return nil
	}
	if embedder == nil {
		return fmt.Errorf("vectorstore %q configured but no embedding model set", cfg.Type)
	}

	store, err := buildVectorStore(ctx, cfg)
	if err != nil {
		return err
	}

	exec, err := retrieval.New(embedder, store, retrieval.Options{})
	if err != nil {
		return err
	}
	registry.Register(exec)
	slog.Info("retrieval tool enabled", "vectorstore", cfg.Type)
	return nil
}

// registerMCPServers connects to each configured MCP server and registers
// one executor over all of them. A server that fails to connect aborts
// startup; a gateway silently missing tools is worse than a crash loop.
func registerMCPServers(ctx context.Context, registry *tools.Registry, cfg config.MCPConfig) error {
	if len(cfg.Servers) == 0 {
		return nil
	}

	clients := make(map[string]*mcp.Client, len(cfg.Servers))
	for _, server := range cfg.Servers {
		client := mcp.NewClient(mcp.ServerConfig{
			Name:      server.Name,
			Transport: server.Transport,
			URL:       server.URL,
			Headers:   server.Headers,
		})

		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := client.Connect(connectCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("connecting to MCP server %q: %w", server.Name, err)
		}
		clients[server.Name] = client
		slog.Info("connected to MCP server", "name", server.Name, "url", server.URL)
	}

	registry.Register(mcp.NewExecutor(clients))
	return nil
}

func buildAuthChain(cfg config.AuthConfig) (*auth.Chain, error) {
	switch cfg.Type {
	case "none", "":
		return &auth.Chain{
			Authenticators:  []auth.Authenticator{&noop.Authenticator{}},
			DefaultDecision: auth.Yes,
		}, nil
	case "apikey":
		entries := make([]apikey.RawKeyEntry, 0, len(cfg.APIKeys))
		for _, k := range cfg.APIKeys {
			identity := auth.Identity{
				Subject:     k.Subject,
				ServiceTier: k.ServiceTier,
			}
			if k.TenantID != "" {
				identity.Metadata = map[string]string{"tenant_id": k.TenantID}
			}
			entries = append(entries, apikey.RawKeyEntry{Key: k.Key, Identity: identity})
		}
		return &auth.Chain{
			Authenticators:  []auth.Authenticator{apikey.New(entries)},
			DefaultDecision: auth.No,
		}, nil
	case "jwt":
		jwtAuth := jwt.New(jwt.Config{
			Secret:   cfg.JWT.Secret,
			Issuer:   cfg.JWT.Issuer,
			Audience: cfg.JWT.Audience,
		})
		authenticators := []auth.Authenticator{jwtAuth}
		// API keys can coexist with JWT: opaque tokens fall through the
		// JWT authenticator as Abstain.
		if len(cfg.APIKeys) > 0 {
			entries := make([]apikey.RawKeyEntry, 0, len(cfg.APIKeys))
			for _, k := range cfg.APIKeys {
				identity := auth.Identity{Subject: k.Subject, ServiceTier: k.ServiceTier}
				if k.TenantID != "" {
					identity.Metadata = map[string]string{"tenant_id": k.TenantID}
				}
				entries = append(entries, apikey.RawKeyEntry{Key: k.Key, Identity: identity})
			}
			authenticators = append(authenticators, apikey.New(entries))
		}
		return &auth.Chain{
			Authenticators:  authenticators,
			DefaultDecision: auth.No,
		}, nil
	}
	return nil, fmt.Errorf("unknown auth type %q", cfg.Type)
}
