package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/openconduit/conduit/pkg/auth"
	"github.com/openconduit/conduit/pkg/config"
	"github.com/openconduit/conduit/pkg/engine"
	"github.com/openconduit/conduit/pkg/observability"
	"github.com/openconduit/conduit/pkg/tools"
	"github.com/openconduit/conduit/pkg/transport"
	transporthttp "github.com/openconduit/conduit/pkg/transport/http"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the gateway server",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return serve(c.Context, *cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	prov, err := buildProvider(cfg.Provider)
	if err != nil {
		return fmt.Errorf("creating provider: %w", err)
	}
	defer prov.Close()

	store, err := buildStorage(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("creating storage: %w", err)
	}
	if store != nil {
		defer store.Close()
	}

	embedder, err := buildEmbedder(cfg.Embedding, cfg.Provider)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}
	if embedder != nil {
		defer embedder.Close()
	}

	registry := tools.NewRegistry()
	defer registry.Close()

	if err := registerRetrieval(ctx, registry, cfg.VectorStore, embedder); err != nil {
		return fmt.Errorf("setting up retrieval: %w", err)
	}
	if err := registerMCPServers(ctx, registry, cfg.MCP); err != nil {
		return fmt.Errorf("connecting MCP servers: %w", err)
	}

	var reg *tools.Registry
	if registry.HasExecutors() {
		reg = registry
	}

	eng, err := engine.New(prov, store, reg, engine.Config{
		DefaultModel: cfg.Provider.DefaultModel,
		MaxToolTurns: cfg.Provider.MaxToolTurns,
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	adapterCfg := transporthttp.Config{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		MaxBodySize: cfg.Server.MaxBodyBytes,
	}
	if cfg.Observability.Metrics.Enabled {
		adapterCfg.MetricsPath = cfg.Observability.Metrics.Path
	}

	adapter := transporthttp.NewAdapter(eng, store, prov, embedder, adapterCfg,
		transport.Recovery(),
		transport.RequestID(),
		transport.Logging(slog.Default()),
	)

	httpMiddleware := []func(http.Handler) http.Handler{observability.MetricsMiddleware}
	if mw, err := buildAuthMiddleware(cfg.Auth); err != nil {
		return fmt.Errorf("setting up auth: %w", err)
	} else if mw != nil {
		httpMiddleware = append(httpMiddleware, mw)
	}

	srv := transporthttp.NewServer(adapter,
		transporthttp.WithReadTimeout(cfg.Server.ReadTimeout),
		transporthttp.WithWriteTimeout(cfg.Server.WriteTimeout),
		transporthttp.WithShutdownTimeout(30*time.Second),
		transporthttp.WithLogger(slog.Default()),
		transporthttp.WithHTTPMiddleware(httpMiddleware...),
	)

	slog.Info("starting conduit",
		"provider", cfg.Provider.Type,
		"model", cfg.Provider.DefaultModel,
		"storage", cfg.Storage.Type,
		"auth", cfg.Auth.Type,
		"port", cfg.Server.Port,
	)
	return srv.ListenAndServe(ctx)
}

// buildAuthMiddleware assembles the authentication chain and rate limiter
// from configuration. Returns nil when auth is disabled and no rate
// limits are configured.
func buildAuthMiddleware(cfg config.AuthConfig) (func(http.Handler) http.Handler, error) {
	chain, err := buildAuthChain(cfg)
	if err != nil {
		return nil, err
	}

	var limiter auth.RateLimiter
	if len(cfg.RateLimits) > 0 {
		tiers := make(map[string]auth.TierConfig, len(cfg.RateLimits))
		for tier, rl := range cfg.RateLimits {
			tiers[tier] = auth.TierConfig{
				RequestsPerMinute: rl.RequestsPerMinute,
				Burst:             rl.Burst,
			}
		}
		defaultTier := tiers["default"]
		limiter = auth.NewTokenBucketLimiter(tiers, defaultTier)
	}

	if cfg.Type == "none" && limiter == nil {
		return nil, nil
	}
	return auth.Middleware(chain, limiter, auth.DefaultBypassEndpoints), nil
}
