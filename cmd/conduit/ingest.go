package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/openconduit/conduit/pkg/config"
	"github.com/openconduit/conduit/pkg/vectorstore/ingest"
)

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:      "ingest",
		Usage:     "chunk, embed, and store documents for retrieval",
		ArgsUsage: "FILE...",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "chunk-size",
				Value: 1000,
				Usage: "chunk size in runes",
			},
			&cli.IntFlag{
				Name:  "chunk-overlap",
				Value: 200,
				Usage: "overlap between consecutive chunks in runes",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return fmt.Errorf("at least one file to ingest is required")
			}
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return runIngest(c, *cfg)
		},
	}
}

func runIngest(c *cli.Context, cfg config.Config) error {
	if cfg.VectorStore.Type == "" {
		return fmt.Errorf("no vectorstore configured")
	}

	embedder, err := buildEmbedder(cfg.Embedding, cfg.Provider)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}
	if embedder == nil {
		return fmt.Errorf("no embedding model configured")
	}
	defer embedder.Close()

	store, err := buildVectorStore(c.Context, cfg.VectorStore)
	if err != nil {
		return fmt.Errorf("creating vectorstore: %w", err)
	}
	defer store.Close()

	pipeline, err := ingest.New(embedder, store,
		ingest.WithChunking(c.Int("chunk-size"), c.Int("chunk-overlap")),
		ingest.WithNormalize(cfg.Embedding.Normalize),
	)
	if err != nil {
		return err
	}

	for _, path := range c.Args().Slice() {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		docs, err := pipeline.Ingest(c.Context, string(data), map[string]string{
			"source": filepath.Base(path),
		})
		if err != nil {
			return fmt.Errorf("ingesting %s: %w", path, err)
		}
		slog.Info("ingested document", "file", path, "chunks", len(docs))
	}
	return nil
}
