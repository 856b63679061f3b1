// Package cmd provides the CLI commands for Pagewise.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pagewise-ai/pagewise/internal/config"
	"github.com/pagewise-ai/pagewise/internal/embed"
	"github.com/pagewise-ai/pagewise/internal/generation"
	"github.com/pagewise-ai/pagewise/internal/logging"
	"github.com/pagewise-ai/pagewise/internal/search"
	"github.com/pagewise-ai/pagewise/internal/store"
	"github.com/pagewise-ai/pagewise/pkg/version"
)

var (
	configPath     string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the pagewise CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pagewise",
		Short: "Hybrid retrieval engine for paginated financial documents",
		Long: `Pagewise answers natural-language questions over large, paginated
financial documents by retrieving the most relevant passages with exact
page-level provenance.

Queries fan out to keyword, vector, and structured-metadata indices in
parallel; results are fused and optionally reranked by a cross-encoder.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("pagewise version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (YAML)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		if loggingCleanup != nil {
			loggingCleanup()
			loggingCleanup = nil
		}
	}

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newRebuildCmd())
	cmd.AddCommand(newEvalCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setupLogging installs the default structured logger.
func setupLogging(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logCfg := logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      cfg.Logging.FilePath,
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
	}
	if debugMode {
		logCfg.Level = "debug"
	}

	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	loggingCleanup = cleanup
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// app bundles the wired components a command needs.
type app struct {
	cfg      *config.Config
	chunks   store.ChunkStore
	manager  *generation.Manager
	embedder embed.Embedder
	engine   *search.Engine
}

// openApp loads config, opens the chunk store, builds the serving
// generation, and wires the engine.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	chunks, err := store.NewSQLiteChunkStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open chunk store: %w", err)
	}

	embedder, err := buildEmbedder(ctx, cfg)
	if err != nil {
		_ = chunks.Close()
		return nil, err
	}

	manager := generation.NewManager(chunks, generation.DefaultBuildConfig(),
		filepath.Dir(cfg.Store.Path))
	if err := manager.Rebuild(ctx); err != nil {
		_ = chunks.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("build initial generation: %w", err)
	}

	var reranker search.Reranker
	if cfg.Reranker.Enabled {
		reranker, err = search.NewHTTPReranker(ctx, search.HTTPRerankerConfig{
			Endpoint: cfg.Reranker.Endpoint,
			Model:    cfg.Reranker.Model,
			Timeout:  cfg.Reranker.Timeout,
		})
		if err != nil {
			// Queries fall back to fused ranking; not fatal.
			slog.Warn("reranker unavailable, queries will use fused ranking",
				slog.String("error", err.Error()))
			reranker = nil
		}
	}

	engine := search.NewEngine(chunks, manager, embedder, reranker, search.EngineConfig{
		Alpha:              cfg.Search.Alpha,
		CandidatesPerIndex: cfg.Search.CandidatesPerIndex,
		FuseTopN:           cfg.Search.FuseTopN,
		DefaultTopK:        cfg.Search.DefaultTopK,
		MaxTopK:            cfg.Search.MaxTopK,
		IndexTimeout:       cfg.Search.IndexTimeout,
		RerankTimeout:      cfg.Reranker.Timeout,
		RerankBatchSize:    cfg.Reranker.BatchSize,
		RerankWorkers:      cfg.Reranker.Workers,
		StructuredBoost:    cfg.Search.StructuredBoost,
		BoostEnabled:       cfg.Search.BoostEnabled,
		FilterPolicy:       cfg.FilterPolicy(),
	})

	return &app{
		cfg:      cfg,
		chunks:   chunks,
		manager:  manager,
		embedder: embedder,
		engine:   engine,
	}, nil
}

// buildEmbedder constructs the configured embedder behind the LRU cache.
func buildEmbedder(ctx context.Context, cfg *config.Config) (embed.Embedder, error) {
	var inner embed.Embedder
	switch cfg.Embed.Provider {
	case "service":
		svc, err := embed.NewServiceEmbedder(ctx, embed.ServiceConfig{
			Endpoint:  cfg.Embed.Endpoint,
			Model:     cfg.Embed.Model,
			BatchSize: cfg.Embed.BatchSize,
			Timeout:   cfg.Embed.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("connect embedding service: %w", err)
		}
		inner = svc
	default:
		inner = embed.NewStaticEmbedder()
	}

	return embed.NewCachedEmbedder(inner, cfg.Embed.CacheSize), nil
}

// close releases the app's resources.
func (a *app) close() {
	_ = a.engine.Close()
	_ = a.manager.Close()
	_ = a.embedder.Close()
	_ = a.chunks.Close()
}
