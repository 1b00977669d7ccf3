package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/evanwmart/augmented-knowledge-interfaces/internal/chunk"
	"github.com/evanwmart/augmented-knowledge-interfaces/internal/config"
	"github.com/evanwmart/augmented-knowledge-interfaces/internal/embed"
	"github.com/evanwmart/augmented-knowledge-interfaces/internal/index"
	"github.com/evanwmart/augmented-knowledge-interfaces/internal/output"
	"github.com/evanwmart/augmented-knowledge-interfaces/internal/scanner"
	"github.com/evanwmart/augmented-knowledge-interfaces/internal/store"
	"github.com/evanwmart/augmented-knowledge-interfaces/internal/watcher"
)

// indexOptions holds CLI flags for index.
type indexOptions struct {
	chunkSize      int
	chunkOverlap   int
	skipEmbeddings bool
	rebuild        bool
	watch          bool
	workers        int
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build or update the documentation index",
		Long: `Build the search index for the documentation corpus.

Indexing is incremental: only documents whose content changed since the
last run are re-chunked and re-embedded. Removed documents are dropped
from the index.

Examples:
  aki index
  aki index --docs ./docs --skip-embeddings
  aki index --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.chunkSize, "chunk-size", 0, "Chunk size in tokens (default from config)")
	cmd.Flags().IntVar(&opts.chunkOverlap, "chunk-overlap", -1, "Chunk overlap in tokens (default from config)")
	cmd.Flags().BoolVar(&opts.skipEmbeddings, "skip-embeddings", false, "Build a lexical-only index (no embedding calls)")
	cmd.Flags().BoolVar(&opts.rebuild, "rebuild", false, "Discard the existing index and rebuild from scratch")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Keep running and re-index on file changes")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Parallel indexing workers (default: number of CPUs)")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, opts indexOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyIndexFlags(cfg, opts)
	if err := cfg.Validate(); err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	indexDir := cfg.IndexDir()
	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	lock, err := index.AcquireBuildLock(indexDir)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	// Embedder first: a model change forces a full rebuild, which has
	// to happen before the stores open.
	var embedder embed.Embedder
	if !cfg.Embeddings.Skip {
		embedder, err = embed.NewEmbedder(ctx, embed.FactoryConfig{
			Provider:  embed.ParseProvider(cfg.Embeddings.Provider),
			Model:     cfg.Embeddings.Model,
			Host:      cfg.Embeddings.OllamaHost,
			BatchSize: cfg.Embeddings.BatchSize,
			Timeout:   cfg.Embeddings.Timeout,
		})
		if err != nil {
			return err
		}
		defer func() { _ = embedder.Close() }()
	}

	// A lexical-only build leaves no vector store behind: stale vectors
	// from an earlier embedded build would drift from changed documents.
	if embedder == nil && fileExists(vectorsPath(indexDir)) {
		out.Warning("Embeddings skipped, removing existing vector store")
		if err := os.RemoveAll(vectorsPath(indexDir)); err != nil {
			return fmt.Errorf("failed to remove vector store: %w", err)
		}
		if err := os.RemoveAll(vectorsPath(indexDir) + ".meta"); err != nil {
			return fmt.Errorf("failed to remove vector store metadata: %w", err)
		}
	}

	wipe := opts.rebuild
	if embedder != nil && !wipe {
		dims, model, infoErr := store.ReadHNSWStoreInfo(vectorsPath(indexDir))
		if infoErr == nil && dims > 0 &&
			(dims != embedder.Dimensions() || model != embedder.ModelName()) {
			out.Warningf("Embedding model changed (%s/%d -> %s/%d), rebuilding index",
				model, dims, embedder.ModelName(), embedder.Dimensions())
			wipe = true
		}
	}
	if wipe {
		if err := wipeIndexArtifacts(indexDir); err != nil {
			return err
		}
	}

	meta, err := store.NewSQLiteStore(metadataPath(indexDir))
	if err != nil {
		return fmt.Errorf("failed to open metadata store: %w", err)
	}
	defer func() { _ = meta.Close() }()

	lexical, err := store.NewBleveBM25Index(lexicalPath(indexDir), store.DefaultBM25Config())
	if err != nil {
		return fmt.Errorf("failed to open lexical index: %w", err)
	}
	defer func() { _ = lexical.Close() }()

	var vectors *store.HNSWStore
	if embedder != nil {
		vecCfg := store.DefaultVectorStoreConfig(embedder.Dimensions(), embedder.ModelName())
		vectors, err = store.OpenHNSWStore(vectorsPath(indexDir), vecCfg)
		if err != nil {
			return fmt.Errorf("failed to open vector store: %w", err)
		}
		defer func() { _ = vectors.Close() }()
	}

	chunker, err := chunk.NewChunker(cfg.Chunking.MaxTokens, cfg.Chunking.OverlapTokens)
	if err != nil {
		return err
	}

	var tracker *index.Tracker
	if vectors != nil {
		tracker = index.NewTracker(chunker, meta, lexical, vectors, embedder,
			index.TrackerConfig{Workers: cfg.Performance.IndexWorkers})
	} else {
		tracker = index.NewTracker(chunker, meta, lexical, nil, nil,
			index.TrackerConfig{Workers: cfg.Performance.IndexWorkers})
	}

	if err := buildOnce(ctx, out, cfg, tracker, vectors, indexDir); err != nil {
		return err
	}

	if opts.watch {
		return runWatch(ctx, out, cfg, tracker, vectors, indexDir)
	}
	return nil
}

// applyIndexFlags lets explicit CLI flags win over layered config.
func applyIndexFlags(cfg *config.Config, opts indexOptions) {
	if opts.chunkSize > 0 {
		cfg.Chunking.MaxTokens = opts.chunkSize
	}
	if opts.chunkOverlap >= 0 {
		cfg.Chunking.OverlapTokens = opts.chunkOverlap
	}
	if opts.skipEmbeddings {
		cfg.Embeddings.Skip = true
	}
	if opts.workers > 0 {
		cfg.Performance.IndexWorkers = opts.workers
	}
}

// buildOnce runs one full scan-and-build pass and persists the vector
// store afterwards.
func buildOnce(ctx context.Context, out *output.Writer, cfg *config.Config,
	tracker *index.Tracker, vectors *store.HNSWStore, indexDir string) error {
	files, err := scanner.New().ScanAll(ctx, &scanner.ScanOptions{
		RootDir:     cfg.Paths.DocsDir,
		ExcludeDirs: []string{filepath.Base(indexDir)},
	})
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", cfg.Paths.DocsDir, err)
	}

	stats, err := tracker.Build(ctx, files)
	if err != nil {
		return err
	}

	if vectors != nil {
		if err := vectors.Save(vectorsPath(indexDir)); err != nil {
			return fmt.Errorf("failed to persist vector store: %w", err)
		}
	}

	if stats.Added+stats.Updated+stats.Removed == 0 {
		out.Successf("Index up to date (%d documents, %s)",
			stats.Unchanged, stats.Duration.Round(time.Millisecond))
		return nil
	}
	out.Successf("Indexed %d added, %d updated, %d removed (%d chunks, %s)",
		stats.Added, stats.Updated, stats.Removed,
		stats.ChunksIndexed, stats.Duration.Round(time.Millisecond))
	if stats.EmbedFailures > 0 {
		out.Warningf("%d documents indexed without embeddings (lexical-only)", stats.EmbedFailures)
	}
	if stats.OrphansRemoved > 0 {
		out.Statusf("", "Reconciled %d orphaned chunks from an interrupted build", stats.OrphansRemoved)
	}
	return nil
}

// runWatch blocks, re-running the build whenever the watcher signals a
// debounced batch of file changes. Ctrl-C stops it.
func runWatch(ctx context.Context, out *output.Writer, cfg *config.Config,
	tracker *index.Tracker, vectors *store.HNSWStore, indexDir string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := watcher.New(cfg.Paths.DocsDir, cfg.Performance.WatchDebounce,
		[]string{filepath.Base(indexDir)})
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	go w.Run(ctx)
	out.Statusf("👀", "Watching %s for changes (Ctrl-C to stop)", cfg.Paths.DocsDir)

	for {
		select {
		case <-ctx.Done():
			out.Newline()
			out.Status("", "Watch stopped")
			return nil
		case <-w.Rebuilds():
			slog.Info("watch_rebuild_triggered")
			if err := buildOnce(ctx, out, cfg, tracker, vectors, indexDir); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				out.Errorf("Rebuild failed: %v", err)
			}
		}
	}
}
