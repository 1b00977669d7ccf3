package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/evanwmart/augmented-knowledge-interfaces/internal/config"
	"github.com/evanwmart/augmented-knowledge-interfaces/internal/embed"
	"github.com/evanwmart/augmented-knowledge-interfaces/internal/store"
)

// Index directory layout. The advisory build lock lives alongside
// these, owned by internal/index.
const (
	metadataFileName = "metadata.db"
	lexicalDirName   = "bm25.bleve"
	vectorsFileName  = "vectors.hnsw"
)

func metadataPath(indexDir string) string { return filepath.Join(indexDir, metadataFileName) }
func lexicalPath(indexDir string) string  { return filepath.Join(indexDir, lexicalDirName) }
func vectorsPath(indexDir string) string  { return filepath.Join(indexDir, vectorsFileName) }

// queryStores bundles everything a read-side command needs. Vectors
// and embedder are nil in lexical-only mode.
type queryStores struct {
	meta     *store.SQLiteStore
	lexical  *store.BleveBM25Index
	vectors  *store.HNSWStore
	embedder embed.Embedder
}

// Close releases every open store, keeping the first error.
func (s *queryStores) Close() error {
	var firstErr error
	if s.embedder != nil {
		if err := s.embedder.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.vectors != nil {
		if err := s.vectors.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.lexical != nil {
		if err := s.lexical.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.meta != nil {
		if err := s.meta.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// openQueryStores opens the persisted indexes for searching. The
// semantic side is optional: a missing vector store, an unreachable
// embedding backend, or a model mismatch all degrade to lexical-only
// with a logged warning rather than failing the query.
func openQueryStores(ctx context.Context, cfg *config.Config) (*queryStores, error) {
	indexDir := cfg.IndexDir()
	if !fileExists(metadataPath(indexDir)) {
		return nil, fmt.Errorf("no index found in %s\nRun 'aki index' to create one", indexDir)
	}

	meta, err := store.NewSQLiteStore(metadataPath(indexDir))
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}

	lexical, err := store.NewBleveBM25Index(lexicalPath(indexDir), store.DefaultBM25Config())
	if err != nil {
		_ = meta.Close()
		return nil, fmt.Errorf("failed to open lexical index: %w", err)
	}

	s := &queryStores{meta: meta, lexical: lexical}

	vecPath := vectorsPath(indexDir)
	dims, model, err := store.ReadHNSWStoreInfo(vecPath)
	if err != nil || dims == 0 {
		if err != nil {
			slog.Warn("vector_store_unreadable", slog.String("error", err.Error()))
		}
		return s, nil
	}

	embedder, err := openQueryEmbedder(ctx, cfg, model)
	if err != nil {
		slog.Warn("embedder_unavailable_lexical_only", slog.String("error", err.Error()))
		return s, nil
	}
	if embedder.Dimensions() != dims || embedder.ModelName() != model {
		slog.Warn("embedder_incompatible_lexical_only",
			slog.String("index_model", model),
			slog.Int("index_dims", dims),
			slog.String("embedder_model", embedder.ModelName()),
			slog.Int("embedder_dims", embedder.Dimensions()))
		_ = embedder.Close()
		return s, nil
	}

	vectors, err := store.OpenHNSWStore(vecPath, store.DefaultVectorStoreConfig(dims, model))
	if err != nil {
		slog.Warn("vector_store_open_failed_lexical_only", slog.String("error", err.Error()))
		_ = embedder.Close()
		return s, nil
	}

	s.vectors = vectors
	s.embedder = embedder
	return s, nil
}

// openQueryEmbedder creates an embedder matching the model the index
// was built with, so query vectors live in the same space as the
// stored ones.
func openQueryEmbedder(ctx context.Context, cfg *config.Config, indexModel string) (embed.Embedder, error) {
	factoryCfg := embed.FactoryConfig{
		Model:     indexModel,
		Host:      cfg.Embeddings.OllamaHost,
		BatchSize: cfg.Embeddings.BatchSize,
		Timeout:   cfg.Embeddings.Timeout,
	}
	if indexModel == "static" {
		factoryCfg.Provider = embed.ProviderStatic
		factoryCfg.Model = ""
	} else {
		factoryCfg.Provider = embed.ProviderOllama
	}
	return embed.NewEmbedder(ctx, factoryCfg)
}

// storeVectors converts the concrete vector store to the interface,
// keeping a nil pointer as a nil interface.
func storeVectors(s *queryStores) store.VectorStore {
	if s.vectors == nil {
		return nil
	}
	return s.vectors
}

// wipeIndexArtifacts deletes every persisted index file so the next
// build starts from scratch. The caller holds the build lock.
func wipeIndexArtifacts(indexDir string) error {
	for _, path := range []string{
		metadataPath(indexDir),
		lexicalPath(indexDir),
		vectorsPath(indexDir),
		vectorsPath(indexDir) + ".meta",
	} {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}
	return nil
}
