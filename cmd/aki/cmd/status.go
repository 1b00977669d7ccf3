package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/evanwmart/augmented-knowledge-interfaces/internal/output"
	"github.com/evanwmart/augmented-knowledge-interfaces/internal/store"
)

// statusInfo is the collected index health snapshot.
type statusInfo struct {
	DocsDir  string `json:"docs_dir"`
	IndexDir string `json:"index_dir"`

	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`

	EmbeddingModel      string `json:"embedding_model,omitempty"`
	EmbeddingDimensions string `json:"embedding_dimensions,omitempty"`
	SemanticAvailable   bool   `json:"semantic_available"`
	Vectors             int    `json:"vectors"`

	MetadataBytes int64 `json:"metadata_bytes"`
	LexicalBytes  int64 `json:"lexical_bytes"`
	VectorBytes   int64 `json:"vector_bytes"`
}

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and statistics",
		Long: `Display information about the current index:
  - Document and chunk counts
  - Embedding model and dimensions
  - Storage sizes (metadata, lexical, vectors)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	indexDir := cfg.IndexDir()
	if !fileExists(metadataPath(indexDir)) {
		return fmt.Errorf("no index found in %s\nRun 'aki index' to create one", indexDir)
	}

	info, err := collectStatus(ctx, cfg.Paths.DocsDir, indexDir)
	if err != nil {
		return fmt.Errorf("failed to collect status: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	renderStatus(output.New(cmd.OutOrStdout()), info)
	return nil
}

func collectStatus(ctx context.Context, docsDir, indexDir string) (*statusInfo, error) {
	info := &statusInfo{
		DocsDir:  docsDir,
		IndexDir: indexDir,
	}

	meta, err := store.NewSQLiteStore(metadataPath(indexDir))
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}
	defer func() { _ = meta.Close() }()

	if info.Documents, err = meta.CountDocuments(ctx); err != nil {
		return nil, err
	}
	if info.Chunks, err = meta.CountChunks(ctx); err != nil {
		return nil, err
	}

	if model, err := meta.GetState(ctx, store.StateKeyEmbeddingModel); err == nil {
		info.EmbeddingModel = model
	}
	if dims, err := meta.GetState(ctx, store.StateKeyEmbeddingDims); err == nil {
		info.EmbeddingDimensions = dims
	}

	vecPath := vectorsPath(indexDir)
	if dims, model, err := store.ReadHNSWStoreInfo(vecPath); err == nil && dims > 0 {
		vectors, err := store.OpenHNSWStore(vecPath, store.DefaultVectorStoreConfig(dims, model))
		if err == nil {
			info.SemanticAvailable = vectors.Count() > 0
			info.Vectors = vectors.Count()
			_ = vectors.Close()
		}
	}

	info.MetadataBytes = fileSize(metadataPath(indexDir))
	info.LexicalBytes = dirSize(lexicalPath(indexDir))
	info.VectorBytes = fileSize(vecPath) + fileSize(vecPath+".meta")

	return info, nil
}

func renderStatus(out *output.Writer, info *statusInfo) {
	out.Statusf("📚", "Index: %s", info.IndexDir)
	out.Statusf("", "Docs root:  %s", info.DocsDir)
	out.Statusf("", "Documents:  %d", info.Documents)
	out.Statusf("", "Chunks:     %d", info.Chunks)
	out.Newline()

	if info.SemanticAvailable {
		out.Statusf("", "Embeddings: %s (%s dims, %d vectors)",
			info.EmbeddingModel, info.EmbeddingDimensions, info.Vectors)
	} else {
		out.Status("", "Embeddings: none (lexical-only index)")
	}
	out.Newline()

	out.Statusf("", "Metadata:   %s", formatBytes(info.MetadataBytes))
	out.Statusf("", "Lexical:    %s", formatBytes(info.LexicalBytes))
	out.Statusf("", "Vectors:    %s", formatBytes(info.VectorBytes))
}

func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

func dirSize(path string) int64 {
	var total int64
	_ = filepath.Walk(path, func(_ string, fi os.FileInfo, err error) error {
		if err == nil && !fi.IsDir() {
			total += fi.Size()
		}
		return nil
	})
	return total
}

func formatBytes(n int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case n >= gb:
		return fmt.Sprintf("%.2f GB", float64(n)/float64(gb))
	case n >= mb:
		return fmt.Sprintf("%.2f MB", float64(n)/float64(mb))
	case n >= kb:
		return fmt.Sprintf("%.2f KB", float64(n)/float64(kb))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
