// Package index implements the incremental build pass over a
// documentation corpus. Each tracked document moves through a simple
// lifecycle keyed by content hash: new paths are indexed, changed
// hashes are re-indexed, vanished paths are removed, and unchanged
// hashes are skipped entirely.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/evanwmart/augmented-knowledge-interfaces/internal/chunk"
	"github.com/evanwmart/augmented-knowledge-interfaces/internal/embed"
	"github.com/evanwmart/augmented-knowledge-interfaces/internal/scanner"
	"github.com/evanwmart/augmented-knowledge-interfaces/internal/store"
)

// Tracker owns the persisted index state during a build pass. It is
// the single writer: callers serialize builds with AcquireBuildLock.
type Tracker struct {
	chunker  *chunk.Chunker
	meta     store.MetadataStore
	lexical  store.LexicalIndex
	vectors  store.VectorStore // nil in lexical-only mode
	embedder embed.Embedder    // nil in lexical-only mode
	workers  int
}

// TrackerConfig configures a Tracker.
type TrackerConfig struct {
	// Workers bounds parallel chunking and embedding. Defaults to
	// GOMAXPROCS.
	Workers int
}

// NewTracker creates a build tracker. Passing a nil vector store (or
// nil embedder) selects lexical-only mode: the semantic side is
// skipped for the whole pass.
func NewTracker(chunker *chunk.Chunker, meta store.MetadataStore, lexical store.LexicalIndex,
	vectors store.VectorStore, embedder embed.Embedder, cfg TrackerConfig) *Tracker {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if vectors == nil || embedder == nil {
		vectors = nil
		embedder = nil
	}
	return &Tracker{
		chunker:  chunker,
		meta:     meta,
		lexical:  lexical,
		vectors:  vectors,
		embedder: embedder,
		workers:  workers,
	}
}

// BuildStats summarizes one build pass.
type BuildStats struct {
	Added     int
	Updated   int
	Removed   int
	Unchanged int

	ChunksIndexed  int
	ChunksRemoved  int
	EmbedFailures  int
	OrphansRemoved int

	Duration time.Duration
}

// docResult is the output of the parallel chunk+embed stage for one
// document.
type docResult struct {
	path      string
	hash      string
	unchanged bool
	chunks    []*chunk.Chunk
	vectors   [][]float32 // nil when embedding skipped or failed
	skip      bool        // unreadable file, logged and dropped
}

// Build runs one incremental pass over the discovered files.
//
// The diff is computed against a snapshot of all DocumentRecords taken
// before any mutation. Chunking and embedding for changed documents
// run in parallel on a bounded worker pool; mutations are applied
// serially afterwards, removals before additions per path. The pass
// finishes by reconciling orphaned chunk ids left behind by an
// interrupted earlier build.
func (t *Tracker) Build(ctx context.Context, files []*scanner.FileInfo) (*BuildStats, error) {
	start := time.Now()
	stats := &BuildStats{}

	snapshot, err := t.meta.AllDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("load document snapshot: %w", err)
	}
	prior := make(map[string]*store.DocumentRecord, len(snapshot))
	for _, rec := range snapshot {
		prior[rec.SourcePath] = rec
	}

	results, err := t.processFiles(ctx, files, prior, stats)
	if err != nil {
		return nil, err
	}

	discovered := make(map[string]bool, len(files))
	for _, f := range files {
		discovered[f.Path] = true
	}

	// Removals for paths that disappeared from the corpus.
	var removedPaths []string
	for path := range prior {
		if !discovered[path] {
			removedPaths = append(removedPaths, path)
		}
	}
	sort.Strings(removedPaths)

	for _, path := range removedPaths {
		if err := t.removeDocument(ctx, path, prior[path].ChunkIDs); err != nil {
			return nil, err
		}
		stats.Removed++
		stats.ChunksRemoved += len(prior[path].ChunkIDs)
	}

	// Apply changed documents in deterministic order.
	sort.Slice(results, func(i, j int) bool { return results[i].path < results[j].path })
	for _, res := range results {
		if res.skip {
			continue
		}
		if res.unchanged {
			stats.Unchanged++
			continue
		}

		priorRec := prior[res.path]
		if priorRec != nil {
			if err := t.removeDocument(ctx, res.path, priorRec.ChunkIDs); err != nil {
				return nil, err
			}
			stats.ChunksRemoved += len(priorRec.ChunkIDs)
		}

		if err := t.addDocument(ctx, res); err != nil {
			return nil, err
		}
		stats.ChunksIndexed += len(res.chunks)
		if res.vectors == nil && t.vectors != nil && len(res.chunks) > 0 {
			stats.EmbedFailures++
		}

		if priorRec != nil {
			stats.Updated++
		} else {
			stats.Added++
		}
	}

	orphans, err := t.reconcileOrphans(ctx)
	if err != nil {
		return nil, err
	}
	stats.OrphansRemoved = orphans

	if t.embedder != nil {
		if err := t.meta.SetState(ctx, store.StateKeyEmbeddingModel, t.embedder.ModelName()); err != nil {
			return nil, err
		}
		if err := t.meta.SetState(ctx, store.StateKeyEmbeddingDims,
			fmt.Sprintf("%d", t.embedder.Dimensions())); err != nil {
			return nil, err
		}
	}

	stats.Duration = time.Since(start)
	slog.Info("build_pass_complete",
		slog.Int("added", stats.Added),
		slog.Int("updated", stats.Updated),
		slog.Int("removed", stats.Removed),
		slog.Int("unchanged", stats.Unchanged),
		slog.Int("chunks_indexed", stats.ChunksIndexed),
		slog.Int("embed_failures", stats.EmbedFailures),
		slog.Int("orphans_removed", stats.OrphansRemoved),
		slog.Duration("duration", stats.Duration))
	return stats, nil
}

// processFiles hashes, chunks, and embeds every discovered file on a
// bounded worker pool. No index mutation happens here.
func (t *Tracker) processFiles(ctx context.Context, files []*scanner.FileInfo,
	prior map[string]*store.DocumentRecord, stats *BuildStats) ([]*docResult, error) {

	results := make([]*docResult, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.workers)

	for i, file := range files {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			res := &docResult{path: file.Path}
			results[i] = res

			content, err := os.ReadFile(file.AbsPath)
			if err != nil {
				slog.Warn("document_unreadable",
					slog.String("path", file.Path),
					slog.String("error", err.Error()))
				res.skip = true
				return nil
			}

			res.hash = hashContent(content)
			if rec, ok := prior[file.Path]; ok && rec.ContentHash == res.hash {
				res.unchanged = true
				return nil
			}

			text := chunk.Preprocess(content, file.Path)
			res.chunks = t.chunker.Chunk(text, file.Path)

			if t.embedder != nil && len(res.chunks) > 0 {
				texts := make([]string, len(res.chunks))
				for j, c := range res.chunks {
					texts[j] = c.Text
				}
				vectors, err := t.embedder.EmbedBatch(gctx, texts)
				if err != nil {
					// Flaky embedding backend degrades this document to
					// lexical-only instead of failing the pass.
					slog.Warn("document_embedding_failed",
						slog.String("path", file.Path),
						slog.Int("chunks", len(res.chunks)),
						slog.String("error", err.Error()))
				} else {
					res.vectors = vectors
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	compact := make([]*docResult, 0, len(results))
	for _, res := range results {
		if res != nil {
			compact = append(compact, res)
		}
	}
	return compact, nil
}

// addDocument applies one new or re-chunked document to both indexes
// and persists its record.
func (t *Tracker) addDocument(ctx context.Context, res *docResult) error {
	if err := t.lexical.Add(ctx, res.chunks); err != nil {
		return fmt.Errorf("index %s: %w", res.path, err)
	}

	ids := make([]string, len(res.chunks))
	for i, c := range res.chunks {
		ids[i] = c.ID
	}

	if t.vectors != nil && res.vectors != nil {
		if err := t.vectors.Add(ctx, ids, res.vectors); err != nil {
			return fmt.Errorf("store embeddings for %s: %w", res.path, err)
		}
	}

	rec := &store.DocumentRecord{
		SourcePath:  res.path,
		ContentHash: res.hash,
		ChunkIDs:    ids,
	}
	if err := t.meta.SaveDocument(ctx, rec, res.chunks); err != nil {
		return fmt.Errorf("persist record for %s: %w", res.path, err)
	}
	return nil
}

// removeDocument drops a document's chunks from both indexes and
// deletes its record.
func (t *Tracker) removeDocument(ctx context.Context, path string, chunkIDs []string) error {
	if err := t.lexical.Remove(ctx, chunkIDs); err != nil {
		return fmt.Errorf("remove %s from lexical index: %w", path, err)
	}
	if t.vectors != nil {
		if err := t.vectors.Remove(ctx, chunkIDs); err != nil {
			return fmt.Errorf("remove %s from vector store: %w", path, err)
		}
	}
	if err := t.meta.DeleteDocument(ctx, path); err != nil {
		return fmt.Errorf("delete record for %s: %w", path, err)
	}
	return nil
}

// reconcileOrphans removes chunk ids present in an index but absent
// from every DocumentRecord. An interrupted earlier pass can leave
// such ids behind.
func (t *Tracker) reconcileOrphans(ctx context.Context) (int, error) {
	tracked, err := t.meta.AllChunkIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("load tracked chunk ids: %w", err)
	}
	trackedSet := make(map[string]bool, len(tracked))
	for _, id := range tracked {
		trackedSet[id] = true
	}

	removed := 0

	lexicalIDs, err := t.lexical.AllIDs()
	if err != nil {
		return 0, fmt.Errorf("list lexical ids: %w", err)
	}
	var stale []string
	for _, id := range lexicalIDs {
		if !trackedSet[id] {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		slog.Warn("lexical_orphans_removed", slog.Int("count", len(stale)))
		if err := t.lexical.Remove(ctx, stale); err != nil {
			return 0, err
		}
		removed += len(stale)
	}

	if t.vectors != nil {
		stale = stale[:0]
		for _, id := range t.vectors.AllIDs() {
			if !trackedSet[id] {
				stale = append(stale, id)
			}
		}
		if len(stale) > 0 {
			slog.Warn("vector_orphans_removed", slog.Int("count", len(stale)))
			if err := t.vectors.Remove(ctx, stale); err != nil {
				return 0, err
			}
			removed += len(stale)
		}
	}

	return removed, nil
}

// hashContent returns the hex sha256 of raw document bytes.
func hashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
