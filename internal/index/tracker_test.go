package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanwmart/augmented-knowledge-interfaces/internal/chunk"
	"github.com/evanwmart/augmented-knowledge-interfaces/internal/embed"
	"github.com/evanwmart/augmented-knowledge-interfaces/internal/scanner"
	"github.com/evanwmart/augmented-knowledge-interfaces/internal/store"
)

// buildEnv bundles the stores and tracker for one test corpus.
type buildEnv struct {
	docsDir  string
	meta     *store.SQLiteStore
	lexical  *store.BleveBM25Index
	vectors  *store.HNSWStore
	embedder embed.Embedder
	tracker  *Tracker
}

func newBuildEnv(t *testing.T, withEmbeddings bool) *buildEnv {
	t.Helper()

	docsDir := t.TempDir()

	meta, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = meta.Close() })

	lexical, err := store.NewBleveBM25Index("", store.DefaultBM25Config())
	require.NoError(t, err)
	t.Cleanup(func() { _ = lexical.Close() })

	chunker, err := chunk.NewChunker(500, 50)
	require.NoError(t, err)

	env := &buildEnv{docsDir: docsDir, meta: meta, lexical: lexical}

	var vectors store.VectorStore
	if withEmbeddings {
		env.embedder = embed.NewStaticEmbedder()
		t.Cleanup(func() { _ = env.embedder.Close() })

		env.vectors, err = store.NewHNSWStore(
			store.DefaultVectorStoreConfig(env.embedder.Dimensions(), env.embedder.ModelName()))
		require.NoError(t, err)
		t.Cleanup(func() { _ = env.vectors.Close() })
		vectors = env.vectors
	}

	env.tracker = NewTracker(chunker, meta, lexical, vectors, env.embedder, TrackerConfig{Workers: 2})
	return env
}

func (e *buildEnv) writeDoc(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(e.docsDir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func (e *buildEnv) build(t *testing.T) *BuildStats {
	t.Helper()
	files, err := scanner.New().ScanAll(context.Background(), &scanner.ScanOptions{RootDir: e.docsDir})
	require.NoError(t, err)

	stats, err := e.tracker.Build(context.Background(), files)
	require.NoError(t, err)
	return stats
}

func (e *buildEnv) lexicalIDs(t *testing.T) []string {
	t.Helper()
	ids, err := e.lexical.AllIDs()
	require.NoError(t, err)
	return ids
}

func TestTracker_FirstBuildIndexesEverything(t *testing.T) {
	env := newBuildEnv(t, true)
	env.writeDoc(t, "install.md", "# Install\n\nRun the installer.\n")
	env.writeDoc(t, "usage.md", "# Usage\n\nQuery the index.\n")

	stats := env.build(t)

	assert.Equal(t, 2, stats.Added)
	assert.Zero(t, stats.Updated)
	assert.Zero(t, stats.Removed)
	assert.Zero(t, stats.Unchanged)
	assert.Equal(t, 2, stats.ChunksIndexed)

	// Both indexes and the metadata store agree on the chunk id set.
	tracked, err := env.meta.AllChunkIDs(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, tracked, env.lexicalIDs(t))
	assert.ElementsMatch(t, tracked, env.vectors.AllIDs())
}

func TestTracker_RebuildUnchangedIsNoOp(t *testing.T) {
	env := newBuildEnv(t, true)
	env.writeDoc(t, "install.md", "# Install\n\nRun the installer.\n")

	env.build(t)
	before := env.lexicalIDs(t)

	stats := env.build(t)

	assert.Zero(t, stats.Added)
	assert.Zero(t, stats.Updated)
	assert.Zero(t, stats.Removed)
	assert.Equal(t, 1, stats.Unchanged)
	assert.Zero(t, stats.ChunksIndexed)
	assert.ElementsMatch(t, before, env.lexicalIDs(t))
}

func TestTracker_UpdateOneFileLeavesOthersUntouched(t *testing.T) {
	env := newBuildEnv(t, true)
	env.writeDoc(t, "a.md", "# Alpha\n\nOriginal alpha text.\n")
	env.writeDoc(t, "b.md", "# Beta\n\nStable beta text.\n")
	env.writeDoc(t, "c.md", "# Gamma\n\nStable gamma text.\n")

	env.build(t)
	ctx := context.Background()

	recA, err := env.meta.GetDocument(ctx, "a.md")
	require.NoError(t, err)
	recB, err := env.meta.GetDocument(ctx, "b.md")
	require.NoError(t, err)
	oldAIDs := recA.ChunkIDs

	env.writeDoc(t, "a.md", "# Alpha\n\nCompletely rewritten alpha content.\n")
	stats := env.build(t)

	assert.Equal(t, 1, stats.Updated)
	assert.Equal(t, 2, stats.Unchanged)

	// Old chunk ids for a.md are gone from both indexes; new ones present.
	newRecA, err := env.meta.GetDocument(ctx, "a.md")
	require.NoError(t, err)
	assert.NotEqual(t, oldAIDs, newRecA.ChunkIDs)

	lexIDs := env.lexicalIDs(t)
	vecIDs := env.vectors.AllIDs()
	for _, old := range oldAIDs {
		assert.NotContains(t, lexIDs, old)
		assert.NotContains(t, vecIDs, old)
	}
	for _, id := range newRecA.ChunkIDs {
		assert.Contains(t, lexIDs, id)
		assert.Contains(t, vecIDs, id)
	}

	// b.md untouched in both indexes.
	newRecB, err := env.meta.GetDocument(ctx, "b.md")
	require.NoError(t, err)
	assert.Equal(t, recB.ChunkIDs, newRecB.ChunkIDs)
	for _, id := range recB.ChunkIDs {
		assert.Contains(t, lexIDs, id)
		assert.Contains(t, vecIDs, id)
	}
}

func TestTracker_RemovedFileDroppedFromIndexes(t *testing.T) {
	env := newBuildEnv(t, true)
	env.writeDoc(t, "keep.md", "# Keep\n\nThis one stays.\n")
	env.writeDoc(t, "gone.md", "# Gone\n\nThis one goes away.\n")

	env.build(t)
	ctx := context.Background()

	recGone, err := env.meta.GetDocument(ctx, "gone.md")
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(env.docsDir, "gone.md")))
	stats := env.build(t)

	assert.Equal(t, 1, stats.Removed)
	assert.Equal(t, 1, stats.Unchanged)

	rec, err := env.meta.GetDocument(ctx, "gone.md")
	require.NoError(t, err)
	assert.Nil(t, rec)

	lexIDs := env.lexicalIDs(t)
	for _, id := range recGone.ChunkIDs {
		assert.NotContains(t, lexIDs, id)
		assert.NotContains(t, env.vectors.AllIDs(), id)
	}
}

func TestTracker_LexicalOnlyMode(t *testing.T) {
	env := newBuildEnv(t, false)
	env.writeDoc(t, "install.md", "# Install\n\nRun the installer.\n")

	stats := env.build(t)

	assert.Equal(t, 1, stats.Added)
	assert.NotEmpty(t, env.lexicalIDs(t))
	assert.Nil(t, env.vectors)
}

func TestTracker_OrphanReconciliation(t *testing.T) {
	env := newBuildEnv(t, true)
	env.writeDoc(t, "a.md", "# Alpha\n\nSome text.\n")
	env.build(t)

	// Simulate an interrupted earlier pass: a chunk id in the lexical
	// index that no DocumentRecord tracks.
	orphan := &chunk.Chunk{
		ID:         "orphan-chunk-id",
		SourcePath: "phantom.md",
		Text:       "leftover from a crashed build",
		TokenCount: 5,
	}
	require.NoError(t, env.lexical.Add(context.Background(), []*chunk.Chunk{orphan}))

	stats := env.build(t)

	assert.Equal(t, 1, stats.OrphansRemoved)
	assert.NotContains(t, env.lexicalIDs(t), "orphan-chunk-id")
}

func TestTracker_RecordsEmbeddingModelState(t *testing.T) {
	env := newBuildEnv(t, true)
	env.writeDoc(t, "a.md", "# Alpha\n\nSome text.\n")
	env.build(t)

	ctx := context.Background()
	model, err := env.meta.GetState(ctx, store.StateKeyEmbeddingModel)
	require.NoError(t, err)
	assert.Equal(t, "static", model)

	dims, err := env.meta.GetState(ctx, store.StateKeyEmbeddingDims)
	require.NoError(t, err)
	assert.Equal(t, "256", dims)
}

func TestAcquireBuildLock_SecondAcquireFails(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireBuildLock(dir)
	require.NoError(t, err)
	defer func() { _ = lock.Release() }()

	_, err = AcquireBuildLock(dir)
	require.Error(t, err)

	require.NoError(t, lock.Release())

	again, err := AcquireBuildLock(dir)
	require.NoError(t, err)
	assert.NoError(t, again.Release())
}
