package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanwmart/augmented-knowledge-interfaces/internal/chunk"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func saveTestDocument(t *testing.T, s *SQLiteStore, path, hash string, chunks []*chunk.Chunk) {
	t.Helper()
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	err := s.SaveDocument(context.Background(), &DocumentRecord{
		SourcePath:  path,
		ContentHash: hash,
		ChunkIDs:    ids,
	}, chunks)
	require.NoError(t, err)
}

func TestSQLiteStore_DocumentRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	chunks := []*chunk.Chunk{
		makeChunk("c1", "guide.md", 0, "first section"),
		makeChunk("c2", "guide.md", 1, "second section"),
	}
	chunks[0].Heading = "Guide"
	chunks[1].Heading = "Guide > Setup"
	saveTestDocument(t, s, "guide.md", "hash-1", chunks)

	rec, err := s.GetDocument(ctx, "guide.md")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "guide.md", rec.SourcePath)
	assert.Equal(t, "hash-1", rec.ContentHash)
	assert.Equal(t, []string{"c1", "c2"}, rec.ChunkIDs)

	got, err := s.GetChunks(ctx, []string{"c2", "c1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c2", got[0].ID)
	assert.Equal(t, "Guide > Setup", got[0].Heading)
	assert.Equal(t, 1, got[0].Position)
	assert.Equal(t, "c1", got[1].ID)
}

func TestSQLiteStore_GetDocumentUntracked(t *testing.T) {
	s := newTestSQLiteStore(t)

	rec, err := s.GetDocument(context.Background(), "never-indexed.md")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSQLiteStore_SaveDocumentReplacesChunks(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	saveTestDocument(t, s, "a.md", "v1", []*chunk.Chunk{
		makeChunk("old1", "a.md", 0, "old content"),
		makeChunk("old2", "a.md", 1, "more old content"),
	})
	saveTestDocument(t, s, "a.md", "v2", []*chunk.Chunk{
		makeChunk("new1", "a.md", 0, "new content"),
	})

	rec, err := s.GetDocument(ctx, "a.md")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "v2", rec.ContentHash)
	assert.Equal(t, []string{"new1"}, rec.ChunkIDs)

	count, err := s.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSQLiteStore_DeleteDocumentCascades(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	saveTestDocument(t, s, "a.md", "h", []*chunk.Chunk{
		makeChunk("c1", "a.md", 0, "text"),
		makeChunk("c2", "a.md", 1, "text two"),
	})

	require.NoError(t, s.DeleteDocument(ctx, "a.md"))

	rec, err := s.GetDocument(ctx, "a.md")
	require.NoError(t, err)
	assert.Nil(t, rec)

	count, err := s.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// Deleting an untracked document is a no-op.
	assert.NoError(t, s.DeleteDocument(ctx, "a.md"))
}

func TestSQLiteStore_AllDocuments(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	saveTestDocument(t, s, "a.md", "ha", []*chunk.Chunk{makeChunk("a1", "a.md", 0, "alpha")})
	saveTestDocument(t, s, "b.md", "hb", []*chunk.Chunk{
		makeChunk("b1", "b.md", 0, "beta"),
		makeChunk("b2", "b.md", 1, "gamma"),
	})

	docs, err := s.AllDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	byPath := map[string]*DocumentRecord{}
	for _, d := range docs {
		byPath[d.SourcePath] = d
	}
	assert.Equal(t, []string{"a1"}, byPath["a.md"].ChunkIDs)
	assert.Equal(t, []string{"b1", "b2"}, byPath["b.md"].ChunkIDs)
}

func TestSQLiteStore_GetChunksSkipsUnknown(t *testing.T) {
	s := newTestSQLiteStore(t)

	saveTestDocument(t, s, "a.md", "h", []*chunk.Chunk{makeChunk("c1", "a.md", 0, "text")})

	got, err := s.GetChunks(context.Background(), []string{"missing", "c1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].ID)
}

func TestSQLiteStore_AllChunkIDs(t *testing.T) {
	s := newTestSQLiteStore(t)

	saveTestDocument(t, s, "a.md", "h", []*chunk.Chunk{
		makeChunk("c1", "a.md", 0, "one"),
		makeChunk("c2", "a.md", 1, "two"),
	})

	ids, err := s.AllChunkIDs(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c1", "c2"}, ids)
}

func TestSQLiteStore_State(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	val, err := s.GetState(ctx, "no-such-key")
	require.NoError(t, err)
	assert.Empty(t, val)

	require.NoError(t, s.SetState(ctx, StateKeyEmbeddingModel, "nomic-embed-text"))
	val, err = s.GetState(ctx, StateKeyEmbeddingModel)
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", val)

	require.NoError(t, s.SetState(ctx, StateKeyEmbeddingModel, "other-model"))
	val, err = s.GetState(ctx, StateKeyEmbeddingModel)
	require.NoError(t, err)
	assert.Equal(t, "other-model", val)
}

func TestSQLiteStore_SchemaVersionSeeded(t *testing.T) {
	s := newTestSQLiteStore(t)

	val, err := s.GetState(context.Background(), StateKeySchemaVersion)
	require.NoError(t, err)
	assert.Equal(t, "1", val)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	saveTestDocument(t, s, "a.md", "h", []*chunk.Chunk{makeChunk("c1", "a.md", 0, "text")})
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	rec, err := reopened.GetDocument(ctx, "a.md")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "h", rec.ContentHash)
}

func TestSQLiteStore_CorruptDatabaseRecreated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.db")
	require.NoError(t, os.WriteFile(path, []byte("this is not a sqlite database"), 0o644))

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	count, err := s.CountDocuments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
