package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	blevesearch "github.com/blevesearch/bleve/v2/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanwmart/augmented-knowledge-interfaces/internal/chunk"
	akierrors "github.com/evanwmart/augmented-knowledge-interfaces/internal/errors"
)

func newTestBM25(t *testing.T) *BleveBM25Index {
	t.Helper()
	idx, err := NewBleveBM25Index("", DefaultBM25Config())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func makeChunk(id, path string, position int, text string) *chunk.Chunk {
	return &chunk.Chunk{
		ID:         id,
		SourcePath: path,
		Position:   position,
		Text:       text,
		TokenCount: len(strings.Fields(text)),
	}
}

func TestBM25_AddAndSearch(t *testing.T) {
	idx := newTestBM25(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, []*chunk.Chunk{
		makeChunk("A", "install.md", 0, "run the install script to install the tool"),
		makeChunk("B", "usage.md", 0, "usage instructions for querying the index"),
	}))

	results, err := idx.Search(ctx, "install", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "A", results[0].ChunkID)
	assert.Greater(t, results[0].Score, 0.0)
}

func TestBM25_SearchEmptyIndex(t *testing.T) {
	idx := newTestBM25(t)

	results, err := idx.Search(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBM25_DuplicateIDRejected(t *testing.T) {
	idx := newTestBM25(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, []*chunk.Chunk{makeChunk("A", "a.md", 0, "some text")}))

	err := idx.Add(ctx, []*chunk.Chunk{makeChunk("A", "a.md", 0, "other text")})
	assert.True(t, stderrors.Is(err, akierrors.ErrDuplicateID))
}

func TestBM25_DuplicateIDWithinBatch(t *testing.T) {
	idx := newTestBM25(t)

	err := idx.Add(context.Background(), []*chunk.Chunk{
		makeChunk("A", "a.md", 0, "first"),
		makeChunk("A", "a.md", 1, "second"),
	})
	assert.True(t, stderrors.Is(err, akierrors.ErrDuplicateID))
}

func TestBM25_RemoveIsIdempotent(t *testing.T) {
	idx := newTestBM25(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, []*chunk.Chunk{makeChunk("A", "a.md", 0, "install notes")}))
	require.NoError(t, idx.Remove(ctx, []string{"A"}))
	require.NoError(t, idx.Remove(ctx, []string{"A", "never-existed"}))

	results, err := idx.Search(ctx, "install", 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	// Removed ids can be re-added.
	assert.NoError(t, idx.Add(ctx, []*chunk.Chunk{makeChunk("A", "a.md", 0, "install notes")}))
}

func TestBM25_MoreOccurrencesNeverScoreLower(t *testing.T) {
	idx := newTestBM25(t)
	ctx := context.Background()

	// Same length, different term frequency for "deploy".
	require.NoError(t, idx.Add(ctx, []*chunk.Chunk{
		makeChunk("once", "a.md", 0, "deploy the service alpha beta gamma delta epsilon zeta eta"),
		makeChunk("thrice", "b.md", 0, "deploy deploy deploy the service alpha beta gamma delta epsilon"),
	}))

	results, err := idx.Search(ctx, "deploy", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	scores := map[string]float64{}
	for _, r := range results {
		scores[r.ChunkID] = r.Score
	}
	assert.GreaterOrEqual(t, scores["thrice"], scores["once"])
	assert.Equal(t, "thrice", results[0].ChunkID)
}

func TestBM25_StemmedMatching(t *testing.T) {
	idx := newTestBM25(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, []*chunk.Chunk{
		makeChunk("A", "a.md", 0, "installing dependencies before the first run"),
	}))

	results, err := idx.Search(ctx, "install", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "A", results[0].ChunkID)
}

func TestBM25_TopKBoundsResults(t *testing.T) {
	idx := newTestBM25(t)
	ctx := context.Background()

	var chunks []*chunk.Chunk
	for i := 0; i < 10; i++ {
		chunks = append(chunks, makeChunk(fmt.Sprintf("c%d", i), "a.md", i,
			fmt.Sprintf("install step number %d", i)))
	}
	require.NoError(t, idx.Add(ctx, chunks))

	results, err := idx.Search(ctx, "install", 3)
	require.NoError(t, err)
	assert.Len(t, results, 3)

	_, err = idx.Search(ctx, "install", 0)
	assert.Error(t, err)
}

func TestBM25_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bm25.bleve")
	ctx := context.Background()

	idx, err := NewBleveBM25Index(path, DefaultBM25Config())
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, []*chunk.Chunk{makeChunk("A", "a.md", 0, "persistent install docs")}))
	require.NoError(t, idx.Close())

	reopened, err := NewBleveBM25Index(path, DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	results, err := reopened.Search(ctx, "install", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "A", results[0].ChunkID)

	// Insertion counter continues, so new adds still work.
	require.NoError(t, reopened.Add(ctx, []*chunk.Chunk{makeChunk("B", "b.md", 0, "more install docs")}))

	count, err := reopened.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestBM25_AllIDs(t *testing.T) {
	idx := newTestBM25(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, []*chunk.Chunk{
		makeChunk("A", "a.md", 0, "one"),
		makeChunk("B", "a.md", 1, "two"),
	}))

	ids, err := idx.AllIDs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B"}, ids)
}

func TestBM25_ScoringParametersApplied(t *testing.T) {
	tuned, err := NewBleveBM25Index("", BM25Config{K1: 1.6, B: 0.9})
	require.NoError(t, err)
	defer func() { _ = tuned.Close() }()

	assert.Equal(t, 1.6, blevesearch.BM25_k1)
	assert.Equal(t, 0.9, blevesearch.BM25_b)

	newTestBM25(t)

	assert.Equal(t, DefaultBM25Config().K1, blevesearch.BM25_k1)
	assert.Equal(t, DefaultBM25Config().B, blevesearch.BM25_b)
}
