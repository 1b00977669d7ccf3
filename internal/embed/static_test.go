package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedder_Deterministic(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()
	ctx := context.Background()

	v1, err := e.Embed(ctx, "configure the retrieval index")
	require.NoError(t, err)
	v2, err := e.Embed(ctx, "configure the retrieval index")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Len(t, v1, StaticDimensions)
}

func TestStaticEmbedder_DifferentTextsDiffer(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()
	ctx := context.Background()

	v1, err := e.Embed(ctx, "configure the retrieval index")
	require.NoError(t, err)
	v2, err := e.Embed(ctx, "delete all stored documents")
	require.NoError(t, err)

	assert.NotEqual(t, v1, v2)
}

func TestStaticEmbedder_EmptyInputZeroVector(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	v, err := e.Embed(context.Background(), "   \n\t  ")
	require.NoError(t, err)
	require.Len(t, v, StaticDimensions)
	for _, val := range v {
		assert.Zero(t, val)
	}
}

func TestStaticEmbedder_UnitLength(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	v, err := e.Embed(context.Background(), "hybrid search over documentation")
	require.NoError(t, err)

	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	assert.InDelta(t, 1.0, sumSquares, 0.001)
}

func TestStaticEmbedder_EmbedBatch(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()
	ctx := context.Background()

	batch, err := e.EmbedBatch(ctx, []string{"first text", "second text"})
	require.NoError(t, err)
	require.Len(t, batch, 2)

	single, err := e.Embed(ctx, "first text")
	require.NoError(t, err)
	assert.Equal(t, single, batch[0])
}

func TestStaticEmbedder_ClosedErrors(t *testing.T) {
	e := NewStaticEmbedder()
	require.NoError(t, e.Close())

	_, err := e.Embed(context.Background(), "text")
	assert.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}

func TestSplitIdentifier(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"loadConfig", []string{"load", "Config"}},
		{"load_config", []string{"load", "config"}},
		{"HTTPServer", []string{"HTTP", "Server"}},
		{"plain", []string{"plain"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, splitIdentifier(tt.input), "input %q", tt.input)
	}
}

func TestExtractNgrams(t *testing.T) {
	assert.Equal(t, []string{"abc", "bcd"}, extractNgrams("abcd", 3))
	assert.Empty(t, extractNgrams("ab", 3))
}
