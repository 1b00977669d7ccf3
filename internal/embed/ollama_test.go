package embed

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	akierrors "github.com/evanwmart/augmented-knowledge-interfaces/internal/errors"
)

// newFakeOllama starts a test server answering /api/tags with the
// given models and /api/embed with constant 4-dim vectors.
func newFakeOllama(t *testing.T, models ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			infos := make([]OllamaModelInfo, len(models))
			for i, m := range models {
				infos[i] = OllamaModelInfo{Name: m}
			}
			_ = json.NewEncoder(w).Encode(OllamaModelListResponse{Models: infos})
		case "/api/embed":
			var req OllamaEmbedRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			count := 1
			if arr, ok := req.Input.([]any); ok {
				count = len(arr)
			}
			resp := OllamaEmbedResponse{Model: req.Model}
			for i := 0; i < count; i++ {
				resp.Embeddings = append(resp.Embeddings, []float64{1, 2, 3, 4})
			}
			_ = json.NewEncoder(w).Encode(resp)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaEmbedder_ResolvesModelAndDimensions(t *testing.T) {
	srv := newFakeOllama(t, "nomic-embed-text:latest")

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:  srv.URL,
		Model: "nomic-embed-text",
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Equal(t, "nomic-embed-text:latest", e.ModelName())
	assert.Equal(t, 4, e.Dimensions())
}

func TestOllamaEmbedder_FallbackModel(t *testing.T) {
	srv := newFakeOllama(t, "all-minilm:latest")

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:           srv.URL,
		Model:          "nomic-embed-text",
		FallbackModels: []string{"all-minilm"},
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Equal(t, "all-minilm:latest", e.ModelName())
}

func TestOllamaEmbedder_NoModelInstalled(t *testing.T) {
	srv := newFakeOllama(t)

	_, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:  srv.URL,
		Model: "nomic-embed-text",
	})
	assert.True(t, stderrors.Is(err, akierrors.ErrEmbeddingUnavailable))
}

func TestOllamaEmbedder_ServerDown(t *testing.T) {
	srv := newFakeOllama(t)
	host := srv.URL
	srv.Close()

	_, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:    host,
		Model:   "nomic-embed-text",
		Timeout: time.Second,
	})
	assert.True(t, stderrors.Is(err, akierrors.ErrEmbeddingUnavailable))
}

func TestOllamaEmbedder_EmbedBatch(t *testing.T) {
	srv := newFakeOllama(t, "nomic-embed-text")

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:  srv.URL,
		Model: "nomic-embed-text",
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	results, err := e.EmbedBatch(context.Background(), []string{"one", "two", "  "})
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Returned vectors are unit length.
	var sumSquares float64
	for _, v := range results[0] {
		sumSquares += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, sumSquares, 0.001)

	// Whitespace input becomes a zero vector without an API call.
	for _, v := range results[2] {
		assert.Zero(t, v)
	}
}

func TestOllamaEmbedder_TimeoutMapsToEmbeddingTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer func() { close(block); srv.Close() }()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            srv.URL,
		Model:           "nomic-embed-text",
		SkipHealthCheck: true,
		Dimensions:      4,
		Timeout:         50 * time.Millisecond,
		MaxRetries:      2,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	_, err = e.Embed(context.Background(), "slow request")
	assert.True(t, stderrors.Is(err, akierrors.ErrEmbeddingTimeout))
	assert.True(t, akierrors.IsRetryable(err))
}

func TestOllamaEmbedder_EmptyInputSkipsAPI(t *testing.T) {
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            "http://localhost:1", // never contacted
		SkipHealthCheck: true,
		Dimensions:      8,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	v, err := e.Embed(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, v, 8)
}
