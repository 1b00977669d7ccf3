package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryAndSeverity(t *testing.T) {
	err := New(ErrCodeDuplicateID, "chunk abc123 already present", nil)

	assert.Equal(t, CategoryValidation, err.Category)
	assert.Equal(t, SeverityError, err.Severity)
	assert.False(t, err.Retryable)
	assert.Equal(t, "[ERR_401_DUPLICATE_ID] chunk abc123 already present", err.Error())
}

func TestSentinels_MatchByCode(t *testing.T) {
	err := Newf(ErrCodeDimensionMismatch, "expected %d, got %d", 768, 384)

	assert.True(t, stderrors.Is(err, ErrDimensionMismatch))
	assert.False(t, stderrors.Is(err, ErrDuplicateID))
}

func TestWrap_PreservesChain(t *testing.T) {
	cause := fmt.Errorf("read state.json: unexpected EOF")
	err := Wrap(ErrCodeStateCorrupt, cause)

	require.NotNil(t, err)
	assert.Equal(t, cause, stderrors.Unwrap(err))
	assert.Equal(t, CategoryIO, err.Category)
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestRetryable_EmbeddingCodes(t *testing.T) {
	assert.True(t, IsRetryable(ErrEmbeddingTimeout))
	assert.True(t, IsRetryable(ErrBuildLocked))
	assert.False(t, IsRetryable(ErrInvalidConfig))
	assert.False(t, IsRetryable(nil))
}

func TestWithDetailAndSuggestion(t *testing.T) {
	err := New(ErrCodeStoreIncompatible, "model changed", nil).
		WithDetail("stored_model", "nomic-embed-text").
		WithDetail("configured_model", "all-minilm").
		WithSuggestion("re-run 'aki index' to rebuild embeddings")

	assert.Equal(t, "nomic-embed-text", err.Details["stored_model"])
	assert.NotEmpty(t, err.Suggestion)
	assert.Equal(t, SeverityFatal, err.Severity)
}

func TestSentinels_EmbeddingUnavailable(t *testing.T) {
	err := Wrap(ErrCodeEmbeddingUnavailable,
		fmt.Errorf("dial tcp 127.0.0.1:11434: connection refused"))

	assert.True(t, stderrors.Is(err, ErrEmbeddingUnavailable))
	assert.True(t, err.Retryable)
}
