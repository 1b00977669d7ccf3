package errors

import (
	"fmt"
)

// AkiError is the structured error type for aki.
// It carries a stable code so callers can match on errors.Is and
// the CLI can present actionable messages.
type AkiError struct {
	// Code is the unique error code (e.g., "ERR_401_DUPLICATE_ID").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Embedding, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *AkiError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *AkiError) Unwrap() error {
	return e.Cause
}

// Is matches AkiErrors by code so errors.Is works with sentinel values.
func (e *AkiError) Is(target error) bool {
	if t, ok := target.(*AkiError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *AkiError) WithDetail(key, value string) *AkiError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *AkiError) WithSuggestion(suggestion string) *AkiError {
	e.Suggestion = suggestion
	return e
}

// New creates a new AkiError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *AkiError {
	return &AkiError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Newf creates a new AkiError with a formatted message and no cause.
func Newf(code string, format string, args ...any) *AkiError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Wrap creates an AkiError from an existing error.
// The error's message becomes the AkiError message.
func Wrap(code string, err error) *AkiError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinel errors for the retrieval engine's taxonomy. Match with errors.Is.
var (
	// ErrInvalidConfig rejects bad chunk sizes, overlap, alpha ranges and
	// similar before any work begins.
	ErrInvalidConfig = New(ErrCodeInvalidConfig, "invalid configuration", nil)

	// ErrDuplicateID is returned when adding a chunk id already present in
	// an index. Callers must remove before re-adding.
	ErrDuplicateID = New(ErrCodeDuplicateID, "chunk id already indexed", nil)

	// ErrDimensionMismatch is returned when a vector's length does not equal
	// the store's configured dimension.
	ErrDimensionMismatch = New(ErrCodeDimensionMismatch, "embedding dimension mismatch", nil)

	// ErrSemanticUnavailable indicates the semantic index was never built.
	// Auto strategy degrades to lexical; explicit semantic requests surface it.
	ErrSemanticUnavailable = New(ErrCodeSemanticUnavailable, "semantic index unavailable", nil)

	// ErrEmbeddingTimeout indicates the embedding backend did not answer
	// within the caller's deadline.
	ErrEmbeddingTimeout = New(ErrCodeEmbeddingTimeout, "embedding request timed out", nil)

	// ErrEmbeddingUnavailable indicates the embedding backend could not be
	// reached or offers no usable model.
	ErrEmbeddingUnavailable = New(ErrCodeEmbeddingUnavailable, "embedding backend unavailable", nil)

	// ErrStoreIncompatible indicates the persisted embedding store was built
	// with a different model or dimension than configured.
	ErrStoreIncompatible = New(ErrCodeStoreIncompatible, "embedding store incompatible", nil)

	// ErrBuildLocked indicates another build pass holds the index lock.
	ErrBuildLocked = New(ErrCodeBuildLocked, "another indexing run is in progress", nil)
)

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if ae, ok := err.(*AkiError); ok {
		return ae.Retryable
	}
	return false
}

// GetCode extracts the error code from an AkiError.
// Returns empty string if not an AkiError.
func GetCode(err error) string {
	if ae, ok := err.(*AkiError); ok {
		return ae.Code
	}
	return ""
}
