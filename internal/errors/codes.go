// Package errors provides structured error handling for aki.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO and persisted-state errors
//   - 3XX: Embedding backend errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file, disk, and persisted-index errors.
	CategoryIO Category = "IO"
	// CategoryEmbedding indicates embedding-backend errors.
	CategoryEmbedding Category = "EMBEDDING"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeInvalidConfig    = "ERR_101_INVALID_CONFIG"
	ErrCodeConfigPermission = "ERR_102_CONFIG_PERMISSION"

	// IO and persisted-state errors (200-299)
	ErrCodeFileNotFound      = "ERR_201_FILE_NOT_FOUND"
	ErrCodeCorruptIndex      = "ERR_202_CORRUPT_INDEX"
	ErrCodeStateCorrupt      = "ERR_203_STATE_CORRUPT"
	ErrCodeStoreIncompatible = "ERR_204_STORE_INCOMPATIBLE"
	ErrCodeBuildLocked       = "ERR_205_BUILD_LOCKED"

	// Embedding backend errors (300-399)
	ErrCodeEmbeddingTimeout     = "ERR_301_EMBEDDING_TIMEOUT"
	ErrCodeEmbeddingUnavailable = "ERR_302_EMBEDDING_UNAVAILABLE"
	ErrCodeSemanticUnavailable  = "ERR_303_SEMANTIC_INDEX_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeDuplicateID       = "ERR_401_DUPLICATE_ID"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeInvalidQuery      = "ERR_403_INVALID_QUERY"

	// Internal errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed    = "ERR_503_SEARCH_FAILED"
	ErrCodeIndexFailed     = "ERR_504_INDEX_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryEmbedding
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex, ErrCodeStoreIncompatible:
		return SeverityFatal
	case ErrCodeSemanticUnavailable, ErrCodeEmbeddingUnavailable:
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeEmbeddingTimeout, ErrCodeEmbeddingUnavailable, ErrCodeBuildLocked:
		return true
	default:
		return false
	}
}
