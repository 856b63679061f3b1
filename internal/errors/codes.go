// Package errors provides structured error handling for Pagewise.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Ingestion errors (malformed chunks, quarantine)
//   - 2XX: Index errors (sub-index unavailable, timeouts)
//   - 3XX: Model errors (reranker, embedder)
//   - 4XX: Validation errors
//   - 5XX: Internal errors (rebuilds, unexpected state)
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryIngestion indicates chunk admission errors.
	CategoryIngestion Category = "INGESTION"
	// CategoryIndex indicates sub-index availability errors.
	CategoryIndex Category = "INDEX"
	// CategoryModel indicates scoring-model errors (reranker, embedder).
	CategoryModel Category = "MODEL"
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
	// Ingestion errors (100-199)
	ErrCodePageUnresolved    = "ERR_101_PAGE_UNRESOLVED"
	ErrCodePageOutOfBounds   = "ERR_102_PAGE_OUT_OF_BOUNDS"
	ErrCodeDimensionMismatch = "ERR_103_DIMENSION_MISMATCH"
	ErrCodeEmptyChunk        = "ERR_104_EMPTY_CHUNK"
	ErrCodeUnknownDocument   = "ERR_105_UNKNOWN_DOCUMENT"

	// Index errors (200-299)
	ErrCodeIndexUnavailable = "ERR_201_INDEX_UNAVAILABLE"
	ErrCodeIndexTimeout     = "ERR_202_INDEX_TIMEOUT"
	ErrCodeNoRetrieval      = "ERR_203_NO_RETRIEVAL"
	ErrCodeNotFound         = "ERR_204_NOT_FOUND"

	// Model errors (300-399)
	ErrCodeRerankerUnavailable = "ERR_301_RERANKER_UNAVAILABLE"
	ErrCodeRerankerTimeout     = "ERR_302_RERANKER_TIMEOUT"
	ErrCodeEmbedderUnavailable = "ERR_303_EMBEDDER_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeInvalidQuery  = "ERR_401_INVALID_QUERY"
	ErrCodeInvalidTopK   = "ERR_402_INVALID_TOP_K"
	ErrCodeInvalidFilter = "ERR_403_INVALID_FILTER"
	ErrCodeInvalidConfig = "ERR_404_INVALID_CONFIG"

	// Internal errors (500-599)
	ErrCodeInternal      = "ERR_501_INTERNAL"
	ErrCodeRebuildFailed = "ERR_502_REBUILD_FAILED"
	ErrCodeStoreClosed   = "ERR_503_STORE_CLOSED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Numeric portion, e.g. "101" from "ERR_101_PAGE_UNRESOLVED".
	switch code[4] {
	case '1':
		return CategoryIngestion
	case '2':
		return CategoryIndex
	case '3':
		return CategoryModel
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeIndexUnavailable, ErrCodeIndexTimeout,
		ErrCodeRerankerUnavailable, ErrCodeRerankerTimeout:
		// Degraded-mode codes: the query continues with fewer signals.
		return SeverityWarning
	case ErrCodeNoRetrieval:
		return SeverityError
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeIndexTimeout, ErrCodeRerankerTimeout,
		ErrCodeEmbedderUnavailable, ErrCodeRebuildFailed:
		return true
	default:
		return false
	}
}
