package errors

import (
	"fmt"
)

// RetrievalError is the structured error type for Pagewise.
// It provides rich context for error handling, logging, and degradation
// decisions in the orchestrator.
type RetrievalError struct {
	// Code is the unique error code (e.g., "ERR_102_PAGE_OUT_OF_BOUNDS").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Ingestion, Index, Model, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *RetrievalError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *RetrievalError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with RetrievalError.
func (e *RetrievalError) Is(target error) bool {
	if t, ok := target.(*RetrievalError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *RetrievalError) WithDetail(key, value string) *RetrievalError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new RetrievalError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *RetrievalError {
	return &RetrievalError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a RetrievalError from an existing error.
// The error's message becomes the RetrievalError message.
func Wrap(code string, err error) *RetrievalError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// IngestionError creates a chunk-admission error. Chunks carrying such an
// error are quarantined and never reach any index.
func IngestionError(code, message string) *RetrievalError {
	return New(code, message, nil)
}

// IndexUnavailable creates a sub-index availability error naming the index.
func IndexUnavailable(index string, cause error) *RetrievalError {
	return New(ErrCodeIndexUnavailable, fmt.Sprintf("%s index unavailable", index), cause).
		WithDetail("index", index)
}

// RerankerFailure creates a reranker error. Always recovered locally by the
// orchestrator via fallback to fused ranking.
func RerankerFailure(message string, cause error) *RetrievalError {
	return New(ErrCodeRerankerUnavailable, message, cause)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if re, ok := err.(*RetrievalError); ok {
		return re.Retryable
	}
	return false
}

// GetCode extracts the error code from a RetrievalError.
// Returns empty string if not a RetrievalError.
func GetCode(err error) string {
	if re, ok := err.(*RetrievalError); ok {
		return re.Code
	}
	return ""
}

// GetCategory extracts the category from a RetrievalError.
// Returns empty string if not a RetrievalError.
func GetCategory(err error) Category {
	if re, ok := err.(*RetrievalError); ok {
		return re.Category
	}
	return ""
}
