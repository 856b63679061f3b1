package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryFromCode(t *testing.T) {
	tests := []struct {
		code     string
		category Category
	}{
		{ErrCodePageUnresolved, CategoryIngestion},
		{ErrCodeIndexTimeout, CategoryIndex},
		{ErrCodeRerankerUnavailable, CategoryModel},
		{ErrCodeInvalidQuery, CategoryValidation},
		{ErrCodeRebuildFailed, CategoryInternal},
		{"bogus", CategoryInternal},
	}

	for _, tt := range tests {
		err := New(tt.code, "message", nil)
		assert.Equal(t, tt.category, err.Category, tt.code)
	}
}

func TestNew_DerivesSeverity(t *testing.T) {
	// Degraded-mode codes warn; everything else is an error.
	assert.Equal(t, SeverityWarning, New(ErrCodeIndexTimeout, "", nil).Severity)
	assert.Equal(t, SeverityWarning, New(ErrCodeRerankerUnavailable, "", nil).Severity)
	assert.Equal(t, SeverityError, New(ErrCodePageUnresolved, "", nil).Severity)
	assert.Equal(t, SeverityError, New(ErrCodeInvalidQuery, "", nil).Severity)
}

func TestNew_RetryableCodes(t *testing.T) {
	assert.True(t, IsRetryable(New(ErrCodeIndexTimeout, "", nil)))
	assert.True(t, IsRetryable(New(ErrCodeRebuildFailed, "", nil)))
	assert.False(t, IsRetryable(New(ErrCodeInvalidQuery, "", nil)))
	assert.False(t, IsRetryable(stderrors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestError_FormatsCodeAndMessage(t *testing.T) {
	err := New(ErrCodePageOutOfBounds, "page 11 exceeds 10 pages", nil)

	assert.Equal(t, "[ERR_102_PAGE_OUT_OF_BOUNDS] page 11 exceeds 10 pages", err.Error())
}

func TestError_IsMatchesByCode(t *testing.T) {
	err := New(ErrCodeNotFound, "chunk c1 not found", nil)

	assert.True(t, stderrors.Is(err, New(ErrCodeNotFound, "", nil)))
	assert.False(t, stderrors.Is(err, New(ErrCodeEmptyChunk, "", nil)))
}

func TestError_UnwrapExposesCause(t *testing.T) {
	cause := stderrors.New("disk gone")
	err := New(ErrCodeStoreClosed, "store closed", cause)

	assert.ErrorIs(t, err, cause)
}

func TestWrap(t *testing.T) {
	cause := stderrors.New("connection refused")

	err := Wrap(ErrCodeEmbedderUnavailable, cause)

	require.NotNil(t, err)
	assert.Equal(t, "connection refused", err.Message)
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, Wrap(ErrCodeEmbedderUnavailable, nil))
}

func TestWithDetail(t *testing.T) {
	err := New(ErrCodeInvalidFilter, "unknown field", nil).
		WithDetail("field", "stock_ticker").
		WithDetail("allowed", "fiscal_period")

	assert.Equal(t, "stock_ticker", err.Details["field"])
	assert.Equal(t, "fiscal_period", err.Details["allowed"])
}

func TestGetCodeAndCategory(t *testing.T) {
	err := New(ErrCodeDimensionMismatch, "dim 3 != 4", nil)

	assert.Equal(t, ErrCodeDimensionMismatch, GetCode(err))
	assert.Equal(t, CategoryIngestion, GetCategory(err))

	plain := fmt.Errorf("plain error")
	assert.Equal(t, "", GetCode(plain))
	assert.Equal(t, Category(""), GetCategory(plain))
}
