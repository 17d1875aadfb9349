package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDerivesCategorySeverityRetryable(t *testing.T) {
	err := New(CodeMissingPrimaryKey, "no primary key field found", nil)
	assert.Equal(t, CategoryUser, err.Category)
	assert.Equal(t, SeverityTask, err.Severity)
	assert.False(t, err.Retryable)

	fatal := New(CodeDatabaseCorrupt, "bucket header corrupt", nil)
	assert.Equal(t, SeverityFatal, fatal.Severity)
	assert.True(t, IsFatal(fatal))

	retryable := New(CodeEmbedTransport, "connection reset", nil)
	assert.True(t, IsRetryable(retryable))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("boom")
	wrapped := Wrap(CodeInternal, cause)
	require.NotNil(t, wrapped)
	assert.Equal(t, cause, wrapped.Cause)
	assert.ErrorIs(t, wrapped, cause)
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(CodeInternal, nil))
}

func TestIsMatchesByCode(t *testing.T) {
	a := New(CodeIndexNotFound, "no such index", nil)
	b := New(CodeIndexNotFound, "different message", nil)
	assert.True(t, errors.Is(a, b))

	c := New(CodeInvalidFilter, "bad filter", nil)
	assert.False(t, errors.Is(a, c))
}

func TestWithDetailChaining(t *testing.T) {
	err := New(CodeInvalidFilter, "unknown attribute", nil).
		WithDetail("attribute", "genre").
		WithDetail("hint", "available: title, year")

	assert.Equal(t, "genre", err.Details["attribute"])
	assert.Equal(t, "available: title, year", err.Details["hint"])
}

func TestCodeExtractsFromEngineError(t *testing.T) {
	assert.Equal(t, CodeIndexNotFound, Code(New(CodeIndexNotFound, "x", nil)))
	assert.Equal(t, "", Code(errors.New("plain")))
}
