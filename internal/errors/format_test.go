package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToTaskErrorShapesEngineError(t *testing.T) {
	ee := New(CodeInvalidFilter, "unknown filterable attribute", nil)
	te := ToTaskError(ee)
	require.NotNil(t, te)
	assert.Equal(t, CodeInvalidFilter, te.Code)
	assert.Equal(t, "unknown filterable attribute", te.Message)
	assert.Equal(t, string(CategoryUser), te.Type)
}

func TestToTaskErrorWrapsPlainError(t *testing.T) {
	te := ToTaskError(errors.New("disk exploded"))
	require.NotNil(t, te)
	assert.Equal(t, CodeInternal, te.Code)
	assert.Equal(t, "disk exploded", te.Message)
}

func TestToTaskErrorNil(t *testing.T) {
	assert.Nil(t, ToTaskError(nil))
}

func TestFormatJSONRoundTrips(t *testing.T) {
	ee := New(CodeDocumentNotFound, "no such document", nil)
	data, err := FormatJSON(ee)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"code":"document_not_found"`)
}

func TestFormatForLogIncludesDetails(t *testing.T) {
	ee := New(CodeInvalidFilter, "bad", nil).WithDetail("attribute", "genre")
	fields := FormatForLog(ee)
	assert.Equal(t, "genre", fields["detail_attribute"])
	assert.Equal(t, CodeInvalidFilter, fields["error_code"])
}
