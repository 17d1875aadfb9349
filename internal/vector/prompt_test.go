package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderDocumentTemplateExposesDocAndFields(t *testing.T) {
	doc := map[string]any{"title": "Hello", "body": "World"}
	out, err := RenderDocumentTemplate("{{doc.title}}: {{doc.body}}", doc, 0)
	require.NoError(t, err)
	assert.Equal(t, "Hello: World", out)
}

func TestRenderDocumentTemplateTruncatesOnRuneBoundary(t *testing.T) {
	doc := map[string]any{"title": "café society"}
	out, err := RenderDocumentTemplate("{{doc.title}}", doc, 4)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out), 4)
	assert.Equal(t, "caf", out)
}

func TestRenderQueryTemplateDefaultsToRawQuery(t *testing.T) {
	out, err := RenderQueryTemplate("", "hello world")
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestRenderQueryTemplateRendersQBinding(t *testing.T) {
	out, err := RenderQueryTemplate("query: {{q}}", "hello")
	require.NoError(t, err)
	assert.Equal(t, "query: hello", out)
}
