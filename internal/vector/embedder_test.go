package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ftscore/internal/config"
)

func TestNewEmbedderUserProvidedRequiresDimensions(t *testing.T) {
	_, err := NewEmbedder(context.Background(), "default", config.EmbedderSettings{Source: "userProvided"})
	assert.Error(t, err)
}

func TestNewEmbedderUserProvidedRejectsEmbedCalls(t *testing.T) {
	e, err := NewEmbedder(context.Background(), "default", config.EmbedderSettings{Source: "userProvided", Dimensions: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, e.Dimensions())

	_, err = e.Embed(context.Background(), "anything")
	assert.Error(t, err)
}

func TestNewEmbedderRestRequiresTemplatesAndDimensions(t *testing.T) {
	_, err := NewEmbedder(context.Background(), "r", config.EmbedderSettings{Source: "rest", URL: "http://x"})
	assert.Error(t, err)
}

func TestNewEmbedderUnknownSourceErrors(t *testing.T) {
	_, err := NewEmbedder(context.Background(), "x", config.EmbedderSettings{Source: "nope"})
	assert.Error(t, err)
}
