package vector

import (
	"context"
	"fmt"

	"github.com/Aman-CERP/ftscore/internal/config"
	"github.com/Aman-CERP/ftscore/internal/errors"
)

// userProvidedEmbedder implements Embedder for the "userProvided" source,
// where callers supply vectors directly and no model call ever happens
// (spec §4.6). Embed/EmbedBatch always fail: documents configured this way
// must arrive with their vector already attached, and the write path
// never calls into the embedder for them.
type userProvidedEmbedder struct {
	dimensions int
}

func (u *userProvidedEmbedder) Dimensions() int { return u.dimensions }
func (u *userProvidedEmbedder) Close() error    { return nil }

func (u *userProvidedEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New(errors.CodeInvalidSettingsEmbedders,
		"embedder is userProvided; documents must supply their own vector", nil)
}

func (u *userProvidedEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New(errors.CodeInvalidSettingsEmbedders,
		"embedder is userProvided; documents must supply their own vector", nil)
}

// NewEmbedder dispatches on cfg.Source to build the configured embedder
// client (spec §4.6 "one of userProvided/huggingFace/openAi/ollama/rest").
func NewEmbedder(ctx context.Context, name string, cfg config.EmbedderSettings) (Embedder, error) {
	switch cfg.Source {
	case "userProvided":
		if cfg.Dimensions <= 0 {
			return nil, errors.New(errors.CodeInvalidSettingsEmbedders,
				fmt.Sprintf("embedder %q is userProvided and must declare dimensions explicitly", name), nil)
		}
		return &userProvidedEmbedder{dimensions: cfg.Dimensions}, nil

	case "ollama":
		return NewOllamaEmbedder(ctx, cfg.URL, cfg.Model, cfg.Dimensions)

	case "openAi":
		if cfg.Dimensions <= 0 {
			return nil, errors.New(errors.CodeInvalidSettingsEmbedders,
				fmt.Sprintf("embedder %q (openAi) must declare dimensions", name), nil)
		}
		return NewOpenAIEmbedder(cfg.URL, cfg.APIKey, cfg.Model, cfg.Dimensions), nil

	case "huggingFace":
		if cfg.Dimensions <= 0 {
			return nil, errors.New(errors.CodeInvalidSettingsEmbedders,
				fmt.Sprintf("embedder %q (huggingFace) must declare dimensions", name), nil)
		}
		return NewHuggingFaceEmbedder(cfg.URL, cfg.APIKey, cfg.Model, cfg.Dimensions), nil

	case "rest":
		if cfg.URL == "" || cfg.RequestTemplate == "" || cfg.ResponseTemplate == "" {
			return nil, errors.New(errors.CodeInvalidSettingsEmbedders,
				fmt.Sprintf("embedder %q (rest) requires url, request and response templates", name), nil)
		}
		if cfg.Dimensions <= 0 {
			return nil, errors.New(errors.CodeInvalidSettingsEmbedders,
				fmt.Sprintf("embedder %q (rest) must declare dimensions", name), nil)
		}
		return NewRestEmbedder(cfg.URL, cfg.Headers, cfg.RequestTemplate, cfg.ResponseTemplate, cfg.Dimensions), nil

	default:
		return nil, errors.New(errors.CodeInvalidSettingsEmbedders,
			fmt.Sprintf("embedder %q has unknown source %q", name, cfg.Source), nil)
	}
}
