package provider

import (
	"context"
	"net/http"

	"genhub/internal/config"
	"genhub/internal/domain/model"
	"genhub/internal/domain/ports/adapter"
)

// Registry returns one spec per supported backend. The gateway builds an
// adapter per call from the spec and the resolved credential.
func Registry(cfg config.ProvidersConfig) map[model.ProviderID]adapter.ProviderSpec {
	httpFor := func(pc config.ProviderConfig) *http.Client {
		return &http.Client{Timeout: pc.Timeout}
	}

	ollamaHTTP := httpFor(cfg.Ollama)
	openaiHTTP := httpFor(cfg.OpenAI)
	geminiHTTP := httpFor(cfg.Gemini)
	claudeHTTP := httpFor(cfg.Claude)
	comfyHTTP := httpFor(cfg.ComfyUI)

	specs := []adapter.ProviderSpec{
		{
			ID:              model.ProviderOllama,
			DefaultEndpoint: cfg.Ollama.Endpoint,
			MaxConcurrent:   cfg.Ollama.MaxConcurrent,
			New: func(_ context.Context, pc adapter.ProviderConfig) (adapter.Provider, error) {
				return NewOllama(pc.Endpoint, ollamaHTTP), nil
			},
		},
		{
			ID:              model.ProviderOpenAI,
			NeedsCredential: true,
			DefaultEndpoint: cfg.OpenAI.Endpoint,
			MaxConcurrent:   cfg.OpenAI.MaxConcurrent,
			New: func(_ context.Context, pc adapter.ProviderConfig) (adapter.Provider, error) {
				return NewOpenAI(pc.APIKey, pc.Endpoint, openaiHTTP)
			},
		},
		{
			ID:              model.ProviderGemini,
			NeedsCredential: true,
			DefaultEndpoint: cfg.Gemini.Endpoint,
			MaxConcurrent:   cfg.Gemini.MaxConcurrent,
			New: func(ctx context.Context, pc adapter.ProviderConfig) (adapter.Provider, error) {
				return NewGemini(ctx, pc.APIKey, pc.Endpoint, geminiHTTP)
			},
		},
		{
			ID:              model.ProviderClaude,
			NeedsCredential: true,
			DefaultEndpoint: cfg.Claude.Endpoint,
			MaxConcurrent:   cfg.Claude.MaxConcurrent,
			New: func(_ context.Context, pc adapter.ProviderConfig) (adapter.Provider, error) {
				return NewClaude(pc.APIKey, pc.Endpoint, claudeHTTP)
			},
		},
		{
			ID:              model.ProviderComfyUI,
			DefaultEndpoint: cfg.ComfyUI.Endpoint,
			MaxConcurrent:   cfg.ComfyUI.MaxConcurrent,
			New: func(_ context.Context, pc adapter.ProviderConfig) (adapter.Provider, error) {
				return NewComfyUI(pc.Endpoint, comfyHTTP), nil
			},
		},
	}

	out := make(map[model.ProviderID]adapter.ProviderSpec, len(specs))
	for _, s := range specs {
		out[s.ID] = s
	}
	return out
}
