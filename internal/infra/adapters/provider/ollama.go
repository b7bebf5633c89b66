package provider

import (
	"context"
	"net/http"

	"genhub/internal/domain/model"
	"genhub/internal/domain/ports/adapter"
)

var (
	_ adapter.ChatProvider = (*Ollama)(nil)
	_ adapter.ModelManager = (*Ollama)(nil)
)

// Ollama talks to a local Ollama daemon. No credential is needed.
type Ollama struct {
	c jsonClient
}

func NewOllama(endpoint string, hc *http.Client) *Ollama {
	return &Ollama{c: newJSONClient(model.ProviderOllama, endpoint, hc, nil)}
}

func (o *Ollama) ID() model.ProviderID { return model.ProviderOllama }

type ollamaChatRequest struct {
	Model    string            `json:"model"`
	Messages []adapter.Message `json:"messages"`
	Stream   bool              `json:"stream"`
}

type ollamaChatResponse struct {
	Message         adapter.Message `json:"message"`
	Done            bool            `json:"done"`
	DoneReason      string          `json:"done_reason"`
	PromptEvalCount int             `json:"prompt_eval_count"`
	EvalCount       int             `json:"eval_count"`
}

func (o *Ollama) Chat(ctx context.Context, modelName string, messages []adapter.Message) (adapter.ChatResult, error) {
	var out ollamaChatResponse
	err := o.c.do(ctx, http.MethodPost, "/api/chat", ollamaChatRequest{
		Model:    modelName,
		Messages: messages,
		Stream:   false,
	}, &out)
	if err != nil {
		return adapter.ChatResult{}, err
	}
	res := adapter.ChatResult{Content: out.Message.Content, FinishReason: out.DoneReason}
	if res.FinishReason == "" && out.Done {
		res.FinishReason = "stop"
	}
	if n := out.PromptEvalCount + out.EvalCount; n > 0 {
		res.TokensUsed = &n
	}
	return res, nil
}

type ollamaModel struct {
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	ExpiresAt string `json:"expires_at"`
}

type ollamaModelList struct {
	Models []ollamaModel `json:"models"`
}

func (o *Ollama) ListModels(ctx context.Context) ([]string, error) {
	var out ollamaModelList
	if err := o.c.do(ctx, http.MethodGet, "/api/tags", nil, &out); err != nil {
		return nil, err
	}
	names := make([]string, len(out.Models))
	for i, m := range out.Models {
		names[i] = m.Name
	}
	return names, nil
}

// LoadedModels lists the models currently held in memory (GET /api/ps).
func (o *Ollama) LoadedModels(ctx context.Context) ([]adapter.LoadedModel, error) {
	var out ollamaModelList
	if err := o.c.do(ctx, http.MethodGet, "/api/ps", nil, &out); err != nil {
		return nil, err
	}
	loaded := make([]adapter.LoadedModel, len(out.Models))
	for i, m := range out.Models {
		loaded[i] = adapter.LoadedModel{Name: m.Name, SizeBytes: m.Size, ExpiresAt: m.ExpiresAt}
	}
	return loaded, nil
}

// UnloadModel evicts a model by sending an empty generate with keep_alive 0.
func (o *Ollama) UnloadModel(ctx context.Context, modelName string) error {
	body := struct {
		Model     string `json:"model"`
		KeepAlive int    `json:"keep_alive"`
	}{Model: modelName}
	return o.c.do(ctx, http.MethodPost, "/api/generate", body, nil)
}
