package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"genhub/internal/domain/model"
	"genhub/internal/domain/ports/adapter"
)

var _ adapter.ChatProvider = (*Gemini)(nil)

type Gemini struct {
	client *genai.Client
}

// NewGemini creates a Gemini adapter using the official SDK.
func NewGemini(ctx context.Context, apiKey, endpoint string, hc *http.Client) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: hc,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: endpoint,
		},
	})
	if err != nil {
		return nil, err
	}
	return &Gemini{client: c}, nil
}

func (g *Gemini) ID() model.ProviderID { return model.ProviderGemini }

func (g *Gemini) Chat(ctx context.Context, modelName string, messages []adapter.Message) (adapter.ChatResult, error) {
	contents, system := toGenAIContents(messages)
	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, modelName, contents, cfg)
	if err != nil {
		return adapter.ChatResult{}, g.mapError(err)
	}
	res := adapter.ChatResult{Content: resp.Text()}
	if len(resp.Candidates) > 0 {
		res.FinishReason = strings.ToLower(string(resp.Candidates[0].FinishReason))
	}
	if resp.UsageMetadata != nil && resp.UsageMetadata.TotalTokenCount > 0 {
		n := int(resp.UsageMetadata.TotalTokenCount)
		res.TokensUsed = &n
	}
	return res, nil
}

// toGenAIContents maps chat history onto Gemini contents. System turns are
// folded into the SystemInstruction since Gemini history has no such role.
func toGenAIContents(msgs []adapter.Message) ([]*genai.Content, string) {
	out := make([]*genai.Content, 0, len(msgs))
	var system []string
	for _, m := range msgs {
		var role genai.Role = genai.RoleUser
		switch m.Role {
		case model.RoleSystem:
			system = append(system, m.Content)
			continue
		case model.RoleAssistant:
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromText(m.Content, role))
	}
	return out, strings.Join(system, "\n\n")
}

func (g *Gemini) ListModels(ctx context.Context) ([]string, error) {
	var out []string
	for m, err := range g.client.Models.All(ctx) {
		if err != nil {
			return nil, g.mapError(err)
		}
		if m.Name != "" {
			out = append(out, strings.TrimPrefix(m.Name, "models/"))
		}
	}
	return out, nil
}

func (g *Gemini) mapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return statusError(model.ProviderGemini, apiErr.Code, apiErr.Message)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return statusError(model.ProviderGemini, apiErrPtr.Code, apiErrPtr.Message)
	}
	return classifyError(model.ProviderGemini, err)
}
