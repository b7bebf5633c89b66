package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"genhub/internal/domain/model"
	"genhub/internal/domain/ports/adapter"
)

var _ adapter.ChatProvider = (*Claude)(nil)

const (
	claudeAPIVersion = "2023-06-01"
	claudeMaxTokens  = 4096
)

// Claude implements the Messages API over plain HTTP.
type Claude struct {
	c jsonClient
}

func NewClaude(apiKey, endpoint string, hc *http.Client) (*Claude, error) {
	if apiKey == "" {
		return nil, errors.New("claude: empty api key")
	}
	if endpoint == "" {
		endpoint = "https://api.anthropic.com"
	}
	c := newJSONClient(model.ProviderClaude, endpoint, hc, map[string]string{
		"x-api-key":         apiKey,
		"anthropic-version": claudeAPIVersion,
	})
	return &Claude{c: c}, nil
}

func (c *Claude) ID() model.ProviderID { return model.ProviderClaude }

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	System    string          `json:"system,omitempty"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (c *Claude) Chat(ctx context.Context, modelName string, messages []adapter.Message) (adapter.ChatResult, error) {
	req := claudeRequest{Model: modelName, MaxTokens: claudeMaxTokens}
	var system []string
	for _, m := range messages {
		if m.Role == model.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		req.Messages = append(req.Messages, claudeMessage{Role: m.Role, Content: m.Content})
	}
	req.System = strings.Join(system, "\n\n")

	var out claudeResponse
	if err := c.c.do(ctx, http.MethodPost, "/v1/messages", req, &out); err != nil {
		return adapter.ChatResult{}, err
	}
	var sb strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	res := adapter.ChatResult{Content: sb.String(), FinishReason: out.StopReason}
	if n := out.Usage.InputTokens + out.Usage.OutputTokens; n > 0 {
		res.TokensUsed = &n
	}
	return res, nil
}

func (c *Claude) ListModels(ctx context.Context) ([]string, error) {
	var out struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.c.do(ctx, http.MethodGet, "/v1/models", nil, &out); err != nil {
		return nil, err
	}
	ids := make([]string, len(out.Data))
	for i, m := range out.Data {
		ids[i] = m.ID
	}
	return ids, nil
}
