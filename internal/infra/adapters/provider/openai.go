package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"genhub/internal/domain"
	"genhub/internal/domain/model"
	"genhub/internal/domain/ports/adapter"
)

var (
	_ adapter.ChatProvider  = (*OpenAI)(nil)
	_ adapter.ImageProvider = (*OpenAI)(nil)
)

// OpenAI covers chat completions and image generation through the official
// SDK. Image generation is synchronous: the submission already carries the
// decoded artifacts.
type OpenAI struct {
	client openai.Client
}

func NewOpenAI(apiKey, endpoint string, hc *http.Client) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("openai: empty api key")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if endpoint != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(endpoint, "/")+"/"))
	}
	if hc != nil {
		opts = append(opts, option.WithHTTPClient(hc))
	}
	return &OpenAI{client: openai.NewClient(opts...)}, nil
}

func (o *OpenAI) ID() model.ProviderID { return model.ProviderOpenAI }

func (o *OpenAI) Chat(ctx context.Context, modelName string, messages []adapter.Message) (adapter.ChatResult, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(modelName),
		Messages: toOpenAIMessages(messages),
	}
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return adapter.ChatResult{}, o.mapError(err)
	}
	if len(resp.Choices) == 0 {
		return adapter.ChatResult{}, &domain.UpstreamError{Provider: string(model.ProviderOpenAI), StatusCode: http.StatusOK, Body: "no choices in response"}
	}
	choice := resp.Choices[0]
	res := adapter.ChatResult{Content: choice.Message.Content, FinishReason: string(choice.FinishReason)}
	if n := int(resp.Usage.TotalTokens); n > 0 {
		res.TokensUsed = &n
	}
	return res, nil
}

func toOpenAIMessages(msgs []adapter.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case model.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case model.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func (o *OpenAI) ListModels(ctx context.Context) ([]string, error) {
	page, err := o.client.Models.List(ctx)
	if err != nil {
		return nil, o.mapError(err)
	}
	ids := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (o *OpenAI) SubmitImage(ctx context.Context, modelName string, req adapter.ImageRequest) (adapter.Submission, error) {
	prompt := req.Prompt
	if req.NegativePrompt != "" {
		prompt += "\n\nAvoid: " + req.NegativePrompt
	}
	n := req.Params.BatchSize
	if n <= 0 {
		n = 1
	}
	resp, err := o.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openai.ImageModel(modelName),
		N:              openai.Int(int64(n)),
		Size:           openai.ImageGenerateParamsSize(fmt.Sprintf("%dx%d", req.Params.Width, req.Params.Height)),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
	})
	if err != nil {
		return adapter.Submission{}, o.mapError(err)
	}

	token := uuid.NewString()
	sub := adapter.Submission{Token: token}
	for i, img := range resp.Data {
		data, err := base64.StdEncoding.DecodeString(img.B64JSON)
		if err != nil {
			return adapter.Submission{}, &domain.UpstreamError{Provider: string(model.ProviderOpenAI), StatusCode: http.StatusOK, Body: "image payload is not base64"}
		}
		sub.Artifacts = append(sub.Artifacts, adapter.Artifact{
			Filename:    fmt.Sprintf("%s_%02d.png", token, i),
			Type:        "output",
			ContentType: "image/png",
			Data:        data,
		})
	}
	if len(sub.Artifacts) == 0 {
		return adapter.Submission{}, &domain.UpstreamError{Provider: string(model.ProviderOpenAI), StatusCode: http.StatusOK, Body: "no images in response"}
	}
	return sub, nil
}

// ImageStatus is only reached for a job whose synchronous submission was
// already settled; nothing is pending on the OpenAI side.
func (o *OpenAI) ImageStatus(ctx context.Context, token string) (adapter.RemoteStatus, error) {
	return adapter.RemoteStatus{}, fmt.Errorf("%w: openai image generation is synchronous", domain.ErrUnsupported)
}

func (o *OpenAI) FetchArtifact(ctx context.Context, a adapter.Artifact) ([]byte, string, error) {
	if len(a.Data) > 0 {
		return a.Data, a.ContentType, nil
	}
	return nil, "", fmt.Errorf("%w: openai artifacts are returned inline", domain.ErrUnsupported)
}

func (o *OpenAI) mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return statusError(model.ProviderOpenAI, apiErr.StatusCode, apiErr.Message)
	}
	return classifyError(model.ProviderOpenAI, err)
}
