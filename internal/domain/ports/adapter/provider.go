package adapter

import (
	"context"

	"genhub/internal/domain/model"
)

// Message represents a chat turn.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// ChatResult is the normalized reply of any chat backend.
type ChatResult struct {
	Content      string `json:"content"`
	TokensUsed   *int   `json:"tokens_used,omitempty"`
	FinishReason string `json:"finish_reason"`
}

// ImageParams are the structured generation parameters shared by image backends.
type ImageParams struct {
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Steps     int     `json:"steps"`
	CFGScale  float64 `json:"cfg_scale"`
	Sampler   string  `json:"sampler"`
	Scheduler string  `json:"scheduler,omitempty"`
	Seed      int64   `json:"seed"` // -1 picks a random seed
	BatchSize int     `json:"batch_size"`
}

type ImageRequest struct {
	Prompt         string      `json:"prompt"`
	NegativePrompt string      `json:"negative_prompt,omitempty"`
	Params         ImageParams `json:"params"`
}

// Artifact references one output file. Backends that return bytes inline fill
// Data; the rest are fetched later through FetchArtifact.
type Artifact struct {
	Filename    string `json:"filename"`
	Subfolder   string `json:"subfolder,omitempty"`
	Type        string `json:"type,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Data        []byte `json:"-"`
}

// Submission is what a backend hands back when it accepts an image job.
type Submission struct {
	Token     string
	Artifacts []Artifact // non-empty only for synchronous backends
}

type RemoteState string

const (
	RemoteQueued    RemoteState = "queued"
	RemoteRunning   RemoteState = "running"
	RemoteCompleted RemoteState = "completed"
	RemoteFailed    RemoteState = "failed"
)

type RemoteStatus struct {
	State     RemoteState
	Progress  *int
	Artifacts []Artifact
	Error     string
}

// LoadedModel is a model currently resident in a local daemon.
type LoadedModel struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"size"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// Provider is the base of every backend adapter.
type Provider interface {
	ID() model.ProviderID
	ListModels(ctx context.Context) ([]string, error)
}

type ChatProvider interface {
	Provider
	Chat(ctx context.Context, model string, messages []Message) (ChatResult, error)
}

type ImageProvider interface {
	Provider
	SubmitImage(ctx context.Context, model string, req ImageRequest) (Submission, error)
	ImageStatus(ctx context.Context, token string) (RemoteStatus, error)
	FetchArtifact(ctx context.Context, a Artifact) ([]byte, string, error)
}

// ModelManager is implemented by local daemons that load models on demand.
type ModelManager interface {
	LoadedModels(ctx context.Context) ([]LoadedModel, error)
	UnloadModel(ctx context.Context, model string) error
}

// ProviderConfig is the per-request configuration an adapter is built from.
type ProviderConfig struct {
	APIKey   string
	Endpoint string
}

type ProviderFactory func(ctx context.Context, cfg ProviderConfig) (Provider, error)

// ProviderSpec registers one backend variant.
type ProviderSpec struct {
	ID              model.ProviderID
	NeedsCredential bool
	DefaultEndpoint string
	MaxConcurrent   int
	New             ProviderFactory
}
