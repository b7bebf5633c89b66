package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"genhub/internal/domain"
	"genhub/internal/domain/model"
	"genhub/internal/domain/ports/adapter"
	"genhub/internal/infra/metrics"
	"genhub/internal/infra/telemetry"
)

// CredentialResolver hands the gateway a usable provider configuration.
// It returns domain.ErrNotFound when nothing is stored for the provider.
type CredentialResolver interface {
	Resolve(ctx context.Context, provider model.ProviderID) (adapter.ProviderConfig, error)
}

// TokenEstimator approximates token usage when a backend reports none.
type TokenEstimator func(messages []adapter.Message, reply string) int

// ProviderModels is one provider's entry in a multi-provider model listing.
type ProviderModels struct {
	Provider model.ProviderID `json:"provider"`
	Models   []string         `json:"models"`
	Error    string           `json:"error,omitempty"`
}

// Gateway is the single entry point for provider calls. Each call resolves the
// provider's configuration, builds the adapter and runs under the provider's
// concurrency cap.
type Gateway struct {
	specs    map[model.ProviderID]adapter.ProviderSpec
	creds    CredentialResolver
	estimate TokenEstimator
	log      *zerolog.Logger
	tracer   trace.Tracer

	mu   sync.Mutex
	sems map[model.ProviderID]chan struct{}
}

func NewGateway(specs map[model.ProviderID]adapter.ProviderSpec, creds CredentialResolver, estimate TokenEstimator, logger *zerolog.Logger) *Gateway {
	return &Gateway{
		specs:    specs,
		creds:    creds,
		estimate: estimate,
		log:      logger,
		tracer:   telemetry.Tracer("genhub/gateway"),
		sems:     make(map[model.ProviderID]chan struct{}),
	}
}

// Providers lists the registered provider ids in stable order.
func (g *Gateway) Providers() []model.ProviderID {
	ids := make([]model.ProviderID, 0, len(g.specs))
	for id := range g.specs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (g *Gateway) Chat(ctx context.Context, provider model.ProviderID, modelName string, messages []adapter.Message) (adapter.ChatResult, error) {
	if err := ValidateChat(modelName, messages); err != nil {
		return adapter.ChatResult{}, err
	}
	var res adapter.ChatResult
	err := g.call(ctx, provider, "chat", func(ctx context.Context, p adapter.Provider) error {
		cp, ok := p.(adapter.ChatProvider)
		if !ok {
			return fmt.Errorf("%w: %s has no chat", domain.ErrUnsupported, provider)
		}
		var err error
		res, err = cp.Chat(ctx, modelName, messages)
		return err
	})
	if err != nil {
		return adapter.ChatResult{}, err
	}
	if res.TokensUsed == nil && g.estimate != nil {
		n := g.estimate(messages, res.Content)
		res.TokensUsed = &n
	}
	if res.TokensUsed != nil {
		metrics.AddTokens(string(provider), modelName, *res.TokensUsed)
	}
	return res, nil
}

func (g *Gateway) SubmitImage(ctx context.Context, provider model.ProviderID, modelName string, req adapter.ImageRequest) (adapter.Submission, error) {
	req, err := NormalizeImageRequest(modelName, req)
	if err != nil {
		return adapter.Submission{}, err
	}
	var sub adapter.Submission
	err = g.withImage(ctx, provider, "submit_image", func(ctx context.Context, ip adapter.ImageProvider) error {
		var err error
		sub, err = ip.SubmitImage(ctx, modelName, req)
		return err
	})
	return sub, err
}

func (g *Gateway) ImageStatus(ctx context.Context, provider model.ProviderID, token string) (adapter.RemoteStatus, error) {
	if strings.TrimSpace(token) == "" {
		return adapter.RemoteStatus{}, domain.Invalid("token", "is required")
	}
	var st adapter.RemoteStatus
	err := g.withImage(ctx, provider, "image_status", func(ctx context.Context, ip adapter.ImageProvider) error {
		var err error
		st, err = ip.ImageStatus(ctx, token)
		return err
	})
	return st, err
}

func (g *Gateway) FetchArtifact(ctx context.Context, provider model.ProviderID, a adapter.Artifact) ([]byte, string, error) {
	if len(a.Data) > 0 {
		return a.Data, a.ContentType, nil
	}
	var (
		data []byte
		ct   string
	)
	err := g.withImage(ctx, provider, "fetch_artifact", func(ctx context.Context, ip adapter.ImageProvider) error {
		var err error
		data, ct, err = ip.FetchArtifact(ctx, a)
		return err
	})
	return data, ct, err
}

func (g *Gateway) ListModels(ctx context.Context, provider model.ProviderID) ([]string, error) {
	var names []string
	err := g.call(ctx, provider, "list_models", func(ctx context.Context, p adapter.Provider) error {
		var err error
		names, err = p.ListModels(ctx)
		return err
	})
	return names, err
}

// ListAllModels queries every provider in parallel. A provider failure is
// reported in its entry and does not fail the listing.
func (g *Gateway) ListAllModels(ctx context.Context) []ProviderModels {
	ids := g.Providers()
	out := make([]ProviderModels, len(ids))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, id := range ids {
		eg.Go(func() error {
			names, err := g.ListModels(egCtx, id)
			out[i] = ProviderModels{Provider: id, Models: names}
			if err != nil {
				out[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = eg.Wait()
	return out
}

// TestConnection probes the provider with a model listing.
func (g *Gateway) TestConnection(ctx context.Context, provider model.ProviderID) error {
	_, err := g.ListModels(ctx, provider)
	return err
}

func (g *Gateway) LoadedModels(ctx context.Context, provider model.ProviderID) ([]adapter.LoadedModel, error) {
	var loaded []adapter.LoadedModel
	err := g.withManager(ctx, provider, "loaded_models", func(ctx context.Context, mm adapter.ModelManager) error {
		var err error
		loaded, err = mm.LoadedModels(ctx)
		return err
	})
	return loaded, err
}

func (g *Gateway) UnloadModel(ctx context.Context, provider model.ProviderID, modelName string) error {
	if strings.TrimSpace(modelName) == "" {
		return domain.Invalid("model", "is required")
	}
	return g.withManager(ctx, provider, "unload_model", func(ctx context.Context, mm adapter.ModelManager) error {
		return mm.UnloadModel(ctx, modelName)
	})
}

func (g *Gateway) withImage(ctx context.Context, provider model.ProviderID, op string, fn func(context.Context, adapter.ImageProvider) error) error {
	return g.call(ctx, provider, op, func(ctx context.Context, p adapter.Provider) error {
		ip, ok := p.(adapter.ImageProvider)
		if !ok {
			return fmt.Errorf("%w: %s has no image generation", domain.ErrUnsupported, provider)
		}
		return fn(ctx, ip)
	})
}

func (g *Gateway) withManager(ctx context.Context, provider model.ProviderID, op string, fn func(context.Context, adapter.ModelManager) error) error {
	return g.call(ctx, provider, op, func(ctx context.Context, p adapter.Provider) error {
		mm, ok := p.(adapter.ModelManager)
		if !ok {
			return fmt.Errorf("%w: %s does not manage loaded models", domain.ErrUnsupported, provider)
		}
		return fn(ctx, mm)
	})
}

// call resolves, builds and invokes one adapter under tracing, metrics and
// the provider's concurrency cap.
func (g *Gateway) call(ctx context.Context, provider model.ProviderID, op string, fn func(context.Context, adapter.Provider) error) (err error) {
	spec, ok := g.specs[provider]
	if !ok {
		return domain.Invalid("provider", fmt.Sprintf("%q is not supported", provider))
	}

	ctx, span := g.tracer.Start(ctx, "provider."+op, trace.WithAttributes(
		attribute.String("provider", string(provider)),
	))
	start := time.Now()
	defer func() {
		metrics.ObserveProviderCall(string(provider), op, time.Since(start), err == nil)
		if err != nil {
			metrics.IncProviderError(string(provider), domain.Kind(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, domain.Kind(err))
		}
		span.End()
	}()

	cfg, err := g.resolve(ctx, spec)
	if err != nil {
		return err
	}
	p, err := spec.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrNotConfigured, provider, err)
	}

	release, err := g.acquire(ctx, spec)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx, p)
}

func (g *Gateway) resolve(ctx context.Context, spec adapter.ProviderSpec) (adapter.ProviderConfig, error) {
	cfg := adapter.ProviderConfig{Endpoint: spec.DefaultEndpoint}
	if g.creds == nil {
		if spec.NeedsCredential {
			return cfg, fmt.Errorf("%w: %s has no stored credential", domain.ErrNotConfigured, spec.ID)
		}
		return cfg, nil
	}

	stored, err := g.creds.Resolve(ctx, spec.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		if spec.NeedsCredential {
			return cfg, fmt.Errorf("%w: %s has no stored credential", domain.ErrNotConfigured, spec.ID)
		}
		return cfg, nil
	case errors.Is(err, domain.ErrCorruptCredential):
		g.log.Error().Str("provider", string(spec.ID)).Msg("corrupted credential, re-save it to use this provider")
		return cfg, fmt.Errorf("%w: %w", domain.ErrNotConfigured, domain.ErrCorruptCredential)
	case err != nil:
		return cfg, err
	}

	if stored.Endpoint != "" {
		cfg.Endpoint = stored.Endpoint
	}
	cfg.APIKey = stored.APIKey
	if spec.NeedsCredential && cfg.APIKey == "" {
		return cfg, fmt.Errorf("%w: %s has no stored credential", domain.ErrNotConfigured, spec.ID)
	}
	return cfg, nil
}

func (g *Gateway) acquire(ctx context.Context, spec adapter.ProviderSpec) (func(), error) {
	if spec.MaxConcurrent <= 0 {
		return func() {}, nil
	}
	g.mu.Lock()
	sem, ok := g.sems[spec.ID]
	if !ok {
		sem = make(chan struct{}, spec.MaxConcurrent)
		g.sems[spec.ID] = sem
	}
	g.mu.Unlock()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: waiting for a %s slot", domain.ErrTimeout, spec.ID)
	}
}

// ValidateChat rejects malformed chat input before any network call.
func ValidateChat(modelName string, messages []adapter.Message) error {
	if strings.TrimSpace(modelName) == "" {
		return domain.Invalid("model", "is required")
	}
	if len(messages) == 0 {
		return domain.Invalid("messages", "must not be empty")
	}
	for i, m := range messages {
		if !model.ValidRole(m.Role) {
			return domain.Invalid(fmt.Sprintf("messages[%d].role", i), fmt.Sprintf("%q is not one of user, assistant, system", m.Role))
		}
	}
	return nil
}

// DefaultImageParams are the parameters request decoding starts from, so
// omitted fields take sensible values while explicit zeros are rejected.
func DefaultImageParams() adapter.ImageParams {
	return adapter.ImageParams{
		Width:     512,
		Height:    512,
		Steps:     20,
		CFGScale:  7,
		Sampler:   "euler",
		Seed:      -1,
		BatchSize: 1,
	}
}

// NormalizeImageRequest validates req and resolves a random seed (-1) to a
// concrete one. Calling it twice is harmless.
func NormalizeImageRequest(modelName string, req adapter.ImageRequest) (adapter.ImageRequest, error) {
	if strings.TrimSpace(modelName) == "" {
		return req, domain.Invalid("model", "is required")
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		return req, domain.Invalid("prompt", "is required")
	}
	p := &req.Params
	if p.Sampler == "" {
		p.Sampler = "euler"
	}
	switch {
	case p.Width <= 0 || p.Height <= 0:
		return req, domain.Invalid("params.width/height", "must be positive")
	case p.Steps <= 0:
		return req, domain.Invalid("params.steps", "must be positive")
	case p.BatchSize <= 0:
		return req, domain.Invalid("params.batch_size", "must be positive")
	case p.CFGScale < 0:
		return req, domain.Invalid("params.cfg_scale", "must not be negative")
	case p.Seed < -1:
		return req, domain.Invalid("params.seed", "must be -1 (random) or non-negative")
	}
	if p.Seed == -1 {
		p.Seed = rand.Int64N(1 << 48)
	}
	return req, nil
}
