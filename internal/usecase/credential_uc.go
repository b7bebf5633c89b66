package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"genhub/internal/domain"
	"genhub/internal/domain/model"
	"genhub/internal/domain/ports/adapter"
	"genhub/internal/domain/ports/repository"
	"genhub/internal/infra/security"
)

// Vault encrypts secrets at rest.
type Vault interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(blob string) (string, error)
}

// ConnectionProber is satisfied by the gateway.
type ConnectionProber interface {
	TestConnection(ctx context.Context, provider model.ProviderID) error
}

// Compile-time checks
var (
	_ CredentialUseCase  = (*credentialUC)(nil)
	_ CredentialResolver = (*credentialResolver)(nil)
)

type CredentialUseCase interface {
	Save(ctx context.Context, provider model.ProviderID, secret, endpoint string) (*model.CredentialView, error)
	Get(ctx context.Context, provider model.ProviderID) (*model.CredentialView, error)
	List(ctx context.Context) ([]*model.CredentialView, error)
	Delete(ctx context.Context, provider model.ProviderID) error
	Test(ctx context.Context, provider model.ProviderID) (*model.CredentialView, error)
}

type credentialUC struct {
	repo   repository.CredentialRepository
	vault  Vault
	prober ConnectionProber
	now    func() time.Time
	log    *zerolog.Logger
}

func NewCredentialUseCase(repo repository.CredentialRepository, vault Vault, prober ConnectionProber, logger *zerolog.Logger) *credentialUC {
	return &credentialUC{repo: repo, vault: vault, prober: prober, now: time.Now, log: logger}
}

// Save encrypts secret and stores it. Empty secret or endpoint arguments keep
// the stored values, so either can be changed on its own.
func (c *credentialUC) Save(ctx context.Context, provider model.ProviderID, secret, endpoint string) (*model.CredentialView, error) {
	secret = strings.TrimSpace(secret)
	endpoint = strings.TrimSpace(endpoint)
	if secret == "" && endpoint == "" {
		return nil, domain.Invalid("secret", "or endpoint is required")
	}

	now := c.now().UTC()
	cred := &model.ProviderCredential{Provider: provider, Status: model.ConnectionUnknown, CreatedAt: now}
	existing, err := c.repo.FindByProvider(ctx, repository.NoTX, provider)
	switch {
	case err == nil:
		cred.EncryptedSecret = existing.EncryptedSecret
		cred.Endpoint = existing.Endpoint
		cred.CreatedAt = existing.CreatedAt
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	if secret != "" {
		blob, err := c.vault.Encrypt(secret)
		if err != nil {
			return nil, fmt.Errorf("encrypt %s secret: %w", provider, err)
		}
		cred.EncryptedSecret = blob
	}
	if endpoint != "" {
		cred.Endpoint = endpoint
	}
	cred.UpdatedAt = now
	if err := c.repo.Upsert(ctx, repository.NoTX, cred); err != nil {
		return nil, err
	}
	c.log.Info().Str("provider", string(provider)).Str("secret", security.Mask(secret)).Msg("credential saved")
	return c.view(cred), nil
}

func (c *credentialUC) Get(ctx context.Context, provider model.ProviderID) (*model.CredentialView, error) {
	cred, err := c.repo.FindByProvider(ctx, repository.NoTX, provider)
	if err != nil {
		return nil, err
	}
	return c.view(cred), nil
}

func (c *credentialUC) List(ctx context.Context) ([]*model.CredentialView, error) {
	creds, err := c.repo.List(ctx, repository.NoTX)
	if err != nil {
		return nil, err
	}
	out := make([]*model.CredentialView, 0, len(creds))
	for _, cred := range creds {
		out = append(out, c.view(cred))
	}
	return out, nil
}

// Delete removes the stored credential. Jobs that used it keep their history.
func (c *credentialUC) Delete(ctx context.Context, provider model.ProviderID) error {
	return c.repo.Delete(ctx, repository.NoTX, provider)
}

// Test probes the provider and records the outcome on the stored credential.
// The probe error, if any, is returned alongside the updated view.
func (c *credentialUC) Test(ctx context.Context, provider model.ProviderID) (*model.CredentialView, error) {
	probeErr := c.prober.TestConnection(ctx, provider)
	status := model.ConnectionConnected
	if probeErr != nil {
		status = model.ConnectionError
	}

	now := c.now().UTC()
	if err := c.repo.UpdateStatus(ctx, repository.NoTX, provider, status, now); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	view := &model.CredentialView{Provider: provider, Status: status, LastTestedAt: &now}
	if cred, err := c.repo.FindByProvider(ctx, repository.NoTX, provider); err == nil {
		view = c.view(cred)
	}
	if probeErr != nil {
		c.log.Warn().Err(probeErr).Str("provider", string(provider)).Msg("connection test failed")
	}
	return view, probeErr
}

// view never carries plaintext. A secret that no longer decrypts shows as
// the fixed mask.
func (c *credentialUC) view(cred *model.ProviderCredential) *model.CredentialView {
	v := &model.CredentialView{
		Provider:     cred.Provider,
		Endpoint:     cred.Endpoint,
		LastTestedAt: cred.LastTestedAt,
		Status:       cred.Status,
	}
	if cred.EncryptedSecret == "" {
		return v
	}
	plain, err := c.vault.Decrypt(cred.EncryptedSecret)
	if err != nil {
		v.MaskedSecret = security.Mask("")
		return v
	}
	v.MaskedSecret = security.Mask(plain)
	return v
}

// credentialResolver decrypts stored credentials for the gateway only.
type credentialResolver struct {
	repo  repository.CredentialRepository
	vault Vault
}

func NewCredentialResolver(repo repository.CredentialRepository, vault Vault) *credentialResolver {
	return &credentialResolver{repo: repo, vault: vault}
}

func (r *credentialResolver) Resolve(ctx context.Context, provider model.ProviderID) (adapter.ProviderConfig, error) {
	cred, err := r.repo.FindByProvider(ctx, repository.NoTX, provider)
	if err != nil {
		return adapter.ProviderConfig{}, err
	}
	cfg := adapter.ProviderConfig{Endpoint: cred.Endpoint}
	if cred.EncryptedSecret == "" {
		return cfg, nil
	}
	plain, err := r.vault.Decrypt(cred.EncryptedSecret)
	if err != nil {
		return adapter.ProviderConfig{}, fmt.Errorf("%w: %v", domain.ErrCorruptCredential, err)
	}
	cfg.APIKey = plain
	return cfg, nil
}
