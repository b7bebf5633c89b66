package repository

import (
	"context"
	"time"

	"genhub/internal/domain/model"
)

type CredentialRepository interface {
	Upsert(ctx context.Context, tx Tx, c *model.ProviderCredential) error
	FindByProvider(ctx context.Context, tx Tx, provider model.ProviderID) (*model.ProviderCredential, error)
	List(ctx context.Context, tx Tx) ([]*model.ProviderCredential, error)
	Delete(ctx context.Context, tx Tx, provider model.ProviderID) error
	UpdateStatus(ctx context.Context, tx Tx, provider model.ProviderID, status model.ConnectionStatus, testedAt time.Time) error
}
