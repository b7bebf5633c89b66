package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"genhub/internal/domain"
	"genhub/internal/domain/model"
	"genhub/internal/domain/ports/adapter"
	"genhub/internal/domain/ports/repository"
)

// Compile-time check
var _ ResultUseCase = (*resultUC)(nil)

type ResultUseCase interface {
	Get(ctx context.Context, id string) (*model.Result, error)
	GetByJob(ctx context.Context, jobID string) (*model.Result, error)
	List(ctx context.Context, offset, limit int) ([]*model.Result, error)
	Delete(ctx context.Context, id string) error
	// Artifact returns the bytes of one file of the result.
	Artifact(ctx context.Context, id string, index int) ([]byte, string, error)
}

type resultUC struct {
	results repository.ResultRepository
	store   adapter.ArtifactStore
	log     *zerolog.Logger
}

func NewResultUseCase(results repository.ResultRepository, store adapter.ArtifactStore, logger *zerolog.Logger) *resultUC {
	return &resultUC{results: results, store: store, log: logger}
}

func (r *resultUC) Get(ctx context.Context, id string) (*model.Result, error) {
	return r.results.FindByID(ctx, repository.NoTX, id)
}

func (r *resultUC) GetByJob(ctx context.Context, jobID string) (*model.Result, error) {
	return r.results.FindByJobID(ctx, repository.NoTX, jobID)
}

func (r *resultUC) List(ctx context.Context, offset, limit int) ([]*model.Result, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return r.results.List(ctx, repository.NoTX, offset, limit)
}

// Delete removes the row first, then its backing files. A file that is
// already gone is not an error.
func (r *resultUC) Delete(ctx context.Context, id string) error {
	res, err := r.results.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return err
	}
	if err := r.results.Delete(ctx, repository.NoTX, id); err != nil {
		return err
	}
	if r.store == nil || res.Type == model.ResultTypeText {
		return nil
	}
	var errs []error
	for _, key := range res.Files {
		if err := r.store.Delete(ctx, key); err != nil && !errors.Is(err, domain.ErrNotFound) {
			errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
		}
	}
	if len(errs) > 0 {
		err := errors.Join(errs...)
		r.log.Warn().Err(err).Str("result_id", id).Msg("result deleted, some files were left behind")
		return err
	}
	return nil
}

func (r *resultUC) Artifact(ctx context.Context, id string, index int) ([]byte, string, error) {
	res, err := r.results.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return nil, "", err
	}
	if index < 0 || index >= len(res.Files) {
		return nil, "", fmt.Errorf("result %s file %d: %w", id, index, domain.ErrNotFound)
	}
	if r.store == nil {
		return nil, "", fmt.Errorf("%w: no artifact store configured", domain.ErrNotConfigured)
	}
	return r.store.Get(ctx, res.Files[index])
}
