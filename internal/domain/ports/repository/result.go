package repository

import (
	"context"

	"genhub/internal/domain/model"
)

type ResultRepository interface {
	Create(ctx context.Context, tx Tx, r *model.Result) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Result, error)
	FindByJobID(ctx context.Context, tx Tx, jobID string) (*model.Result, error)
	List(ctx context.Context, tx Tx, offset, limit int) ([]*model.Result, error)
	Delete(ctx context.Context, tx Tx, id string) error
}
