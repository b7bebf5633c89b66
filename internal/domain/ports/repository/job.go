package repository

import (
	"context"

	"genhub/internal/domain/model"
)

type JobRepository interface {
	Create(ctx context.Context, tx Tx, job *model.Job) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Job, error)
	// List returns jobs whose status is in statuses (all when empty), oldest first.
	List(ctx context.Context, tx Tx, statuses []model.JobStatus, limit int) ([]*model.Job, error)
	// Update writes job only if the stored status still equals expected.
	// It returns domain.ErrConflict when another writer got there first.
	Update(ctx context.Context, tx Tx, job *model.Job, expected model.JobStatus) error
}
