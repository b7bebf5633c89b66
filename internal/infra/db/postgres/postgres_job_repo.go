package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"genhub/internal/domain"
	"genhub/internal/domain/model"
	"genhub/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*jobRepo)(nil)

type jobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *jobRepo {
	return &jobRepo{pool: pool}
}

const jobColumns = `id, kind, provider, model, input, status, progress, remote_token, result_id,
  error, poll_attempts, created_at, updated_at, completed_at`

func (r *jobRepo) Create(ctx context.Context, tx repository.Tx, job *model.Job) error {
	const q = `
INSERT INTO jobs (` + jobColumns + `)
VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9, $10, $11, $12, $13, $14);`

	input := string(job.Input)
	if input == "" {
		input = "{}"
	}
	_, err := execSQL(ctx, r.pool, tx, q,
		job.ID, job.Kind, job.Provider, job.Model, input, job.Status, job.Progress,
		job.RemoteToken, job.ResultID, job.Error, job.PollAttempts,
		job.CreatedAt, job.UpdatedAt, job.CompletedAt)
	return translate(err)
}

func (r *jobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	row, err := queryRow(ctx, r.pool, tx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	job, err := scanJob(row)
	if err != nil {
		return nil, translate(err)
	}
	return job, nil
}

func (r *jobRepo) List(ctx context.Context, tx repository.Tx, statuses []model.JobStatus, limit int) ([]*model.Job, error) {
	q := `SELECT ` + jobColumns + ` FROM jobs`
	args := []interface{}{}
	if len(statuses) > 0 {
		ss := make([]string, 0, len(statuses)+1)
		for _, s := range statuses {
			ss = append(ss, string(s))
			if s == model.JobStatusCompleted {
				ss = append(ss, "complete")
			}
		}
		args = append(args, ss)
		q += ` WHERE status = ANY($1)`
	}
	args = append(args, limit)
	q += fmt.Sprintf(` ORDER BY created_at, id LIMIT $%d;`, len(args))

	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// Update is a compare-and-set on status. Zero rows means either the job is
// gone or another writer moved it first.
func (r *jobRepo) Update(ctx context.Context, tx repository.Tx, job *model.Job, expected model.JobStatus) error {
	const q = `
UPDATE jobs SET
  status = $2, progress = $3, remote_token = $4, result_id = $5, error = $6,
  poll_attempts = $7, updated_at = $8, completed_at = $9
WHERE id = $1 AND status = $10;`

	tag, err := execSQL(ctx, r.pool, tx, q,
		job.ID, job.Status, job.Progress, job.RemoteToken, job.ResultID, job.Error,
		job.PollAttempts, job.UpdatedAt, job.CompletedAt, expected)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	row, err := queryRow(ctx, r.pool, tx, `SELECT status FROM jobs WHERE id = $1;`, job.ID)
	if err != nil {
		return err
	}
	var current string
	if err := row.Scan(&current); err != nil {
		return translate(err)
	}
	return fmt.Errorf("job %s is %s, expected %s: %w", job.ID, current, expected, domain.ErrConflict)
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var (
		job    model.Job
		input  []byte
		status string
	)
	err := row.Scan(&job.ID, &job.Kind, &job.Provider, &job.Model, &input, &status, &job.Progress,
		&job.RemoteToken, &job.ResultID, &job.Error, &job.PollAttempts,
		&job.CreatedAt, &job.UpdatedAt, &job.CompletedAt)
	if err != nil {
		return nil, err
	}
	st, err := model.ParseJobStatus(status)
	if err != nil {
		return nil, err
	}
	job.Status = st
	job.Input = input
	return &job, nil
}
