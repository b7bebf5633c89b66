package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"genhub/internal/domain"
	"genhub/internal/domain/model"
	"genhub/internal/domain/ports/repository"
)

var _ repository.ResultRepository = (*resultRepo)(nil)

type resultRepo struct {
	pool *pgxpool.Pool
}

func NewResultRepo(pool *pgxpool.Pool) *resultRepo {
	return &resultRepo{pool: pool}
}

const resultColumns = `id, job_id, type, content, files, width, height, created_at`

func (r *resultRepo) Create(ctx context.Context, tx repository.Tx, res *model.Result) error {
	const q = `INSERT INTO results (` + resultColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`
	files := res.Files
	if files == nil {
		files = []string{}
	}
	_, err := execSQL(ctx, r.pool, tx, q,
		res.ID, res.JobID, res.Type, res.Content, files, res.Width, res.Height, res.CreatedAt)
	return translate(err)
}

func (r *resultRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Result, error) {
	return r.findOne(ctx, tx, `SELECT `+resultColumns+` FROM results WHERE id = $1;`, id)
}

func (r *resultRepo) FindByJobID(ctx context.Context, tx repository.Tx, jobID string) (*model.Result, error) {
	return r.findOne(ctx, tx, `SELECT `+resultColumns+` FROM results WHERE job_id = $1;`, jobID)
}

func (r *resultRepo) findOne(ctx context.Context, tx repository.Tx, q string, arg string) (*model.Result, error) {
	row, err := queryRow(ctx, r.pool, tx, q, arg)
	if err != nil {
		return nil, err
	}
	res, err := scanResult(row)
	if err != nil {
		return nil, translate(err)
	}
	return res, nil
}

func (r *resultRepo) List(ctx context.Context, tx repository.Tx, offset, limit int) ([]*model.Result, error) {
	rows, err := queryRows(ctx, r.pool, tx,
		`SELECT `+resultColumns+` FROM results ORDER BY created_at DESC, id DESC OFFSET $1 LIMIT $2;`, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Result
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// Delete also clears the owning job's reference.
func (r *resultRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM results WHERE id = $1;`, id)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	_, err = execSQL(ctx, r.pool, tx, `UPDATE jobs SET result_id = '' WHERE result_id = $1;`, id)
	return translate(err)
}

func scanResult(row pgx.Row) (*model.Result, error) {
	var res model.Result
	if err := row.Scan(&res.ID, &res.JobID, &res.Type, &res.Content, &res.Files,
		&res.Width, &res.Height, &res.CreatedAt); err != nil {
		return nil, err
	}
	return &res, nil
}
