package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"genhub/internal/domain"
	"genhub/internal/domain/model"
	"genhub/internal/domain/ports/repository"
)

var _ repository.CredentialRepository = (*credentialRepo)(nil)

type credentialRepo struct {
	pool *pgxpool.Pool
}

func NewCredentialRepo(pool *pgxpool.Pool) *credentialRepo {
	return &credentialRepo{pool: pool}
}

const credentialColumns = `provider, encrypted_secret, endpoint, last_tested_at, status, created_at, updated_at`

// Upsert replaces secret and endpoint and resets the connection status, since
// a changed credential has not been tested yet.
func (r *credentialRepo) Upsert(ctx context.Context, tx repository.Tx, c *model.ProviderCredential) error {
	const q = `
INSERT INTO provider_credentials (` + credentialColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (provider) DO UPDATE SET
  encrypted_secret = EXCLUDED.encrypted_secret,
  endpoint = EXCLUDED.endpoint,
  status = EXCLUDED.status,
  updated_at = EXCLUDED.updated_at;`
	_, err := execSQL(ctx, r.pool, tx, q,
		c.Provider, c.EncryptedSecret, c.Endpoint, c.LastTestedAt, c.Status, c.CreatedAt, c.UpdatedAt)
	return translate(err)
}

func (r *credentialRepo) FindByProvider(ctx context.Context, tx repository.Tx, provider model.ProviderID) (*model.ProviderCredential, error) {
	row, err := queryRow(ctx, r.pool, tx, `SELECT `+credentialColumns+` FROM provider_credentials WHERE provider = $1;`, provider)
	if err != nil {
		return nil, err
	}
	c, err := scanCredential(row)
	if err != nil {
		return nil, translate(err)
	}
	return c, nil
}

func (r *credentialRepo) List(ctx context.Context, tx repository.Tx) ([]*model.ProviderCredential, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT `+credentialColumns+` FROM provider_credentials ORDER BY provider;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.ProviderCredential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *credentialRepo) Delete(ctx context.Context, tx repository.Tx, provider model.ProviderID) error {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM provider_credentials WHERE provider = $1;`, provider)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *credentialRepo) UpdateStatus(ctx context.Context, tx repository.Tx, provider model.ProviderID, status model.ConnectionStatus, testedAt time.Time) error {
	tag, err := execSQL(ctx, r.pool, tx,
		`UPDATE provider_credentials SET status = $2, last_tested_at = $3 WHERE provider = $1;`,
		provider, status, testedAt)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanCredential(row pgx.Row) (*model.ProviderCredential, error) {
	var c model.ProviderCredential
	if err := row.Scan(&c.Provider, &c.EncryptedSecret, &c.Endpoint, &c.LastTestedAt,
		&c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
