package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"genhub/internal/domain"
	"genhub/internal/domain/model"
	"genhub/internal/domain/ports/repository"
)

var _ repository.ConversationRepository = (*conversationRepo)(nil)

type conversationRepo struct {
	pool *pgxpool.Pool
}

func NewConversationRepo(pool *pgxpool.Pool) *conversationRepo {
	return &conversationRepo{pool: pool}
}

func (r *conversationRepo) Create(ctx context.Context, tx repository.Tx, c *model.Conversation) error {
	const q = `
INSERT INTO conversations (id, provider, model, title, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6);`
	_, err := execSQL(ctx, r.pool, tx, q, c.ID, c.Provider, c.Model, c.Title, c.CreatedAt, c.UpdatedAt)
	return translate(err)
}

func (r *conversationRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Conversation, error) {
	row, err := queryRow(ctx, r.pool, tx,
		`SELECT id, provider, model, title, created_at, updated_at FROM conversations WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	var c model.Conversation
	if err := row.Scan(&c.ID, &c.Provider, &c.Model, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, translate(err)
	}

	rows, err := queryRows(ctx, r.pool, tx, `
SELECT id, conversation_id, role, content, tokens, created_at
FROM messages WHERE conversation_id = $1 ORDER BY seq;`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	c.Messages = []model.Message{}
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.Tokens, &m.CreatedAt); err != nil {
			return nil, err
		}
		c.Messages = append(c.Messages, m)
	}
	return &c, rows.Err()
}

// List returns the most recently active conversations first, without messages.
func (r *conversationRepo) List(ctx context.Context, tx repository.Tx, offset, limit int) ([]*model.Conversation, error) {
	rows, err := queryRows(ctx, r.pool, tx, `
SELECT id, provider, model, title, created_at, updated_at
FROM conversations ORDER BY updated_at DESC, id OFFSET $1 LIMIT $2;`, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Conversation
	for rows.Next() {
		var c model.Conversation
		if err := rows.Scan(&c.ID, &c.Provider, &c.Model, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (r *conversationRepo) AppendMessage(ctx context.Context, tx repository.Tx, m *model.Message) error {
	const q = `
WITH ins AS (
  INSERT INTO messages (id, conversation_id, role, content, tokens, created_at)
  VALUES ($1, $2, $3, $4, $5, $6)
  RETURNING conversation_id, created_at
)
UPDATE conversations c SET updated_at = GREATEST(c.updated_at, ins.created_at)
FROM ins WHERE c.id = ins.conversation_id;`
	_, err := execSQL(ctx, r.pool, tx, q, m.ID, m.ConversationID, m.Role, m.Content, m.Tokens, m.CreatedAt)
	return translate(err)
}

func (r *conversationRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM conversations WHERE id = $1;`, id)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
