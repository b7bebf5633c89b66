package repository

import (
	"context"

	"genhub/internal/domain/model"
)

type ConversationRepository interface {
	Create(ctx context.Context, tx Tx, c *model.Conversation) error
	// FindByID loads the conversation with its messages in append order.
	FindByID(ctx context.Context, tx Tx, id string) (*model.Conversation, error)
	List(ctx context.Context, tx Tx, offset, limit int) ([]*model.Conversation, error)
	// AppendMessage stores m and advances the conversation's updated_at.
	AppendMessage(ctx context.Context, tx Tx, m *model.Message) error
	Delete(ctx context.Context, tx Tx, id string) error
}
