package usecase

import (
	"context"
	"strings"
	"time"

	"genhub/internal/domain"
	"genhub/internal/domain/model"
	"genhub/internal/domain/ports/repository"
)

// Compile-time check
var _ ConversationUseCase = (*conversationUC)(nil)

type ConversationUseCase interface {
	Create(ctx context.Context, provider model.ProviderID, modelName, title string) (*model.Conversation, error)
	Get(ctx context.Context, id string) (*model.Conversation, error)
	List(ctx context.Context, offset, limit int) ([]*model.Conversation, error)
	Append(ctx context.Context, id, role, content string) (*model.Message, error)
	Delete(ctx context.Context, id string) error
}

type conversationUC struct {
	repo repository.ConversationRepository
	now  func() time.Time
}

func NewConversationUseCase(repo repository.ConversationRepository) *conversationUC {
	return &conversationUC{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

func (c *conversationUC) Create(ctx context.Context, provider model.ProviderID, modelName, title string) (*model.Conversation, error) {
	if _, err := model.ParseProviderID(string(provider)); err != nil {
		return nil, err
	}
	if strings.TrimSpace(modelName) == "" {
		return nil, domain.Invalid("model", "is required")
	}
	if title = strings.TrimSpace(title); title == "" {
		title = "New conversation"
	}
	conv := model.NewConversation(newID(), provider, modelName, title, c.now())
	if err := c.repo.Create(ctx, repository.NoTX, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (c *conversationUC) Get(ctx context.Context, id string) (*model.Conversation, error) {
	return c.repo.FindByID(ctx, repository.NoTX, id)
}

func (c *conversationUC) List(ctx context.Context, offset, limit int) ([]*model.Conversation, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return c.repo.List(ctx, repository.NoTX, offset, limit)
}

// Append adds a message without calling any provider, e.g. to seed a system
// prompt.
func (c *conversationUC) Append(ctx context.Context, id, role, content string) (*model.Message, error) {
	if !model.ValidRole(role) {
		return nil, domain.Invalid("role", "must be user, assistant or system")
	}
	if strings.TrimSpace(content) == "" {
		return nil, domain.Invalid("content", "is required")
	}
	conv, err := c.repo.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return nil, err
	}
	m := conv.AddMessage(newID(), role, content, 0, c.now())
	if err := c.repo.AppendMessage(ctx, repository.NoTX, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *conversationUC) Delete(ctx context.Context, id string) error {
	return c.repo.Delete(ctx, repository.NoTX, id)
}
