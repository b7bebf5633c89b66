package model

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

func ValidRole(r string) bool {
	return r == RoleUser || r == RoleAssistant || r == RoleSystem
}

// Message is one entry of a conversation's append-only log.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	Tokens         int       `json:"tokens"`
	CreatedAt      time.Time `json:"created_at"`
}

// Conversation is tied to a single (provider, model) pair.
type Conversation struct {
	ID        string     `json:"id"`
	Provider  ProviderID `json:"provider"`
	Model     string     `json:"model"`
	Title     string     `json:"title"`
	Messages  []Message  `json:"messages,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func NewConversation(id string, provider ProviderID, model, title string, now time.Time) *Conversation {
	return &Conversation{
		ID:        id,
		Provider:  provider,
		Model:     model,
		Title:     title,
		Messages:  make([]Message, 0, 8),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddMessage appends to the log and advances UpdatedAt.
func (c *Conversation) AddMessage(id, role, content string, tokens int, now time.Time) Message {
	m := Message{
		ID:             id,
		ConversationID: c.ID,
		Role:           role,
		Content:        content,
		Tokens:         tokens,
		CreatedAt:      now,
	}
	c.Messages = append(c.Messages, m)
	c.UpdatedAt = now
	return m
}

func (c *Conversation) RecentMessages(n int) []Message {
	if n <= 0 || len(c.Messages) <= n {
		return c.Messages
	}
	return c.Messages[len(c.Messages)-n:]
}
