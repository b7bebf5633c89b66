package events

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"genhub/internal/config"
	"genhub/internal/domain/model"
	"genhub/internal/domain/ports/adapter"
)

var _ adapter.Notifier = (*TelegramNotifier)(nil)

type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts a short line to a chat when a job finishes.
type TelegramNotifier struct {
	bot    messageSender
	chatID int64
}

func NewTelegramNotifier(cfg config.TelegramConfig) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &TelegramNotifier{bot: bot, chatID: cfg.ChatID}, nil
}

func (t *TelegramNotifier) Publish(ctx context.Context, ev model.JobEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, formatEvent(ev))
	msg.DisableWebPagePreview = true
	_, err := t.bot.Send(msg)
	return err
}

func formatEvent(ev model.JobEvent) string {
	var sb strings.Builder
	switch ev.Status {
	case model.JobStatusCompleted:
		sb.WriteString("✅ ")
	case model.JobStatusFailed:
		sb.WriteString("❌ ")
	}
	fmt.Fprintf(&sb, "%s job %s on %s is %s", ev.Kind, ev.JobID, ev.Provider, ev.Status)
	if ev.Error != "" {
		errMsg := ev.Error
		if r := []rune(errMsg); len(r) > 200 {
			errMsg = string(r[:200]) + "..."
		}
		sb.WriteString("\n")
		sb.WriteString(errMsg)
	}
	return sb.String()
}
