package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"genhub/internal/domain/model"
	"genhub/internal/domain/ports/adapter"
)

var _ adapter.Notifier = (*Publisher)(nil)

// Publisher announces job events on a pub/sub channel so every server
// instance can forward them to its own observers.
type Publisher struct {
	client  *Client
	channel string
}

func NewPublisher(c *Client, channel string) *Publisher {
	return &Publisher{client: c, channel: channel}
}

func (p *Publisher) Publish(ctx context.Context, ev model.JobEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := p.client.cli.Publish(ctx, p.channel, b).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", p.channel, err)
	}
	return nil
}

// Subscribe delivers events from channel to fn until ctx ends. Malformed
// payloads are logged and skipped.
func Subscribe(ctx context.Context, c *Client, channel string, fn func(model.JobEvent), log *zerolog.Logger) error {
	sub := c.cli.Subscribe(ctx, channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev model.JobEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Warn().Err(err).Str("channel", channel).Msg("dropping malformed job event")
				continue
			}
			fn(ev)
		}
	}
}
