//go:build integration

package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"genhub/internal/config"
	"genhub/internal/domain"
	"genhub/internal/domain/model"
	"genhub/internal/infra/logging"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	c, err := NewClient(context.Background(), config.RedisConfig{URL: url})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestLocker(t *testing.T) {
	c := newTestClient(t)
	l := NewLocker(c)
	ctx := context.Background()
	key := "genhub:test:lock:" + time.Now().Format(time.RFC3339Nano)

	tok, err := l.TryLock(ctx, key, 5*time.Second)
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	if _, err := l.TryLock(ctx, key, 5*time.Second); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("second lock = %v, want ErrConflict", err)
	}
	if err := l.Unlock(ctx, key, tok); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if _, err := l.TryLock(ctx, key, 5*time.Second); err != nil {
		t.Fatalf("relock after unlock: %v", err)
	}
}

func TestPublishSubscribe(t *testing.T) {
	c := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	channel := "genhub:test:events"

	got := make(chan model.JobEvent, 1)
	go Subscribe(ctx, c, channel, func(ev model.JobEvent) { got <- ev }, logging.Nop())
	time.Sleep(200 * time.Millisecond)

	if err := NewPublisher(c, channel).Publish(ctx, model.JobEvent{JobID: "j1", Status: model.JobStatusCompleted}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case ev := <-got:
		if ev.JobID != "j1" || ev.Status != model.JobStatusCompleted {
			t.Fatalf("event = %+v", ev)
		}
	case <-ctx.Done():
		t.Fatal("no event received")
	}
}

func TestRateLimiter(t *testing.T) {
	c := newTestClient(t)
	rl := NewRateLimiter(c)
	key := LoginAttemptKey("test-" + time.Now().Format(time.RFC3339Nano))
	for i := 0; i < 3; i++ {
		if ok, err := rl.Allow(context.Background(), key, 3, time.Minute); err != nil || !ok {
			t.Fatalf("attempt %d = %v, %v", i, ok, err)
		}
	}
	if ok, _ := rl.Allow(context.Background(), key, 3, time.Minute); ok {
		t.Fatal("fourth attempt should be refused")
	}
}
