package events

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"genhub/internal/domain/model"
)

func TestBrokerStreamsJobEvents(t *testing.T) {
	b := NewBroker()
	srv := httptest.NewServer(b)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	readFrame := func() string {
		var sb strings.Builder
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if line == "\n" {
				return sb.String()
			}
			sb.WriteString(line)
		}
	}

	if f := readFrame(); !strings.HasPrefix(f, "event: connected") {
		t.Fatalf("first frame = %q", f)
	}
	for b.ConnectionCount() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	b.Publish(ctx, model.JobEvent{JobID: "j1", Status: model.JobStatusCompleted})

	f := readFrame()
	if !strings.HasPrefix(f, "event: job\n") || !strings.Contains(f, `"job_id":"j1"`) {
		t.Fatalf("job frame = %q", f)
	}
}

func TestBrokerSlowClientDoesNotBlock(t *testing.T) {
	b := NewBroker()
	c := &client{events: make(chan []byte, 1), done: make(chan struct{})}
	b.add(c)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Broadcast(model.JobEvent{JobID: "j"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full client")
	}
	if len(c.events) != 1 {
		t.Fatalf("buffered = %d, want 1", len(c.events))
	}
}

type recordingNotifier struct {
	got []model.JobEvent
	err error
}

func (r *recordingNotifier) Publish(_ context.Context, ev model.JobEvent) error {
	r.got = append(r.got, ev)
	return r.err
}

func TestFanout(t *testing.T) {
	ok := &recordingNotifier{}
	bad := &recordingNotifier{err: errors.New("down")}
	f := Fanout{ok, nil, bad}

	err := f.Publish(context.Background(), model.JobEvent{JobID: "j1"})
	if err == nil || !strings.Contains(err.Error(), "down") {
		t.Fatalf("err = %v", err)
	}
	if len(ok.got) != 1 || len(bad.got) != 1 {
		t.Fatal("every notifier should receive the event")
	}
}

type fakeSender struct{ sent []tgbotapi.MessageConfig }

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func TestTelegramNotifier(t *testing.T) {
	s := &fakeSender{}
	n := &TelegramNotifier{bot: s, chatID: 42}
	err := n.Publish(context.Background(), model.JobEvent{
		JobID: "j1", Kind: model.JobKindImage, Provider: model.ProviderComfyUI,
		Status: model.JobStatusFailed, Error: "timeout",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(s.sent) != 1 || s.sent[0].ChatID != 42 {
		t.Fatalf("sent = %+v", s.sent)
	}
	if txt := s.sent[0].Text; !strings.Contains(txt, "image job j1 on comfyui is failed") || !strings.Contains(txt, "timeout") {
		t.Fatalf("text = %q", txt)
	}
}
