package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"genhub/internal/domain"
	"genhub/internal/domain/ports/adapter"
)

func TestClaudeChat(t *testing.T) {
	var got claudeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "sk-ant-test" || r.Header.Get("anthropic-version") != claudeAPIVersion {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"content":[{"type":"text","text":"Bonjour"}],"stop_reason":"end_turn","usage":{"input_tokens":12,"output_tokens":2}}`))
	}))
	defer srv.Close()

	c, err := NewClaude("sk-ant-test", srv.URL, srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	res, err := c.Chat(context.Background(), "claude-sonnet", []adapter.Message{
		{Role: "system", Content: "Answer in French."},
		{Role: "user", Content: "Hello"},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got.System != "Answer in French." || len(got.Messages) != 1 || got.Messages[0].Role != "user" {
		t.Errorf("request = %+v", got)
	}
	if res.Content != "Bonjour" || res.FinishReason != "end_turn" || *res.TokensUsed != 14 {
		t.Errorf("result = %+v", res)
	}
}

func TestClaudeAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"type":"error","error":{"type":"authentication_error"}}`))
	}))
	defer srv.Close()

	c, _ := NewClaude("bad", srv.URL, srv.Client())
	_, err := c.ListModels(context.Background())
	if !errors.Is(err, domain.ErrAuth) {
		t.Fatalf("err = %v, want ErrAuth", err)
	}
	if _, err := NewClaude("", srv.URL, nil); err == nil {
		t.Fatal("empty key should be rejected")
	}
}
