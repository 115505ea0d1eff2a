package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/automaton-risk/internal/domain/ai"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return &Client{Client: openai.NewClientWithConfig(cfg)}
}

func TestAnalyzeReturnsContent(t *testing.T) {
	var got openai.ChatCompletionRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Role: "assistant", Content: `{"advice":"ok"}`}}},
		})
	})
	out, err := c.Analyze(context.Background(), "alerts: []")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if out != `{"advice":"ok"}` {
		t.Fatalf("content = %q", out)
	}
	if got.Model != DefaultModel || got.MaxTokens != maxTokens || len(got.Messages) != 2 {
		t.Fatalf("request = %+v", got)
	}
}

func TestAnalyzeQuota(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"quota","type":"insufficient_quota"}}`))
	})
	_, err := c.Analyze(context.Background(), "x")
	if !errors.Is(err, ai.ErrQuotaExceeded) {
		t.Fatalf("want ErrQuotaExceeded, got %v", err)
	}
}
