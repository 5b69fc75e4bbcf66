package openai

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/it-support-rag/internal/core/domain"
	"github.com/kirillkom/it-support-rag/internal/infrastructure/llm/prompt"
	"github.com/kirillkom/it-support-rag/internal/infrastructure/resilience"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(Config{
		APIKey:         "test-key",
		BaseURL:        server.URL + "/v1",
		ChatModel:      "gpt-4o-mini",
		EmbeddingModel: "text-embedding-3-small",
	}, resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		BreakerEnabled:      false,
	}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client
}

func TestEmbedManyOrdersByIndex(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small","data":[
			{"object":"embedding","index":1,"embedding":[0,1]},
			{"object":"embedding","index":0,"embedding":[1,0]}
		]}`))
	})
	embedder, _ := NewEmbedder(client)

	vectors, err := embedder.EmbedMany(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedMany() error = %v", err)
	}
	if len(vectors) != 2 || vectors[0][0] != 1 || vectors[1][1] != 1 {
		t.Fatalf("unexpected vectors: %v", vectors)
	}
}

func TestGenerateSendsSystemPromptAndOptions(t *testing.T) {
	var body struct {
		Model       string  `json:"model"`
		Temperature float32 `json:"temperature"`
		MaxTokens   int     `json:"max_tokens"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":" Restart the router. "}}]}`))
	})
	gen, _ := NewGenerator(client)

	answer, err := gen.Generate(context.Background(), "wifi is down", []domain.ContextChunk{{Text: "Restart router", Score: 0.8}}, domain.GenerationOptions{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if answer != "Restart the router." {
		t.Fatalf("unexpected answer %q", answer)
	}
	if body.Model != "gpt-4o-mini" || body.MaxTokens != prompt.DefaultMaxOutputTokens || body.Temperature != math.SmallestNonzeroFloat32 {
		t.Fatalf("unexpected request: %+v", body)
	}
	if len(body.Messages) != 2 || body.Messages[0].Role != "system" || !strings.Contains(body.Messages[1].Content, "[Doc 1 | score=0.800]") {
		t.Fatalf("unexpected messages: %+v", body.Messages)
	}
}

func TestGenerateUpstreamErrorIsTemporary(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	})
	gen, _ := NewGenerator(client)

	_, err := gen.Generate(context.Background(), "q", []domain.ContextChunk{{Text: "t"}}, domain.GenerationOptions{})
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Config{ChatModel: "m"}, nil); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
