package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/it-support-rag/internal/core/domain"
	"github.com/kirillkom/it-support-rag/internal/infrastructure/llm/prompt"
	"github.com/kirillkom/it-support-rag/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	exec       *resilience.Executor
}

func New(baseURL, genModel, embedModel string, exec *resilience.Executor) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, domain.WrapError(domain.ErrConfiguration, "new ollama client", fmt.Errorf("OLLAMA_URL is empty"))
	}
	if exec == nil {
		exec = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		exec:       exec,
	}, nil
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) (*Embedder, error) {
	if strings.TrimSpace(client.embedModel) == "" {
		return nil, domain.WrapError(domain.ErrConfiguration, "new ollama embedder", fmt.Errorf("embedding model is empty"))
	}
	return &Embedder{client: client}, nil
}

func (e *Embedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: expected %d embeddings, got %d", len(texts), len(response.Embeddings))
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) (*Generator, error) {
	if strings.TrimSpace(client.genModel) == "" {
		return nil, domain.WrapError(domain.ErrConfiguration, "new ollama generator", fmt.Errorf("generation model is empty"))
	}
	return &Generator{client: client}, nil
}

func (g *Generator) Generate(ctx context.Context, question string, chunks []domain.ContextChunk, opts domain.GenerationOptions) (string, error) {
	if len(chunks) == 0 {
		return prompt.NoGroundingAnswer, nil
	}
	opts = prompt.Normalize(opts)

	reqBody := map[string]any{
		"model":  g.client.genModel,
		"system": prompt.SystemPrompt,
		"prompt": prompt.BuildUserMessage(question, chunks),
		"stream": false,
		"options": map[string]any{
			"temperature": opts.Temperature,
			"num_predict": opts.MaxOutputTokens,
		},
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := g.client.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}
