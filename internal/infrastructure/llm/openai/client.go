package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/it-support-rag/internal/core/domain"
	"github.com/kirillkom/it-support-rag/internal/infrastructure/llm/prompt"
	"github.com/kirillkom/it-support-rag/internal/infrastructure/resilience"
)

// Config selects direct OpenAI access or an OpenAI compatible proxy.
// When BaseURL is set the client talks to it instead of api.openai.com.
type Config struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
}

type Client struct {
	api            *goopenai.Client
	chatModel      string
	embeddingModel string
	exec           *resilience.Executor
}

func New(cfg Config, exec *resilience.Executor) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, domain.WrapError(domain.ErrConfiguration, "new openai client",
			errors.New("neither OPENAI_API_KEY nor AZURE_OPENAI_API_KEY is set"))
	}
	clientConfig := goopenai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		clientConfig.BaseURL = base
	}
	if exec == nil {
		exec = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{
		api:            goopenai.NewClientWithConfig(clientConfig),
		chatModel:      cfg.ChatModel,
		embeddingModel: cfg.EmbeddingModel,
		exec:           exec,
	}, nil
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) (*Embedder, error) {
	if strings.TrimSpace(client.embeddingModel) == "" {
		return nil, domain.WrapError(domain.ErrConfiguration, "new openai embedder", errors.New("EMBEDDING_MODEL is empty"))
	}
	return &Embedder{client: client}, nil
}

func (e *Embedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	var resp goopenai.EmbeddingResponse
	err := e.client.exec.Execute(ctx, "openai.embed", func(callCtx context.Context) error {
		var err error
		resp, err = e.client.api.CreateEmbeddings(callCtx, goopenai.EmbeddingRequest{
			Input: texts,
			Model: goopenai.EmbeddingModel(e.client.embeddingModel),
		})
		return err
	}, classifyOpenAIError)
	if err != nil {
		return nil, resilience.WrapTemporaryIfNeeded("openai embed", err, classifyOpenAIError)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embed: expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, 0, len(data))
	for _, item := range data {
		out = append(out, item.Embedding)
	}
	return out, nil
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
	if strings.TrimSpace(client.chatModel) == "" {
		return nil, domain.WrapError(domain.ErrConfiguration, "new openai generator", errors.New("chat model is empty"))
	}
	return &Generator{client: client}, nil
}

func (g *Generator) Generate(ctx context.Context, question string, chunks []domain.ContextChunk, opts domain.GenerationOptions) (string, error) {
	if len(chunks) == 0 {
		return prompt.NoGroundingAnswer, nil
	}
	opts = prompt.Normalize(opts)
	temperature := opts.Temperature
	if temperature == 0 {
		// Temperature is omitempty in the request; a plain zero would fall back to the server default.
		temperature = math.SmallestNonzeroFloat32
	}

	req := goopenai.ChatCompletionRequest{
		Model:       g.client.chatModel,
		Temperature: temperature,
		MaxTokens:   opts.MaxOutputTokens,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: prompt.SystemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: prompt.BuildUserMessage(question, chunks)},
		},
	}

	var resp goopenai.ChatCompletionResponse
	err := g.client.exec.Execute(ctx, "openai.chat", func(callCtx context.Context) error {
		var err error
		resp, err = g.client.api.CreateChatCompletion(callCtx, req)
		return err
	}, classifyOpenAIError)
	if err != nil {
		return "", resilience.WrapTemporaryIfNeeded("openai chat", err, classifyOpenAIError)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai chat: empty choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func classifyOpenAIError(err error) resilience.ErrorClassification {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return resilience.ClassifyStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return resilience.ClassifyStatus(reqErr.HTTPStatusCode)
	}
	return resilience.ClassifyError(err)
}
