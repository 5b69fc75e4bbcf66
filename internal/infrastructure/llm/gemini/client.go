package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/kirillkom/it-support-rag/internal/core/domain"
	"github.com/kirillkom/it-support-rag/internal/infrastructure/llm/prompt"
	"github.com/kirillkom/it-support-rag/internal/infrastructure/resilience"
)

type Config struct {
	APIKey         string
	ChatModel      string
	EmbeddingModel string
}

type Client struct {
	api            *genai.Client
	chatModel      string
	embeddingModel string
	exec           *resilience.Executor
}

func New(ctx context.Context, cfg Config, exec *resilience.Executor) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, domain.WrapError(domain.ErrConfiguration, "new gemini client", errors.New("GEMINI_API_KEY is empty"))
	}
	api, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "new gemini client", err)
	}
	if exec == nil {
		exec = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{
		api:            api,
		chatModel:      cfg.ChatModel,
		embeddingModel: cfg.EmbeddingModel,
		exec:           exec,
	}, nil
}

func (c *Client) Close() error {
	return c.api.Close()
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) (*Embedder, error) {
	if strings.TrimSpace(client.embeddingModel) == "" {
		return nil, domain.WrapError(domain.ErrConfiguration, "new gemini embedder", errors.New("embedding model is empty"))
	}
	return &Embedder{client: client}, nil
}

func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *Embedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	model := e.client.api.EmbeddingModel(e.client.embeddingModel)
	batch := model.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	var resp *genai.BatchEmbedContentsResponse
	err := e.client.exec.Execute(ctx, "gemini.embed", func(callCtx context.Context) error {
		var err error
		resp, err = model.BatchEmbedContents(callCtx, batch)
		return err
	}, classifyGeminiError)
	if err != nil {
		return nil, resilience.WrapTemporaryIfNeeded("gemini embed", err, classifyGeminiError)
	}
	return embeddingValues(resp, len(texts))
}

func embeddingValues(resp *genai.BatchEmbedContentsResponse, want int) ([][]float32, error) {
	if resp == nil || len(resp.Embeddings) != want {
		got := 0
		if resp != nil {
			got = len(resp.Embeddings)
		}
		return nil, fmt.Errorf("gemini embed: expected %d embeddings, got %d", want, got)
	}
	out := make([][]float32, 0, want)
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("gemini embed: no embedding returned for input %d", i)
		}
		out = append(out, emb.Values)
	}
	return out, nil
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) (*Generator, error) {
	if strings.TrimSpace(client.chatModel) == "" {
		return nil, domain.WrapError(domain.ErrConfiguration, "new gemini generator", errors.New("chat model is empty"))
	}
	return &Generator{client: client}, nil
}

func (g *Generator) Generate(ctx context.Context, question string, chunks []domain.ContextChunk, opts domain.GenerationOptions) (string, error) {
	if len(chunks) == 0 {
		return prompt.NoGroundingAnswer, nil
	}
	opts = prompt.Normalize(opts)

	model := g.client.api.GenerativeModel(g.client.chatModel)
	model.SetTemperature(opts.Temperature)
	model.SetMaxOutputTokens(int32(opts.MaxOutputTokens))
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(prompt.SystemPrompt)},
	}

	var resp *genai.GenerateContentResponse
	err := g.client.exec.Execute(ctx, "gemini.generate", func(callCtx context.Context) error {
		var err error
		resp, err = model.GenerateContent(callCtx, genai.Text(prompt.BuildUserMessage(question, chunks)))
		return err
	}, classifyGeminiError)
	if err != nil {
		return "", resilience.WrapTemporaryIfNeeded("gemini generate", err, classifyGeminiError)
	}
	return extractText(resp)
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini generate: empty candidates")
	}
	var reply strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			reply.WriteString(string(txt))
		}
	}
	text := strings.TrimSpace(reply.String())
	if text == "" {
		return "", errors.New("gemini generate: empty text")
	}
	return text, nil
}

func classifyGeminiError(err error) resilience.ErrorClassification {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return resilience.ClassifyStatus(apiErr.Code)
	}
	return resilience.ClassifyError(err)
}
