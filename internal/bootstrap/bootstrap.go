package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/it-support-rag/internal/config"
	"github.com/kirillkom/it-support-rag/internal/core/domain"
	"github.com/kirillkom/it-support-rag/internal/core/ports"
	"github.com/kirillkom/it-support-rag/internal/core/rules"
	"github.com/kirillkom/it-support-rag/internal/core/usecase"
	rediscache "github.com/kirillkom/it-support-rag/internal/infrastructure/cache/redis"
	"github.com/kirillkom/it-support-rag/internal/infrastructure/chunking"
	"github.com/kirillkom/it-support-rag/internal/infrastructure/embedding/hashing"
	"github.com/kirillkom/it-support-rag/internal/infrastructure/llm/gemini"
	"github.com/kirillkom/it-support-rag/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/it-support-rag/internal/infrastructure/llm/openai"
	"github.com/kirillkom/it-support-rag/internal/infrastructure/queue/nats"
	"github.com/kirillkom/it-support-rag/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/it-support-rag/internal/infrastructure/resilience"
	"github.com/kirillkom/it-support-rag/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/it-support-rag/internal/infrastructure/vector/memory"
	"github.com/kirillkom/it-support-rag/internal/infrastructure/vector/qdrant"
)

// Options selects the optional infrastructure a process needs.
type Options struct {
	// Queue connects to NATS and wires chunk-file ingestion jobs.
	Queue bool
	// EvalRepository opens Postgres for evaluation run history when POSTGRES_DSN is set.
	EvalRepository bool
}

// App is the construct-once pipeline shared by every driving adapter.
type App struct {
	Config config.Config

	Chunker  *chunking.Splitter
	QueryUC  *usecase.QueryUseCase
	IndexUC  *usecase.IndexUseCase
	EvalUC   *usecase.EvaluateUseCase
	IngestUC *usecase.IngestJobUseCase

	Queue    *nats.Queue
	EvalRepo ports.EvalRunRepository

	closeFns []func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	app := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	distance, err := domain.ParseDistance(cfg.QdrantDistance)
	if err != nil {
		return nil, err
	}
	chunker, err := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	app.Chunker = chunker

	exec := resilience.NewExecutor(resilienceConfig(cfg))

	embedder, dimension, err := app.newEmbedder(ctx, cfg, exec)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	generator, err := app.newGenerator(ctx, cfg, exec)
	if err != nil {
		return nil, fmt.Errorf("init generator: %w", err)
	}
	vectorDB, err := newVectorStore(cfg, exec)
	if err != nil {
		return nil, fmt.Errorf("init vector store: %w", err)
	}

	app.QueryUC = usecase.NewQueryUseCase(
		embedder,
		vectorDB,
		generator,
		rules.MustDefaultNormalizer(),
		rules.MustDefaultClassifier(),
		usecase.QueryConfig{
			Collection:           cfg.QdrantCollection,
			DefaultTopK:          cfg.RAGTopK,
			CallTimeout:          cfg.RAGCallTimeout,
			AnswerCategoryFilter: cfg.RAGAnswerCategoryFilter,
			Generation: domain.GenerationOptions{
				Temperature:     float32(cfg.GenTemperature),
				MaxOutputTokens: cfg.GenMaxOutputTokens,
			},
		},
	)
	app.IndexUC = usecase.NewIndexUseCase(embedder, vectorDB, usecase.IndexConfig{
		Collection:  cfg.QdrantCollection,
		Dimension:   dimension,
		Distance:    distance,
		MaxInFlight: cfg.RAGMaxInFlight,
	})
	app.EvalUC = usecase.NewEvaluateUseCase(app.QueryUC, cfg.RAGMaxInFlight)

	if opts.Queue {
		storage, err := localfs.New(cfg.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("init object storage: %w", err)
		}
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: exec,
			Logger:             slog.Default(),
		})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.Queue = queue
		app.closeFns = append(app.closeFns, queue.Close)
		app.IngestUC = usecase.NewIngestJobUseCase(storage, queue, chunking.JSONLReader{}, app.IndexUC, cfg.IngestBatchSize)
	}

	if opts.EvalRepository && cfg.PostgresDSN != "" {
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		app.closeFns = append(app.closeFns, func() { _ = db.Close() })
		repo := postgres.NewEvalRunRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		app.EvalRepo = repo
	}

	ok = true
	return app, nil
}

func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}

func resilienceConfig(cfg config.Config) resilience.Config {
	rc := resilience.DefaultConfig()
	rc.RetryMaxAttempts = cfg.UpstreamMaxAttempts
	rc.CallTimeout = cfg.RAGCallTimeout
	rc.RateLimitPerSecond = cfg.UpstreamRateLimitRPS
	rc.RateLimitBurst = cfg.UpstreamRateBurst
	return rc
}

// newEmbedder returns the configured embedder and, when known up front, its dimension.
func (a *App) newEmbedder(ctx context.Context, cfg config.Config, exec *resilience.Executor) (ports.Embedder, int, error) {
	var (
		embedder  ports.Embedder
		dimension int
		model     string
	)

	switch cfg.EmbeddingProvider {
	case config.ProviderHashing:
		h, err := hashing.New(cfg.EmbeddingDimension)
		if err != nil {
			return nil, 0, err
		}
		embedder, dimension, model = h, h.Dimension(), fmt.Sprintf("hashing-%d", h.Dimension())
	case config.ProviderOpenAI:
		client, err := a.openAIClient(cfg, exec)
		if err != nil {
			return nil, 0, err
		}
		e, err := openai.NewEmbedder(client)
		if err != nil {
			return nil, 0, err
		}
		embedder, model = e, cfg.EmbeddingModel
	case config.ProviderOllama:
		client, err := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, exec)
		if err != nil {
			return nil, 0, err
		}
		e, err := ollama.NewEmbedder(client)
		if err != nil {
			return nil, 0, err
		}
		embedder, model = e, cfg.OllamaEmbedModel
	case config.ProviderGemini:
		client, err := a.geminiClient(ctx, cfg, exec)
		if err != nil {
			return nil, 0, err
		}
		e, err := gemini.NewEmbedder(client)
		if err != nil {
			return nil, 0, err
		}
		embedder, model = e, cfg.GeminiEmbedModel
	default:
		return nil, 0, domain.WrapError(domain.ErrConfiguration, "new embedder", fmt.Errorf("unknown provider %q", cfg.EmbeddingProvider))
	}

	if cfg.RedisAddr != "" && cfg.EmbeddingProvider != config.ProviderHashing {
		client := rediscache.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		a.closeFns = append(a.closeFns, func() { _ = client.Close() })
		embedder = rediscache.NewEmbeddingCache(embedder, client, model, cfg.EmbeddingCacheTTL)
	}
	return embedder, dimension, nil
}

func (a *App) newGenerator(ctx context.Context, cfg config.Config, exec *resilience.Executor) (ports.AnswerGenerator, error) {
	switch cfg.GenerationProvider {
	case config.ProviderOpenAI:
		client, err := a.openAIClient(cfg, exec)
		if err != nil {
			return nil, err
		}
		return openai.NewGenerator(client)
	case config.ProviderOllama:
		client, err := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, exec)
		if err != nil {
			return nil, err
		}
		return ollama.NewGenerator(client)
	case config.ProviderGemini:
		client, err := a.geminiClient(ctx, cfg, exec)
		if err != nil {
			return nil, err
		}
		return gemini.NewGenerator(client)
	default:
		return nil, domain.WrapError(domain.ErrConfiguration, "new generator", fmt.Errorf("unknown provider %q", cfg.GenerationProvider))
	}
}

func (a *App) openAIClient(cfg config.Config, exec *resilience.Executor) (*openai.Client, error) {
	apiKey, baseURL, chatModel := cfg.OpenAICredentials()
	return openai.New(openai.Config{
		APIKey:         apiKey,
		BaseURL:        baseURL,
		ChatModel:      chatModel,
		EmbeddingModel: cfg.EmbeddingModel,
	}, exec)
}

func (a *App) geminiClient(ctx context.Context, cfg config.Config, exec *resilience.Executor) (*gemini.Client, error) {
	client, err := gemini.New(ctx, gemini.Config{
		APIKey:         cfg.GeminiAPIKey,
		ChatModel:      cfg.GeminiChatModel,
		EmbeddingModel: cfg.GeminiEmbedModel,
	}, exec)
	if err != nil {
		return nil, err
	}
	a.closeFns = append(a.closeFns, func() { _ = client.Close() })
	return client, nil
}

func newVectorStore(cfg config.Config, exec *resilience.Executor) (ports.VectorStore, error) {
	switch cfg.VectorStore {
	case config.VectorStoreMemory:
		return memory.NewStore(), nil
	case config.VectorStoreQdrant:
		return qdrant.New(cfg.QdrantURL, qdrant.WithAPIKey(cfg.QdrantAPIKey), qdrant.WithExecutor(exec))
	default:
		return nil, domain.WrapError(domain.ErrConfiguration, "new vector store", fmt.Errorf("unknown vector store %q", cfg.VectorStore))
	}
}
