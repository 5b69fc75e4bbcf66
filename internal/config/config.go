package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/kirillkom/it-support-rag/internal/core/domain"
)

const (
	ProviderOpenAI  = "openai"
	ProviderOllama  = "ollama"
	ProviderGemini  = "gemini"
	ProviderHashing = "hashing"

	VectorStoreQdrant = "qdrant"
	VectorStoreMemory = "memory"

	DefaultAzureOpenAIEndpoint = "https://ai-proxy.lab.epam.com"
)

type Config struct {
	APIPort  string
	LogLevel string

	PostgresDSN string

	NATSURL     string
	NATSSubject string

	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	EmbeddingCacheTTL time.Duration

	EmbeddingProvider  string
	GenerationProvider string
	EmbeddingModel     string
	EmbeddingDimension int

	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIChatModel string

	AzureOpenAIAPIKey         string
	AzureOpenAIEndpoint       string
	AzureOpenAIChatDeployment string

	OllamaURL        string
	OllamaGenModel   string
	OllamaEmbedModel string

	GeminiAPIKey     string
	GeminiChatModel  string
	GeminiEmbedModel string

	VectorStore      string
	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string
	QdrantDistance   string

	StoragePath string
	RawDataDir  string
	ChunksPath  string
	EvalDir     string

	ChunkSize       int
	ChunkOverlap    int
	IngestBatchSize int

	RAGTopK                 int
	RAGMaxInFlight          int
	RAGCallTimeout          time.Duration
	RAGAnswerCategoryFilter bool
	GenTemperature          float64
	GenMaxOutputTokens      int

	UpstreamMaxAttempts  int
	UpstreamRateLimitRPS float64
	UpstreamRateBurst    int

	APIRateLimitRPS     float64
	APIRateLimitBurst   int
	APIMaxInFlight      int
	APIBackpressureWait time.Duration
	// APIMaxConnections caps accepted TCP connections; zero disables the cap.
	APIMaxConnections int

	WorkerMetricsPort string
}

// LoadDotEnv reads the given .env files (default ".env") without overriding
// variables already set in the process environment. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

func Load() Config {
	return Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		PostgresDSN: mustEnv("POSTGRES_DSN", ""),

		NATSURL:     mustEnv("NATS_URL", "nats://localhost:4222"),
		NATSSubject: mustEnv("NATS_SUBJECT", "it_support.chunks.ingest"),

		RedisAddr:         mustEnv("REDIS_ADDR", ""),
		RedisPassword:     mustEnv("REDIS_PASSWORD", ""),
		RedisDB:           mustEnvInt("REDIS_DB", 0),
		EmbeddingCacheTTL: mustEnvDuration("EMBEDDING_CACHE_TTL", 7*24*time.Hour),

		EmbeddingProvider:  strings.ToLower(mustEnv("EMBEDDING_PROVIDER", ProviderOpenAI)),
		GenerationProvider: strings.ToLower(mustEnv("GENERATION_PROVIDER", ProviderOpenAI)),
		EmbeddingModel:     mustEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimension: mustEnvInt("EMBEDDING_DIMENSION", 384),

		OpenAIAPIKey:    mustEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   mustEnv("OPENAI_BASE_URL", ""),
		OpenAIChatModel: mustEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),

		AzureOpenAIAPIKey:         mustEnv("AZURE_OPENAI_API_KEY", ""),
		AzureOpenAIEndpoint:       mustEnv("AZURE_OPENAI_ENDPOINT", DefaultAzureOpenAIEndpoint),
		AzureOpenAIChatDeployment: mustEnv("AZURE_OPENAI_CHAT_DEPLOYMENT", "gpt-4o-mini-1"),

		OllamaURL:        mustEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaGenModel:   mustEnv("OLLAMA_GEN_MODEL", "llama3.1:8b"),
		OllamaEmbedModel: mustEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),

		GeminiAPIKey:     mustEnv("GEMINI_API_KEY", ""),
		GeminiChatModel:  mustEnv("GEMINI_CHAT_MODEL", "gemini-1.5-flash"),
		GeminiEmbedModel: mustEnv("GEMINI_EMBED_MODEL", "text-embedding-004"),

		VectorStore:      strings.ToLower(mustEnv("VECTOR_STORE", VectorStoreQdrant)),
		QdrantURL:        mustEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey:     mustEnv("QDRANT_API_KEY", ""),
		QdrantCollection: mustEnv("QDRANT_COLLECTION", "it_support_kb"),
		QdrantDistance:   mustEnv("QDRANT_DISTANCE", "cosine"),

		StoragePath: mustEnv("STORAGE_PATH", "./data/uploads"),
		RawDataDir:  mustEnv("RAW_DATA_DIR", "./data/raw"),
		ChunksPath:  mustEnv("CHUNKS_PATH", "./data/processed/chunks.jsonl"),
		EvalDir:     mustEnv("EVAL_DIR", "./data/eval"),

		ChunkSize:       mustEnvInt("CHUNK_SIZE", 700),
		ChunkOverlap:    mustEnvInt("CHUNK_OVERLAP", 100),
		IngestBatchSize: mustEnvInt("INGEST_BATCH_SIZE", 16),

		RAGTopK:                 mustEnvInt("RAG_TOP_K", 5),
		RAGMaxInFlight:          mustEnvInt("RAG_MAX_IN_FLIGHT", 4),
		RAGCallTimeout:          mustEnvDuration("RAG_CALL_TIMEOUT", 30*time.Second),
		RAGAnswerCategoryFilter: mustEnvBool("RAG_ANSWER_CATEGORY_FILTER", false),
		GenTemperature:          mustEnvFloat("GEN_TEMPERATURE", 0.1),
		GenMaxOutputTokens:      mustEnvInt("GEN_MAX_OUTPUT_TOKENS", 512),

		UpstreamMaxAttempts:  mustEnvInt("UPSTREAM_MAX_ATTEMPTS", 3),
		UpstreamRateLimitRPS: mustEnvFloat("UPSTREAM_RATE_LIMIT_RPS", 0),
		UpstreamRateBurst:    mustEnvInt("UPSTREAM_RATE_BURST", 4),

		APIRateLimitRPS:     mustEnvFloat("API_RATE_LIMIT_RPS", 20),
		APIRateLimitBurst:   mustEnvInt("API_RATE_LIMIT_BURST", 40),
		APIMaxInFlight:      mustEnvInt("API_MAX_IN_FLIGHT", 32),
		APIBackpressureWait: mustEnvDuration("API_BACKPRESSURE_WAIT", 250*time.Millisecond),
		APIMaxConnections:   mustEnvInt("API_MAX_CONNECTIONS", 512),

		WorkerMetricsPort: mustEnv("WORKER_METRICS_PORT", "9090"),
	}
}

// UsesAzureProxy reports whether OpenAI traffic goes through the Azure-style proxy.
func (c Config) UsesAzureProxy() bool {
	return c.OpenAIAPIKey == "" && c.AzureOpenAIAPIKey != ""
}

// OpenAICredentials resolves the key, base URL and chat model for the OpenAI adapter.
func (c Config) OpenAICredentials() (apiKey, baseURL, chatModel string) {
	if c.UsesAzureProxy() {
		endpoint := strings.TrimRight(c.AzureOpenAIEndpoint, "/")
		return c.AzureOpenAIAPIKey, endpoint + "/v1", c.AzureOpenAIChatDeployment
	}
	return c.OpenAIAPIKey, c.OpenAIBaseURL, c.OpenAIChatModel
}

// Validate checks provider selection and the settings each provider needs.
func (c Config) Validate() error {
	var errs []error

	switch c.EmbeddingProvider {
	case ProviderOpenAI, ProviderOllama, ProviderGemini, ProviderHashing:
	default:
		errs = append(errs, fmt.Errorf("unknown EMBEDDING_PROVIDER %q", c.EmbeddingProvider))
	}
	switch c.GenerationProvider {
	case ProviderOpenAI, ProviderOllama, ProviderGemini:
	default:
		errs = append(errs, fmt.Errorf("unknown GENERATION_PROVIDER %q", c.GenerationProvider))
	}
	switch c.VectorStore {
	case VectorStoreQdrant, VectorStoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown VECTOR_STORE %q", c.VectorStore))
	}

	if c.EmbeddingProvider == ProviderOpenAI || c.GenerationProvider == ProviderOpenAI {
		if key, _, _ := c.OpenAICredentials(); key == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY or AZURE_OPENAI_API_KEY is required"))
		}
	}
	if (c.EmbeddingProvider == ProviderGemini || c.GenerationProvider == ProviderGemini) && c.GeminiAPIKey == "" {
		errs = append(errs, errors.New("GEMINI_API_KEY is required"))
	}
	if _, err := domain.ParseDistance(c.QdrantDistance); err != nil {
		errs = append(errs, err)
	}
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("invalid chunking parameters size=%d overlap=%d", c.ChunkSize, c.ChunkOverlap))
	}
	if c.RAGTopK <= 0 {
		errs = append(errs, fmt.Errorf("RAG_TOP_K must be positive, got %d", c.RAGTopK))
	}

	if len(errs) == 0 {
		return nil
	}
	return domain.WrapError(domain.ErrConfiguration, "validate config", errors.Join(errs...))
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// mustEnvDuration accepts Go durations ("30s") or plain seconds ("30").
func mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
