package ports

import (
	"context"
	"io"

	"github.com/kirillkom/it-support-rag/internal/core/domain"
)

// Embedder maps text to fixed-dimension vectors.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore persists points and performs top-k similarity search.
type VectorStore interface {
	EnsureCollection(ctx context.Context, name string, dimension int, distance domain.Distance) error
	Upsert(ctx context.Context, collection string, points []domain.Point) error
	Search(ctx context.Context, collection string, vector []float32, limit int, filter domain.SearchFilter) ([]domain.ScoredPoint, error)
}

// AnswerGenerator creates the final user-facing answer from retrieved context.
type AnswerGenerator interface {
	Generate(ctx context.Context, question string, chunks []domain.ContextChunk, opts domain.GenerationOptions) (string, error)
}

// Chunker splits text into overlapping windows.
type Chunker interface {
	Split(text string) []string
}

// TextNormalizer canonicalizes user questions.
type TextNormalizer interface {
	Normalize(text string) string
}

// CategoryClassifier infers a category label from text.
type CategoryClassifier interface {
	Classify(text string) (string, bool)
}

// ObjectStorage stores uploaded chunk files.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// JobQueue publishes and consumes chunk-file ingestion jobs.
type JobQueue interface {
	PublishIngestJob(ctx context.Context, job domain.IngestJob) error
	SubscribeIngestJobs(ctx context.Context, handler func(context.Context, domain.IngestJob) error) error
}

// EvalRunRepository persists evaluation reports.
type EvalRunRepository interface {
	SaveReport(ctx context.Context, report *domain.EvalReport) error
	GetReport(ctx context.Context, id string) (*domain.EvalReport, error)
	ListRuns(ctx context.Context, limit int) ([]domain.EvalRunSummary, error)
}

// ChunkReader decodes a persisted chunk file.
type ChunkReader interface {
	ReadChunks(r io.Reader) ([]domain.Chunk, []domain.RecordError, error)
}
