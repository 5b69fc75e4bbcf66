package ports

import (
	"context"
	"io"

	"github.com/kirillkom/it-support-rag/internal/core/domain"
)

// QuestionAnswerer is the inbound contract for retrieval and answer generation.
type QuestionAnswerer interface {
	Retrieve(ctx context.Context, question string, topK int, categoryFiltering bool) ([]domain.RetrievalResult, error)
	RetrieveWithMode(ctx context.Context, question string, topK int, mode domain.RetrievalMode) ([]domain.RetrievalResult, error)
	Answer(ctx context.Context, question string, topK int) (*domain.Answer, error)
}

// ChunkIndexer is the inbound contract for synchronous chunk indexing.
type ChunkIndexer interface {
	Index(ctx context.Context, chunks []domain.Chunk, batchSize int) (*domain.IndexReport, error)
}

// ChunkUploader accepts a chunk file for asynchronous indexing.
type ChunkUploader interface {
	Enqueue(ctx context.Context, filename string, body io.Reader) (*domain.IngestJob, error)
}
