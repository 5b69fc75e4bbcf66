package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/it-support-rag/internal/core/domain"
	"github.com/kirillkom/it-support-rag/internal/core/ports"
)

// IngestJobUseCase stores uploaded chunk files and indexes them asynchronously.
type IngestJobUseCase struct {
	storage   ports.ObjectStorage
	queue     ports.JobQueue
	reader    ports.ChunkReader
	indexer   ports.ChunkIndexer
	batchSize int
}

func NewIngestJobUseCase(
	storage ports.ObjectStorage,
	queue ports.JobQueue,
	reader ports.ChunkReader,
	indexer ports.ChunkIndexer,
	batchSize int,
) *IngestJobUseCase {
	return &IngestJobUseCase{
		storage:   storage,
		queue:     queue,
		reader:    reader,
		indexer:   indexer,
		batchSize: batchSize,
	}
}

func (uc *IngestJobUseCase) Enqueue(ctx context.Context, filename string, body io.Reader) (*domain.IngestJob, error) {
	id := uuid.NewString()
	job := domain.IngestJob{
		ID:         id,
		StorageKey: fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)),
		Filename:   filename,
		CreatedAt:  time.Now().UTC(),
	}

	if err := uc.storage.Save(ctx, job.StorageKey, body); err != nil {
		return nil, fmt.Errorf("save chunk file: %w", err)
	}
	if err := uc.queue.PublishIngestJob(ctx, job); err != nil {
		if delErr := uc.storage.Delete(context.WithoutCancel(ctx), job.StorageKey); delErr != nil {
			slog.Warn("ingest_orphan_cleanup_failed", "storage_key", job.StorageKey, "error", delErr)
		}
		return nil, fmt.Errorf("publish ingest job: %w", err)
	}
	return &job, nil
}

func (uc *IngestJobUseCase) Process(ctx context.Context, job domain.IngestJob) (*domain.IndexReport, error) {
	reader, err := uc.storage.Open(ctx, job.StorageKey)
	if err != nil {
		return nil, domain.WrapError(domain.ErrNotFound, "open chunk file", err)
	}
	defer reader.Close()

	chunks, invalid, err := uc.reader.ReadChunks(reader)
	if err != nil {
		return nil, domain.WrapError(domain.ErrValidation, "read chunk file", err)
	}

	report, err := uc.indexer.Index(ctx, chunks, uc.batchSize)
	if report == nil {
		report = &domain.IndexReport{}
	}
	for _, rec := range invalid {
		report.Total++
		report.Failures = append(report.Failures, domain.ChunkFailure{
			ChunkID: fmt.Sprintf("line:%d", rec.Line),
			Reason:  rec.Reason,
		})
	}
	if err != nil {
		return report, fmt.Errorf("index job %s: %w", job.ID, err)
	}

	slog.Info("ingest_job_processed",
		"job_id", job.ID,
		"filename", job.Filename,
		"indexed", report.Indexed,
		"failed", len(report.Failures),
	)
	return report, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == "/" {
		return "chunks.jsonl"
	}
	return base
}
