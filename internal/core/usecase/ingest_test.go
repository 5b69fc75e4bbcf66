package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/it-support-rag/internal/core/domain"
	"github.com/kirillkom/it-support-rag/internal/infrastructure/chunking"
)

type indexerFake struct {
	chunks    []domain.Chunk
	batchSize int
	err       error
}

func (f *indexerFake) Index(_ context.Context, chunks []domain.Chunk, batchSize int) (*domain.IndexReport, error) {
	f.chunks = chunks
	f.batchSize = batchSize
	report := &domain.IndexReport{Total: len(chunks), Indexed: len(chunks)}
	if f.err != nil {
		report.Indexed = 0
		return report, f.err
	}
	return report, nil
}

func TestEnqueueStoresFileAndPublishesJob(t *testing.T) {
	storage := newStorageFake()
	queue := &queueFake{}
	uc := NewIngestJobUseCase(storage, queue, chunking.JSONLReader{}, &indexerFake{}, 16)

	job, err := uc.Enqueue(context.Background(), "../my chunks.jsonl", strings.NewReader(`{"id":"a","text":"t"}`))
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if !strings.HasSuffix(job.StorageKey, "_my_chunks.jsonl") || strings.Contains(job.StorageKey, "..") {
		t.Fatalf("unexpected storage key %q", job.StorageKey)
	}
	if len(queue.jobs) != 1 || queue.jobs[0].ID != job.ID {
		t.Fatalf("expected published job, got %+v", queue.jobs)
	}
	if storage.files[job.StorageKey] == "" {
		t.Fatalf("expected file to be stored")
	}
}

func TestEnqueuePublishFailure(t *testing.T) {
	storage := newStorageFake()
	uc := NewIngestJobUseCase(storage, &queueFake{err: errors.New("nats down")}, chunking.JSONLReader{}, &indexerFake{}, 16)
	if _, err := uc.Enqueue(context.Background(), "c.jsonl", strings.NewReader(`{"id":"a"}`)); err == nil {
		t.Fatalf("expected error")
	}
	if len(storage.files) != 0 {
		t.Fatalf("stored file left behind after failed publish: %v", storage.files)
	}
}

func TestProcessIndexesValidRecordsAndReportsInvalid(t *testing.T) {
	storage := newStorageFake()
	storage.files["k"] = strings.Join([]string{
		`{"id":"a_chunk_000","text":"one","metadata":{}}`,
		`not json`,
		`{"id":"b_chunk_000","text":"two","metadata":{}}`,
	}, "\n")
	indexer := &indexerFake{}
	uc := NewIngestJobUseCase(storage, &queueFake{}, chunking.JSONLReader{}, indexer, 8)

	report, err := uc.Process(context.Background(), domain.IngestJob{ID: "j", StorageKey: "k"})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(indexer.chunks) != 2 || indexer.batchSize != 8 {
		t.Fatalf("unexpected indexer call: %d chunks, batch %d", len(indexer.chunks), indexer.batchSize)
	}
	if report.Total != 3 || report.Indexed != 2 || len(report.Failures) != 1 || report.Failures[0].ChunkID != "line:2" {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestProcessMissingFile(t *testing.T) {
	uc := NewIngestJobUseCase(newStorageFake(), &queueFake{}, chunking.JSONLReader{}, &indexerFake{}, 8)
	_, err := uc.Process(context.Background(), domain.IngestJob{ID: "j", StorageKey: "missing"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestProcessIndexFailure(t *testing.T) {
	storage := newStorageFake()
	storage.files["k"] = `{"id":"a","text":"one"}`
	uc := NewIngestJobUseCase(storage, &queueFake{}, chunking.JSONLReader{}, &indexerFake{err: domain.UpstreamError(domain.GatewayVectorStore, "upsert points", errors.New("down"))}, 8)

	report, err := uc.Process(context.Background(), domain.IngestJob{ID: "j", StorageKey: "k"})
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if report == nil || report.Indexed != 0 {
		t.Fatalf("expected partial report, got %+v", report)
	}
}
