package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/it-support-rag/internal/core/domain"
	"github.com/kirillkom/it-support-rag/internal/core/ports"
)

const (
	defaultBatchSize   = 16
	defaultMaxInFlight = 4
)

type IndexConfig struct {
	Collection string
	// Dimension is the expected vector size; zero takes it from the first embedding.
	Dimension   int
	Distance    domain.Distance
	MaxInFlight int
}

type IndexUseCase struct {
	embedder ports.Embedder
	vectorDB ports.VectorStore
	cfg      IndexConfig

	mu        sync.Mutex
	dimension int
}

func NewIndexUseCase(embedder ports.Embedder, vectorDB ports.VectorStore, cfg IndexConfig) *IndexUseCase {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = defaultMaxInFlight
	}
	if cfg.Distance == "" {
		cfg.Distance = domain.DistanceCosine
	}
	return &IndexUseCase{
		embedder: embedder,
		vectorDB: vectorDB,
		cfg:      cfg,
	}
}

// Index embeds and upserts chunks in batches. Per-chunk problems are reported
// in the result; a failed upsert aborts the run.
func (uc *IndexUseCase) Index(ctx context.Context, chunks []domain.Chunk, batchSize int) (*domain.IndexReport, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	report := &domain.IndexReport{Total: len(chunks)}

	valid, failures := validateChunks(chunks)
	batches := splitBatches(valid, batchSize)
	batchFailures := make([][]domain.ChunkFailure, len(batches))
	indexed := make([]int, len(batches))

	if uc.cfg.Dimension > 0 {
		if err := uc.ensureCollection(ctx, uc.cfg.Dimension); err != nil {
			report.Failures = failures
			return report, err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.cfg.MaxInFlight)
	for i, batch := range batches {
		g.Go(func() error {
			n, batchFailed, err := uc.indexBatch(gctx, batch)
			indexed[i] = n
			batchFailures[i] = batchFailed
			return err
		})
	}
	err := g.Wait()

	for i := range batches {
		report.Indexed += indexed[i]
		failures = append(failures, batchFailures[i]...)
	}
	report.Failures = failures
	if err != nil {
		return report, err
	}

	slog.Info("index_completed",
		"collection", uc.cfg.Collection,
		"total", report.Total,
		"indexed", report.Indexed,
		"failed", len(report.Failures),
	)
	return report, nil
}

func (uc *IndexUseCase) indexBatch(ctx context.Context, batch []domain.Chunk) (int, []domain.ChunkFailure, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}

	vectors, failures, err := uc.embedBatch(ctx, batch)
	if err != nil {
		return 0, failures, err
	}

	points := make([]domain.Point, 0, len(batch))
	for i, chunk := range batch {
		vec := vectors[i]
		if vec == nil {
			continue
		}
		dim, err := uc.establishDimension(ctx, len(vec))
		if err != nil {
			return 0, failures, err
		}
		if len(vec) != dim {
			failures = append(failures, domain.ChunkFailure{
				ChunkID: chunk.ID,
				Reason:  fmt.Sprintf("embedding dimension %d does not match collection dimension %d", len(vec), dim),
			})
			continue
		}
		points = append(points, domain.Point{ID: chunk.ID, Vector: vec, Payload: chunk.Payload()})
	}
	if len(points) == 0 {
		return 0, failures, nil
	}

	if err := ctx.Err(); err != nil {
		return 0, failures, err
	}
	if err := uc.vectorDB.Upsert(ctx, uc.cfg.Collection, points); err != nil {
		return 0, failures, domain.UpstreamError(domain.GatewayVectorStore, "upsert points", err)
	}
	return len(points), failures, nil
}

// embedBatch falls back to one call per chunk when the batch call fails, so a
// single bad chunk does not sink its neighbours.
func (uc *IndexUseCase) embedBatch(ctx context.Context, batch []domain.Chunk) ([][]float32, []domain.ChunkFailure, error) {
	texts := make([]string, len(batch))
	for i, chunk := range batch {
		texts[i] = chunk.Text
	}

	vectors, err := uc.embedder.EmbedMany(ctx, texts)
	if err == nil && len(vectors) == len(batch) {
		return vectors, nil, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, nil, ctxErr
	}
	if err == nil {
		err = fmt.Errorf("expected %d embeddings, got %d", len(batch), len(vectors))
	}
	slog.Warn("embed_batch_failed", "chunks", len(batch), "error", err)

	vectors = make([][]float32, len(batch))
	var failures []domain.ChunkFailure
	for i, chunk := range batch {
		vec, err := uc.embedder.EmbedOne(ctx, chunk.Text)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, failures, ctxErr
				}
			}
			failures = append(failures, domain.ChunkFailure{ChunkID: chunk.ID, Reason: "embed: " + err.Error()})
			continue
		}
		vectors[i] = vec
	}
	return vectors, failures, nil
}

func (uc *IndexUseCase) establishDimension(ctx context.Context, candidate int) (int, error) {
	uc.mu.Lock()
	dim := uc.dimension
	uc.mu.Unlock()
	if dim > 0 {
		return dim, nil
	}
	if err := uc.ensureCollection(ctx, candidate); err != nil {
		return 0, err
	}
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.dimension, nil
}

func (uc *IndexUseCase) ensureCollection(ctx context.Context, dimension int) error {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if uc.dimension > 0 {
		return nil
	}
	if err := uc.vectorDB.EnsureCollection(ctx, uc.cfg.Collection, dimension, uc.cfg.Distance); err != nil {
		return domain.UpstreamError(domain.GatewayVectorStore, "ensure collection", err)
	}
	uc.dimension = dimension
	return nil
}

func validateChunks(chunks []domain.Chunk) ([]domain.Chunk, []domain.ChunkFailure) {
	valid := make([]domain.Chunk, 0, len(chunks))
	var failures []domain.ChunkFailure
	seen := make(map[string]struct{}, len(chunks))
	for _, chunk := range chunks {
		switch {
		case strings.TrimSpace(chunk.ID) == "":
			failures = append(failures, domain.ChunkFailure{ChunkID: chunk.ID, Reason: "missing chunk id"})
		case strings.TrimSpace(chunk.Text) == "":
			failures = append(failures, domain.ChunkFailure{ChunkID: chunk.ID, Reason: "empty text"})
		default:
			if _, dup := seen[chunk.ID]; dup {
				failures = append(failures, domain.ChunkFailure{ChunkID: chunk.ID, Reason: "duplicate chunk id"})
				continue
			}
			seen[chunk.ID] = struct{}{}
			valid = append(valid, chunk)
		}
	}
	return valid, failures
}

func splitBatches(chunks []domain.Chunk, size int) [][]domain.Chunk {
	out := make([][]domain.Chunk, 0, len(chunks)/size+1)
	for start := 0; start < len(chunks); start += size {
		end := start + size
		if end > len(chunks) {
			end = len(chunks)
		}
		out = append(out, chunks[start:end])
	}
	return out
}
