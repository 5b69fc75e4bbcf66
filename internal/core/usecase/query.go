package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kirillkom/it-support-rag/internal/core/domain"
	"github.com/kirillkom/it-support-rag/internal/core/ports"
)

const defaultTopK = 5

var tracer = otel.Tracer("github.com/kirillkom/it-support-rag/internal/core/usecase")

type QueryConfig struct {
	Collection  string
	DefaultTopK int
	// CallTimeout bounds each gateway call; zero leaves only the caller deadline.
	CallTimeout time.Duration
	// AnswerCategoryFilter enables classifier-gated search inside Answer.
	AnswerCategoryFilter bool
	Generation           domain.GenerationOptions
}

type QueryUseCase struct {
	embedder   ports.Embedder
	vectorDB   ports.VectorStore
	generator  ports.AnswerGenerator
	normalizer ports.TextNormalizer
	classifier ports.CategoryClassifier
	cfg        QueryConfig
}

func NewQueryUseCase(
	embedder ports.Embedder,
	vectorDB ports.VectorStore,
	generator ports.AnswerGenerator,
	normalizer ports.TextNormalizer,
	classifier ports.CategoryClassifier,
	cfg QueryConfig,
) *QueryUseCase {
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = defaultTopK
	}
	return &QueryUseCase{
		embedder:   embedder,
		vectorDB:   vectorDB,
		generator:  generator,
		normalizer: normalizer,
		classifier: classifier,
		cfg:        cfg,
	}
}

// Retrieve normalizes the question and returns up to topK chunks in gateway order.
func (uc *QueryUseCase) Retrieve(ctx context.Context, question string, topK int, categoryFiltering bool) ([]domain.RetrievalResult, error) {
	results, _, err := uc.retrieve(ctx, question, topK, domain.RetrievalMode{Normalize: true, CategoryFilter: categoryFiltering})
	return results, err
}

// RetrieveWithMode runs retrieval with normalization and category filtering toggled independently.
func (uc *QueryUseCase) RetrieveWithMode(ctx context.Context, question string, topK int, mode domain.RetrievalMode) ([]domain.RetrievalResult, error) {
	results, _, err := uc.retrieve(ctx, question, topK, mode)
	return results, err
}

// RetrieveTrace is RetrieveWithMode that also reports the category used for filtering.
func (uc *QueryUseCase) RetrieveTrace(ctx context.Context, question string, topK int, mode domain.RetrievalMode) ([]domain.RetrievalResult, string, error) {
	return uc.retrieve(ctx, question, topK, mode)
}

func (uc *QueryUseCase) Answer(ctx context.Context, question string, topK int) (*domain.Answer, error) {
	ctx, span := tracer.Start(ctx, "query.answer")
	defer span.End()

	if err := validateQuestion(question); err != nil {
		return nil, recordSpanError(span, err)
	}
	normalized := uc.normalizer.Normalize(question)

	chunks, category, err := uc.retrieve(ctx, question, topK, domain.RetrievalMode{Normalize: true, CategoryFilter: uc.cfg.AnswerCategoryFilter})
	if err != nil {
		return nil, recordSpanError(span, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, recordSpanError(span, fmt.Errorf("generate answer: %w", err))
	}
	contextChunks := make([]domain.ContextChunk, 0, len(chunks))
	for _, chunk := range chunks {
		contextChunks = append(contextChunks, domain.ContextChunk{Text: chunk.Text, Score: chunk.Score})
	}

	genCtx, cancel := uc.withCallTimeout(ctx)
	defer cancel()
	answerText, err := uc.generator.Generate(genCtx, normalized, contextChunks, uc.cfg.Generation)
	if err != nil {
		return nil, recordSpanError(span, gatewayError(domain.GatewayGeneration, "generate answer", err))
	}

	span.SetAttributes(attribute.Int("rag.context_chunks", len(contextChunks)))
	return &domain.Answer{
		Text:               answerText,
		Question:           question,
		NormalizedQuestion: normalized,
		Category:           category,
		Chunks:             chunks,
	}, nil
}

func (uc *QueryUseCase) retrieve(ctx context.Context, question string, topK int, mode domain.RetrievalMode) ([]domain.RetrievalResult, string, error) {
	ctx, span := tracer.Start(ctx, "query.retrieve", trace.WithAttributes(
		attribute.Bool("rag.normalize", mode.Normalize),
		attribute.Bool("rag.category_filter", mode.CategoryFilter),
	))
	defer span.End()

	if err := validateQuestion(question); err != nil {
		return nil, "", recordSpanError(span, err)
	}
	if topK < 0 {
		return nil, "", recordSpanError(span, domain.WrapError(domain.ErrInvalidInput, "retrieve", fmt.Errorf("top_k must be positive, got %d", topK)))
	}
	if topK == 0 {
		topK = uc.cfg.DefaultTopK
	}
	span.SetAttributes(attribute.Int("rag.top_k", topK))

	text := question
	if mode.Normalize {
		text = uc.normalizer.Normalize(question)
	}

	if err := ctx.Err(); err != nil {
		return nil, "", recordSpanError(span, fmt.Errorf("embed query: %w", err))
	}
	embedCtx, cancel := uc.withCallTimeout(ctx)
	queryVector, err := uc.embedder.EmbedOne(embedCtx, text)
	cancel()
	if err != nil {
		return nil, "", recordSpanError(span, gatewayError(domain.GatewayEmbedding, "embed query", err))
	}

	// The classifier sees the same text that was embedded.
	filter := domain.SearchFilter{}
	category := ""
	if mode.CategoryFilter {
		if label, ok := uc.classifier.Classify(text); ok {
			category = label
			filter = domain.CategoryFilter(label)
			span.SetAttributes(attribute.String("rag.category", label))
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, "", recordSpanError(span, fmt.Errorf("search vector db: %w", err))
	}
	searchCtx, cancel := uc.withCallTimeout(ctx)
	points, err := uc.vectorDB.Search(searchCtx, uc.cfg.Collection, queryVector, topK, filter)
	cancel()
	if err != nil {
		return nil, "", recordSpanError(span, gatewayError(domain.GatewayVectorStore, "search vector db", err))
	}

	results := make([]domain.RetrievalResult, 0, len(points))
	for _, p := range points {
		results = append(results, toRetrievalResult(p))
	}
	span.SetAttributes(attribute.Int("rag.results", len(results)))
	return results, category, nil
}

func (uc *QueryUseCase) withCallTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if uc.cfg.CallTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, uc.cfg.CallTimeout)
}

func toRetrievalResult(p domain.ScoredPoint) domain.RetrievalResult {
	metadata := make(map[string]any, len(p.Payload))
	for k, v := range p.Payload {
		if k == domain.PayloadText {
			continue
		}
		metadata[k] = v
	}
	return domain.RetrievalResult{
		ID:       p.ID,
		Text:     domain.MetadataString(p.Payload, domain.PayloadText),
		Metadata: metadata,
		Score:    p.Score,
	}
}

func validateQuestion(question string) error {
	if strings.TrimSpace(question) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "validate question", errors.New("question is empty"))
	}
	return nil
}

// gatewayError types a gateway failure. Cancellation by the caller is passed
// through unchanged.
func gatewayError(gateway, operation string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return domain.UpstreamError(gateway, operation, err)
}

func recordSpanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
