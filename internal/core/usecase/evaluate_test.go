package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/it-support-rag/internal/core/domain"
	"github.com/kirillkom/it-support-rag/internal/core/rules"
)

// scriptedRetriever returns source ids per (question, normalize) pair.
type scriptedRetriever struct {
	sources map[string][]string
	err     error
}

func (r *scriptedRetriever) RetrieveTrace(_ context.Context, question string, topK int, mode domain.RetrievalMode) ([]domain.RetrievalResult, string, error) {
	if r.err != nil {
		return nil, "", r.err
	}
	key := question
	if mode.Normalize {
		key = "norm:" + question
	}
	if mode.CategoryFilter {
		key = "cat:" + question
	}
	var out []domain.RetrievalResult
	for _, src := range r.sources[key] {
		out = append(out, domain.RetrievalResult{ID: src + "_chunk_000", Metadata: map[string]any{"source_id": src}})
	}
	if len(out) > topK {
		out = out[:topK]
	}
	category := ""
	if mode.CategoryFilter {
		category = "vpn"
	}
	return out, category, nil
}

func TestHitsAtK(t *testing.T) {
	sources := []string{"a", "b", "gold", "c"}
	hits := HitsAtK(sources, "gold", []int{1, 3, 5})
	assert.Equal(t, map[int]int{1: 0, 3: 1, 5: 1}, hits)

	assert.Equal(t, map[int]int{1: 0}, HitsAtK(nil, "gold", []int{1}))
}

func TestEvaluateAggregatesPerConfig(t *testing.T) {
	retriever := &scriptedRetriever{sources: map[string][]string{
		"q1":      {"x", "gold1"},
		"norm:q1": {"gold1"},
		"cat:q1":  {"gold1"},
		"q2":      {"x", "y", "z"},
		"norm:q2": {"x", "y", "gold2"},
		"cat:q2":  {"gold2"},
	}}
	uc := NewEvaluateUseCase(retriever, 2)
	queries := []domain.EvalQuery{
		{ID: "1", Question: "q1", GoldSourceID: "gold1"},
		{ID: "2", Question: "q2", GoldSourceID: "gold2"},
	}

	report, err := uc.Evaluate(context.Background(), queries, []int{3, 1, 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, report.Ks)
	assert.Equal(t, 2, report.Total)
	require.Len(t, report.Results, 3)

	raw, ok := report.Result(ConfigRaw)
	require.True(t, ok)
	r1, _ := raw.Rate(1)
	r3, _ := raw.Rate(3)
	assert.Equal(t, 0.0, r1)
	assert.Equal(t, 0.5, r3)

	baseline, _ := report.Result(ConfigBaseline)
	b1, _ := baseline.Rate(1)
	b3, _ := baseline.Rate(3)
	assert.Equal(t, 0.5, b1)
	assert.Equal(t, 1.0, b3)

	category, _ := report.Result(ConfigCategoryAware)
	c1, _ := category.Rate(1)
	assert.Equal(t, 1.0, c1)
	assert.Equal(t, "vpn", category.Queries[0].PredictedCategory)
	assert.Equal(t, []string{"gold1"}, category.Queries[0].RetrievedSources)
	assert.Equal(t, "1", category.Queries[0].QueryID)
	assert.Equal(t, "2", category.Queries[1].QueryID)
}

func TestEvaluateHitRateMonotonicInK(t *testing.T) {
	retriever := &scriptedRetriever{sources: map[string][]string{
		"norm:a": {"x", "ga"},
		"norm:b": {"gb"},
		"norm:c": {"x", "y", "z", "w", "gc"},
	}}
	uc := NewEvaluateUseCase(retriever, 1)
	queries := []domain.EvalQuery{
		{ID: "a", Question: "a", GoldSourceID: "ga"},
		{ID: "b", Question: "b", GoldSourceID: "gb"},
		{ID: "c", Question: "c", GoldSourceID: "gc"},
	}
	report, err := uc.Evaluate(context.Background(), queries, DefaultKs, []domain.RetrievalConfig{
		{Name: ConfigBaseline, Mode: domain.RetrievalMode{Normalize: true}},
	})
	require.NoError(t, err)

	res := report.Results[0]
	prev := -1.0
	for _, hr := range res.HitRates {
		assert.GreaterOrEqual(t, hr.Rate, prev, "Hit@%d decreased", hr.K)
		prev = hr.Rate
	}
	r5, _ := res.Rate(5)
	assert.Equal(t, 1.0, r5)
}

func TestEvaluateNoQueries(t *testing.T) {
	uc := NewEvaluateUseCase(&scriptedRetriever{}, 1)
	report, err := uc.Evaluate(context.Background(), nil, nil, nil)
	require.NoError(t, err)
	for _, res := range report.Results {
		for _, hr := range res.HitRates {
			assert.Equal(t, 0.0, hr.Rate)
		}
	}
}

func TestEvaluateRejectsInvalidInput(t *testing.T) {
	uc := NewEvaluateUseCase(&scriptedRetriever{}, 1)

	_, err := uc.Evaluate(context.Background(), nil, []int{0}, nil)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	_, err = uc.Evaluate(context.Background(), nil, nil, []domain.RetrievalConfig{{Name: "x"}, {Name: "x"}})
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestEvaluatePropagatesRetrievalError(t *testing.T) {
	uc := NewEvaluateUseCase(&scriptedRetriever{err: errors.New("qdrant down")}, 1)
	_, err := uc.Evaluate(context.Background(), []domain.EvalQuery{{ID: "1", Question: "q"}}, nil, nil)
	require.Error(t, err)
}

func TestRelativeImprovement(t *testing.T) {
	imp := RelativeImprovement(0, 0.4)
	assert.False(t, imp.Defined)

	imp = RelativeImprovement(0.5, 0.75)
	assert.True(t, imp.Defined)
	assert.InDelta(t, 0.5, imp.Value, 1e-9)
}

func TestCompare(t *testing.T) {
	report := &domain.EvalReport{
		Ks: []int{1},
		Results: []domain.ConfigResult{
			{Config: domain.RetrievalConfig{Name: ConfigRaw}, HitRates: []domain.KHitRate{{K: 1, Rate: 0}}},
			{Config: domain.RetrievalConfig{Name: ConfigBaseline}, HitRates: []domain.KHitRate{{K: 1, Rate: 0.4}}},
		},
	}

	cmp, err := Compare(report, ConfigRaw)
	require.NoError(t, err)
	require.Len(t, cmp, 1)
	assert.Equal(t, ConfigBaseline, cmp[0].Variant)
	assert.False(t, cmp[0].Improvement.Defined)

	_, err = Compare(report, "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestEvaluateEndToEndWithMemoryStore(t *testing.T) {
	embedder := newKeywordEmbedder("printer", "vpn", "wifi")
	chunks := []domain.Chunk{
		{ID: "p_chunk_000", Text: "printer offline fix", Metadata: map[string]any{"category": "printer", "source_id": "runbook_printer"}},
		{ID: "v_chunk_000", Text: "vpn reconnect steps", Metadata: map[string]any{"category": "vpn", "source_id": "runbook_vpn"}},
		{ID: "w_chunk_000", Text: "wifi password rotation", Metadata: map[string]any{"category": "wifi", "source_id": "runbook_wifi"}},
	}
	store := seedMemoryStore(t, embedder, chunks)
	query := NewQueryUseCase(embedder, store, &recordingGenerator{}, rules.MustDefaultNormalizer(), rules.MustDefaultClassifier(), QueryConfig{Collection: "kb"})
	uc := NewEvaluateUseCase(query, 2)

	report, err := uc.Evaluate(context.Background(), []domain.EvalQuery{
		{ID: "t1", Question: "my preinter is broken", GoldSourceID: "runbook_printer"},
		{ID: "t2", Question: "VNP fails", GoldSourceID: "runbook_vpn"},
	}, []int{1}, nil)
	require.NoError(t, err)

	raw, _ := report.Result(ConfigRaw)
	baseline, _ := report.Result(ConfigBaseline)
	rawRate, _ := raw.Rate(1)
	baseRate, _ := baseline.Rate(1)
	assert.Less(t, rawRate, baseRate)
	assert.Equal(t, 1.0, baseRate)
}

type slowRetriever struct {
	gauge inFlightGauge
}

func (r *slowRetriever) RetrieveTrace(_ context.Context, question string, _ int, _ domain.RetrievalMode) ([]domain.RetrievalResult, string, error) {
	r.gauge.enter()
	defer r.gauge.leave()
	time.Sleep(5 * time.Millisecond)
	return []domain.RetrievalResult{{ID: question + "_chunk_000", Metadata: map[string]any{"source_id": question}}}, "", nil
}

func TestEvaluateBoundsConcurrentRetrievals(t *testing.T) {
	retriever := &slowRetriever{}
	uc := NewEvaluateUseCase(retriever, 3)

	queries := make([]domain.EvalQuery, 0, 8)
	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("q%d", i)
		queries = append(queries, domain.EvalQuery{ID: id, Question: id, GoldSourceID: id})
	}

	report, err := uc.Evaluate(context.Background(), queries, []int{1}, DefaultRetrievalConfigs())
	require.NoError(t, err)
	assert.Equal(t, 8, report.Total)

	for _, cfg := range DefaultRetrievalConfigs() {
		result, ok := report.Result(cfg.Name)
		require.True(t, ok)
		rate, _ := result.Rate(1)
		assert.Equal(t, 1.0, rate, cfg.Name)
	}
	peak := retriever.gauge.peak.Load()
	assert.GreaterOrEqual(t, peak, int32(1))
	assert.LessOrEqual(t, peak, int32(3))
}
