package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/it-support-rag/internal/core/domain"
)

// Names of the standard retrieval configurations.
const (
	ConfigRaw           = "raw"
	ConfigBaseline      = "baseline"
	ConfigCategoryAware = "category-aware"
)

var DefaultKs = []int{1, 3, 5}

func DefaultRetrievalConfigs() []domain.RetrievalConfig {
	return []domain.RetrievalConfig{
		{Name: ConfigRaw, Mode: domain.RetrievalMode{Normalize: false, CategoryFilter: false}},
		{Name: ConfigBaseline, Mode: domain.RetrievalMode{Normalize: true, CategoryFilter: false}},
		{Name: ConfigCategoryAware, Mode: domain.RetrievalMode{Normalize: true, CategoryFilter: true}},
	}
}

// ModeRetriever runs one retrieval and reports the category it filtered on.
type ModeRetriever interface {
	RetrieveTrace(ctx context.Context, question string, topK int, mode domain.RetrievalMode) ([]domain.RetrievalResult, string, error)
}

type EvaluateUseCase struct {
	retriever   ModeRetriever
	maxInFlight int
	now         func() time.Time
}

func NewEvaluateUseCase(retriever ModeRetriever, maxInFlight int) *EvaluateUseCase {
	if maxInFlight <= 0 {
		maxInFlight = defaultMaxInFlight
	}
	return &EvaluateUseCase{
		retriever:   retriever,
		maxInFlight: maxInFlight,
		now:         time.Now,
	}
}

// Evaluate scores every configuration against the same queries. Hit@k is the
// share of queries whose gold source appears among the first k results.
func (uc *EvaluateUseCase) Evaluate(
	ctx context.Context,
	queries []domain.EvalQuery,
	ks []int,
	configs []domain.RetrievalConfig,
) (*domain.EvalReport, error) {
	ks, err := normalizeKs(ks)
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		configs = DefaultRetrievalConfigs()
	}
	if err := validateConfigs(configs); err != nil {
		return nil, err
	}
	maxK := ks[len(ks)-1]

	report := &domain.EvalReport{
		ID:        uuid.NewString(),
		Ks:        ks,
		Total:     len(queries),
		StartedAt: uc.now().UTC(),
	}

	outcomes := make([][]domain.QueryOutcome, len(configs))
	for i := range configs {
		outcomes[i] = make([]domain.QueryOutcome, len(queries))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.maxInFlight)
	for ci, cfg := range configs {
		for qi, query := range queries {
			g.Go(func() error {
				outcome, err := uc.evaluateQuery(gctx, query, cfg.Mode, ks, maxK)
				if err != nil {
					return fmt.Errorf("evaluate %s query %s: %w", cfg.Name, query.ID, err)
				}
				outcomes[ci][qi] = outcome
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for ci, cfg := range configs {
		report.Results = append(report.Results, domain.ConfigResult{
			Config:   cfg,
			HitRates: aggregateHits(outcomes[ci], ks),
			Queries:  outcomes[ci],
		})
	}
	report.FinishedAt = uc.now().UTC()

	for _, res := range report.Results {
		for _, hr := range res.HitRates {
			slog.Info("eval_hit_rate", "config", res.Config.Name, "k", hr.K, "hits", hr.Hits, "total", report.Total, "rate", hr.Rate)
		}
	}
	return report, nil
}

func (uc *EvaluateUseCase) evaluateQuery(
	ctx context.Context,
	query domain.EvalQuery,
	mode domain.RetrievalMode,
	ks []int,
	maxK int,
) (domain.QueryOutcome, error) {
	results, category, err := uc.retriever.RetrieveTrace(ctx, query.Question, maxK, mode)
	if err != nil {
		return domain.QueryOutcome{}, err
	}

	sources := make([]string, 0, len(results))
	for _, r := range results {
		sources = append(sources, r.SourceID())
	}
	return domain.QueryOutcome{
		QueryID:           query.ID,
		Question:          query.Question,
		GoldSourceID:      query.GoldSourceID,
		PredictedCategory: category,
		RetrievedSources:  sources,
		Hits:              HitsAtK(sources, query.GoldSourceID, ks),
	}, nil
}

// HitsAtK reports 1 for each k whose prefix of sources contains gold.
func HitsAtK(sources []string, gold string, ks []int) map[int]int {
	hits := make(map[int]int, len(ks))
	for _, k := range ks {
		limit := k
		if limit > len(sources) {
			limit = len(sources)
		}
		hits[k] = 0
		for _, src := range sources[:limit] {
			if src == gold {
				hits[k] = 1
				break
			}
		}
	}
	return hits
}

func aggregateHits(outcomes []domain.QueryOutcome, ks []int) []domain.KHitRate {
	out := make([]domain.KHitRate, 0, len(ks))
	for _, k := range ks {
		hits := 0
		for _, o := range outcomes {
			hits += o.Hits[k]
		}
		rate := 0.0
		if len(outcomes) > 0 {
			rate = float64(hits) / float64(len(outcomes))
		}
		out = append(out, domain.KHitRate{K: k, Hits: hits, Rate: rate})
	}
	return out
}

// RelativeImprovement is (variant-baseline)/baseline, undefined for a zero baseline.
func RelativeImprovement(baseline, variant float64) domain.Improvement {
	if baseline == 0 {
		return domain.Improvement{}
	}
	return domain.Improvement{Value: (variant - baseline) / baseline, Defined: true}
}

// Compare reports every other configuration against the named baseline for each k.
func Compare(report *domain.EvalReport, baseline string) ([]domain.Comparison, error) {
	base, ok := report.Result(baseline)
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "compare", fmt.Errorf("configuration %q not in report", baseline))
	}

	var out []domain.Comparison
	for _, res := range report.Results {
		if res.Config.Name == baseline {
			continue
		}
		for _, k := range report.Ks {
			a, _ := base.Rate(k)
			b, _ := res.Rate(k)
			out = append(out, domain.Comparison{
				Baseline:     baseline,
				Variant:      res.Config.Name,
				K:            k,
				BaselineRate: a,
				VariantRate:  b,
				Improvement:  RelativeImprovement(a, b),
			})
		}
	}
	return out, nil
}

func normalizeKs(ks []int) ([]int, error) {
	if len(ks) == 0 {
		ks = DefaultKs
	}
	seen := make(map[int]struct{}, len(ks))
	out := make([]int, 0, len(ks))
	for _, k := range ks {
		if k <= 0 {
			return nil, domain.WrapError(domain.ErrInvalidInput, "evaluate", fmt.Errorf("k must be positive, got %d", k))
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Ints(out)
	return out, nil
}

func validateConfigs(configs []domain.RetrievalConfig) error {
	seen := make(map[string]struct{}, len(configs))
	for _, cfg := range configs {
		if cfg.Name == "" {
			return domain.WrapError(domain.ErrInvalidInput, "evaluate", fmt.Errorf("configuration name is empty"))
		}
		if _, dup := seen[cfg.Name]; dup {
			return domain.WrapError(domain.ErrInvalidInput, "evaluate", fmt.Errorf("duplicate configuration %q", cfg.Name))
		}
		seen[cfg.Name] = struct{}{}
	}
	return nil
}
