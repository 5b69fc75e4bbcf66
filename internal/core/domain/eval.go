package domain

import "time"

type EvalQuery struct {
	ID           string `json:"id" yaml:"id"`
	Question     string `json:"question" yaml:"question"`
	GoldSourceID string `json:"gold_source_id" yaml:"gold_source_id"`
}

// RetrievalConfig is a named retrieval configuration compared by the harness.
type RetrievalConfig struct {
	Name string        `json:"name"`
	Mode RetrievalMode `json:"mode"`
}

type KHitRate struct {
	K    int     `json:"k"`
	Hits int     `json:"hits"`
	Rate float64 `json:"rate"`
}

type QueryOutcome struct {
	QueryID           string      `json:"query_id"`
	Question          string      `json:"question"`
	GoldSourceID      string      `json:"gold_source_id"`
	PredictedCategory string      `json:"predicted_category,omitempty"`
	RetrievedSources  []string    `json:"retrieved_sources"`
	Hits              map[int]int `json:"hits"`
}

type ConfigResult struct {
	Config   RetrievalConfig `json:"config"`
	HitRates []KHitRate      `json:"hit_rates"`
	Queries  []QueryOutcome  `json:"queries"`
}

func (r ConfigResult) Rate(k int) (float64, bool) {
	for _, hr := range r.HitRates {
		if hr.K == k {
			return hr.Rate, true
		}
	}
	return 0, false
}

type EvalReport struct {
	ID         string         `json:"id"`
	Ks         []int          `json:"ks"`
	Total      int            `json:"total"`
	Results    []ConfigResult `json:"results"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

func (r *EvalReport) Result(name string) (ConfigResult, bool) {
	for _, res := range r.Results {
		if res.Config.Name == name {
			return res, true
		}
	}
	return ConfigResult{}, false
}

// Improvement is a relative change; Defined is false when the baseline rate is zero.
type Improvement struct {
	Value   float64 `json:"value"`
	Defined bool    `json:"defined"`
}

type Comparison struct {
	Baseline     string      `json:"baseline"`
	Variant      string      `json:"variant"`
	K            int         `json:"k"`
	BaselineRate float64     `json:"baseline_rate"`
	VariantRate  float64     `json:"variant_rate"`
	Improvement  Improvement `json:"improvement"`
}

type EvalRunSummary struct {
	ID         string    `json:"id"`
	Total      int       `json:"total"`
	Configs    []string  `json:"configs"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
