package domain

import (
	"fmt"
	"sort"
	"strings"
)

type Distance string

const (
	DistanceCosine Distance = "Cosine"
	DistanceDot    Distance = "Dot"
	DistanceEuclid Distance = "Euclid"
)

func ParseDistance(value string) (Distance, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "cosine":
		return DistanceCosine, nil
	case "dot", "dotproduct":
		return DistanceDot, nil
	case "euclid", "l2":
		return DistanceEuclid, nil
	default:
		return "", WrapError(ErrConfiguration, "parse distance", fmt.Errorf("unknown distance %q", value))
	}
}

// SearchFilter constrains matches to payload field equality.
type SearchFilter struct {
	Equals map[string]string
}

func CategoryFilter(category string) SearchFilter {
	if category == "" {
		return SearchFilter{}
	}
	return SearchFilter{Equals: map[string]string{MetaCategory: category}}
}

func (f SearchFilter) IsZero() bool {
	return len(f.Equals) == 0
}

// Keys returns filter keys in a stable order.
func (f SearchFilter) Keys() []string {
	keys := make([]string, 0, len(f.Equals))
	for k := range f.Equals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (f SearchFilter) Matches(payload map[string]any) bool {
	for k, want := range f.Equals {
		if MetadataString(payload, k) != want {
			return false
		}
	}
	return true
}

type ScoredPoint struct {
	ID      string
	Score   float64
	Payload map[string]any
}

type RetrievalResult struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
	Score    float64        `json:"score"`
}

func (r RetrievalResult) SourceID() string {
	return MetadataString(r.Metadata, MetaSourceID)
}

// RetrievalMode toggles the optional stages of a retrieval.
type RetrievalMode struct {
	Normalize      bool `json:"normalize"`
	CategoryFilter bool `json:"category_filter"`
}

type ContextChunk struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

type GenerationOptions struct {
	Temperature     float32
	MaxOutputTokens int
}

type Answer struct {
	Text               string            `json:"answer"`
	Question           string            `json:"question"`
	NormalizedQuestion string            `json:"normalized_question"`
	Category           string            `json:"category,omitempty"`
	Chunks             []RetrievalResult `json:"chunks"`
}
