package hashing

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/kirillkom/it-support-rag/internal/core/domain"
)

const (
	DefaultDimension = 384
	tfSaturationK    = 1.2
	bigramWeight     = 0.5
)

// Embedder is an offline dense embedder based on signed feature hashing of
// word unigrams and bigrams. Vectors are L2-normalized.
type Embedder struct {
	dimension int
}

func New(dimension int) (*Embedder, error) {
	if dimension <= 0 {
		return nil, domain.WrapError(domain.ErrConfiguration, "new hashing embedder", fmt.Errorf("dimension must be positive, got %d", dimension))
	}
	return &Embedder{dimension: dimension}, nil
}

func (e *Embedder) Dimension() int {
	return e.dimension
}

func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.encode(text), nil
}

func (e *Embedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, e.encode(text))
	}
	return out, nil
}

func (e *Embedder) encode(text string) []float32 {
	tokens := tokenize(text)
	termFreq := make(map[string]float64, len(tokens)*2)
	for i, token := range tokens {
		termFreq[token] += 1.0
		if i > 0 {
			termFreq[tokens[i-1]+" "+token] += bigramWeight
		}
	}

	acc := make([]float64, e.dimension)
	for term, tf := range termFreq {
		idx, sign := e.bucket(term)
		weight := (tf * (tfSaturationK + 1.0)) / (tf + tfSaturationK)
		acc[idx] += sign * weight
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, e.dimension)
	if norm == 0 {
		return out
	}
	for i, v := range acc {
		out[i] = float32(v / norm)
	}
	return out
}

func (e *Embedder) bucket(term string) (int, float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(term))
	sum := h.Sum64()
	sign := 1.0
	if sum>>63 == 1 {
		sign = -1.0
	}
	return int(sum % uint64(e.dimension)), sign
}

func tokenize(s string) []string {
	if s == "" {
		return nil
	}
	out := make([]string, 0, 24)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			out = append(out, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}
