package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/kirillkom/it-support-rag/internal/core/domain"
)

type collection struct {
	dimension int
	distance  domain.Distance
	points    map[string]domain.Point
}

// Store is an in-process vector store using brute-force similarity. It is
// used for offline runs and tests.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

func NewStore() *Store {
	return &Store{collections: make(map[string]*collection)}
}

func (s *Store) EnsureCollection(_ context.Context, name string, dimension int, distance domain.Distance) error {
	if dimension <= 0 {
		return domain.WrapError(domain.ErrValidation, "ensure collection", fmt.Errorf("invalid dimension %d", dimension))
	}
	if distance == "" {
		distance = domain.DistanceCosine
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.collections[name]; ok {
		if existing.dimension != dimension {
			return domain.WrapError(domain.ErrValidation, "ensure collection",
				fmt.Errorf("collection %s has dimension %d, requested %d", name, existing.dimension, dimension))
		}
		return nil
	}
	s.collections[name] = &collection{
		dimension: dimension,
		distance:  distance,
		points:    make(map[string]domain.Point),
	}
	return nil
}

func (s *Store) Upsert(_ context.Context, name string, points []domain.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.collections[name]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "upsert points", fmt.Errorf("collection %s", name))
	}
	for _, p := range points {
		if len(p.Vector) != coll.dimension {
			return domain.WrapError(domain.ErrValidation, "upsert points",
				fmt.Errorf("point %s has dimension %d, collection expects %d", p.ID, len(p.Vector), coll.dimension))
		}
	}
	for _, p := range points {
		vec := make([]float32, len(p.Vector))
		copy(vec, p.Vector)
		coll.points[p.ID] = domain.Point{ID: p.ID, Vector: vec, Payload: domain.CloneMetadata(p.Payload)}
	}
	return nil
}

// Search returns up to limit points ordered best first. Cosine and Dot scores
// are similarities; Euclid scores are distances in ascending order.
func (s *Store) Search(ctx context.Context, name string, vector []float32, limit int, filter domain.SearchFilter) ([]domain.ScoredPoint, error) {
	if limit <= 0 {
		return []domain.ScoredPoint{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	coll, ok := s.collections[name]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "search points", fmt.Errorf("collection %s", name))
	}
	if len(vector) != coll.dimension {
		return nil, domain.WrapError(domain.ErrValidation, "search points",
			fmt.Errorf("query has dimension %d, collection expects %d", len(vector), coll.dimension))
	}

	results := make([]domain.ScoredPoint, 0, len(coll.points))
	for _, p := range coll.points {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !filter.Matches(p.Payload) {
			continue
		}
		results = append(results, domain.ScoredPoint{
			ID:      p.ID,
			Score:   score(coll.distance, vector, p.Vector),
			Payload: domain.CloneMetadata(p.Payload),
		})
	}

	ascending := coll.distance == domain.DistanceEuclid
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			if ascending {
				return results[i].Score < results[j].Score
			}
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *Store) Count(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if coll, ok := s.collections[name]; ok {
		return len(coll.points)
	}
	return 0
}

func score(distance domain.Distance, a, b []float32) float64 {
	switch distance {
	case domain.DistanceDot:
		return dot(a, b)
	case domain.DistanceEuclid:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return math.Sqrt(sum)
	default:
		na := math.Sqrt(dot(a, a))
		nb := math.Sqrt(dot(b, b))
		if na == 0 || nb == 0 {
			return 0
		}
		return dot(a, b) / (na * nb)
	}
}

func dot(a, b []float32) float64 {
	sum := 0.0
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
