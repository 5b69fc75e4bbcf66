package redis

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kirillkom/it-support-rag/internal/core/ports"
)

// KV is the subset of the redis client used by the cache.
type KV interface {
	MGet(ctx context.Context, keys ...string) *goredis.SliceCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
}

// EmbeddingCache memoizes vectors by model and text hash. Redis failures are
// logged and the wrapped embedder is used, so results never depend on the cache.
type EmbeddingCache struct {
	next   ports.Embedder
	kv     KV
	model  string
	ttl    time.Duration
	logger *slog.Logger
}

func NewEmbeddingCache(next ports.Embedder, kv KV, model string, ttl time.Duration) *EmbeddingCache {
	return &EmbeddingCache{
		next:   next,
		kv:     kv,
		model:  model,
		ttl:    ttl,
		logger: slog.Default(),
	}
}

func NewClient(addr, password string, db int) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func (c *EmbeddingCache) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *EmbeddingCache) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	keys := make([]string, len(texts))
	for i, text := range texts {
		keys[i] = c.key(text)
	}

	out := make([][]float32, len(texts))
	cached, err := c.kv.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.Warn("embedding_cache_read_failed", "error", err, "keys", len(keys))
		cached = nil
	}
	missing := make([]int, 0, len(texts))
	for i := range texts {
		if i < len(cached) {
			if vec, ok := decodeVector(cached[i]); ok {
				out[i] = vec
				continue
			}
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	pending := make([]string, len(missing))
	for j, idx := range missing {
		pending[j] = texts[idx]
	}
	vectors, err := c.next.EmbedMany(ctx, pending)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(pending) {
		return nil, fmt.Errorf("embedding cache: expected %d embeddings, got %d", len(pending), len(vectors))
	}
	for j, idx := range missing {
		out[idx] = vectors[j]
		if err := c.kv.Set(ctx, keys[idx], encodeVector(vectors[j]), c.ttl).Err(); err != nil {
			c.logger.Warn("embedding_cache_write_failed", "error", err)
		}
	}
	return out, nil
}

func (c *EmbeddingCache) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + c.model + ":" + hex.EncodeToString(sum[:])
}

func encodeVector(vec []float32) string {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return string(buf)
}

func decodeVector(raw any) ([]float32, bool) {
	s, ok := raw.(string)
	if !ok || len(s) == 0 || len(s)%4 != 0 {
		return nil, false
	}
	out := make([]float32, len(s)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32([]byte(s[i*4 : i*4+4])))
	}
	return out, true
}
