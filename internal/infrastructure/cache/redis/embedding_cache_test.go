package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type kvFake struct {
	data    map[string]string
	readErr error
	sets    int
}

func newKVFake() *kvFake {
	return &kvFake{data: make(map[string]string)}
}

func (f *kvFake) MGet(_ context.Context, keys ...string) *goredis.SliceCmd {
	if f.readErr != nil {
		return goredis.NewSliceResult(nil, f.readErr)
	}
	vals := make([]any, len(keys))
	for i, k := range keys {
		if v, ok := f.data[k]; ok {
			vals[i] = v
		}
	}
	return goredis.NewSliceResult(vals, nil)
}

func (f *kvFake) Set(_ context.Context, key string, value any, _ time.Duration) *goredis.StatusCmd {
	f.sets++
	f.data[key] = value.(string)
	return goredis.NewStatusResult("OK", nil)
}

type countingEmbedder struct {
	calls  int
	inputs []string
	err    error
}

func (e *countingEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	v, err := e.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (e *countingEmbedder) EmbedMany(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	e.inputs = append(e.inputs, texts...)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), 0.5}
	}
	return out, nil
}

func TestEmbeddingCacheHitsSkipUpstream(t *testing.T) {
	kv := newKVFake()
	next := &countingEmbedder{}
	cache := NewEmbeddingCache(next, kv, "m", time.Hour)
	ctx := context.Background()

	first, err := cache.EmbedMany(ctx, []string{"vpn", "printer"})
	if err != nil {
		t.Fatalf("EmbedMany() error = %v", err)
	}
	second, err := cache.EmbedMany(ctx, []string{"printer", "wifi", "vpn"})
	if err != nil {
		t.Fatalf("EmbedMany() error = %v", err)
	}
	if next.calls != 2 || len(next.inputs) != 3 || next.inputs[2] != "wifi" {
		t.Fatalf("expected only wifi to be embedded on second call, got %v", next.inputs)
	}
	if second[0][0] != first[1][0] || second[2][0] != first[0][0] || second[1][0] != 4 {
		t.Fatalf("unexpected vectors: %v / %v", first, second)
	}
	if kv.sets != 3 {
		t.Fatalf("expected 3 cache writes, got %d", kv.sets)
	}
}

func TestEmbeddingCacheFallsBackOnReadFailure(t *testing.T) {
	kv := newKVFake()
	kv.readErr = errors.New("connection refused")
	next := &countingEmbedder{}
	cache := NewEmbeddingCache(next, kv, "m", time.Hour)

	vec, err := cache.EmbedOne(context.Background(), "outlook")
	if err != nil {
		t.Fatalf("EmbedOne() error = %v", err)
	}
	if vec[0] != 7 || next.calls != 1 {
		t.Fatalf("expected upstream result, got %v after %d calls", vec, next.calls)
	}
}

func TestEmbeddingCachePropagatesUpstreamError(t *testing.T) {
	next := &countingEmbedder{err: errors.New("upstream down")}
	cache := NewEmbeddingCache(next, newKVFake(), "m", time.Hour)
	if _, err := cache.EmbedOne(context.Background(), "x"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestVectorCodecRoundTrip(t *testing.T) {
	in := []float32{0.25, -1.5, 3}
	out, ok := decodeVector(encodeVector(in))
	if !ok || len(out) != 3 || out[1] != -1.5 {
		t.Fatalf("unexpected decode: %v %v", out, ok)
	}
	if _, ok := decodeVector(nil); ok {
		t.Fatalf("nil must not decode")
	}
}
