package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kirillkom/it-support-rag/internal/core/domain"
)

// keywordEmbedder maps text onto fixed keyword axes so tests control similarity.
type keywordEmbedder struct {
	mu        sync.Mutex
	axes      []string
	queries   []string
	failOn    map[string]bool
	batchErr  error
	oneCalls  int
	manyCalls int
}

func newKeywordEmbedder(axes ...string) *keywordEmbedder {
	return &keywordEmbedder{axes: axes, failOn: map[string]bool{}}
}

func (e *keywordEmbedder) vector(text string) []float32 {
	lowered := strings.ToLower(text)
	out := make([]float32, len(e.axes)+1)
	out[len(e.axes)] = 0.01
	for i, axis := range e.axes {
		if strings.Contains(lowered, axis) {
			out[i] = 1
		}
	}
	return out
}

func (e *keywordEmbedder) EmbedOne(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.oneCalls++
	e.queries = append(e.queries, text)
	if e.failOn[text] {
		return nil, errors.New("embedding rejected")
	}
	return e.vector(text), nil
}

func (e *keywordEmbedder) EmbedMany(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.manyCalls++
	if e.batchErr != nil {
		return nil, e.batchErr
	}
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if e.failOn[text] {
			return nil, errors.New("batch contains rejected text")
		}
		out = append(out, e.vector(text))
	}
	return out, nil
}

type recordingGenerator struct {
	question string
	chunks   []domain.ContextChunk
	opts     domain.GenerationOptions
	err      error
}

func (g *recordingGenerator) Generate(_ context.Context, question string, chunks []domain.ContextChunk, opts domain.GenerationOptions) (string, error) {
	g.question = question
	g.chunks = chunks
	g.opts = opts
	if g.err != nil {
		return "", g.err
	}
	if len(chunks) == 0 {
		return "no grounding available", nil
	}
	return "answer from " + chunks[0].Text, nil
}

type vectorStoreFake struct {
	mu         sync.Mutex
	results    []domain.ScoredPoint
	searchErr  error
	upsertErr  error
	ensureErr  error
	filters    []domain.SearchFilter
	limits     []int
	upserted   []domain.Point
	ensured    []int
	searchHook func()
}

func (f *vectorStoreFake) EnsureCollection(_ context.Context, _ string, dimension int, _ domain.Distance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured = append(f.ensured, dimension)
	return f.ensureErr
}

func (f *vectorStoreFake) Upsert(_ context.Context, _ string, points []domain.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, points...)
	return nil
}

func (f *vectorStoreFake) Search(_ context.Context, _ string, _ []float32, limit int, filter domain.SearchFilter) ([]domain.ScoredPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchHook != nil {
		f.searchHook()
	}
	f.filters = append(f.filters, filter)
	f.limits = append(f.limits, limit)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.results, nil
}

type storageFake struct {
	mu    sync.Mutex
	files map[string]string
	err   error
}

func newStorageFake() *storageFake {
	return &storageFake{files: map[string]string{}}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.files[key] = string(raw)
	f.mu.Unlock()
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.files[key]
	if !ok {
		return nil, errors.New("no such file")
	}
	return io.NopCloser(strings.NewReader(raw)), nil
}

func (f *storageFake) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	delete(f.files, key)
	f.mu.Unlock()
	return nil
}

type queueFake struct {
	jobs []domain.IngestJob
	err  error
}

func (f *queueFake) PublishIngestJob(_ context.Context, job domain.IngestJob) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *queueFake) SubscribeIngestJobs(context.Context, func(context.Context, domain.IngestJob) error) error {
	return errors.New("not implemented")
}

// inFlightGauge records the highest number of overlapping calls.
type inFlightGauge struct {
	current atomic.Int32
	peak    atomic.Int32
}

func (g *inFlightGauge) enter() {
	n := g.current.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

func (g *inFlightGauge) leave() { g.current.Add(-1) }

// slowEmbedder returns fixed two-dimensional vectors after a short pause.
type slowEmbedder struct {
	gauge inFlightGauge
}

func (e *slowEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (e *slowEmbedder) EmbedMany(_ context.Context, texts []string) ([][]float32, error) {
	e.gauge.enter()
	defer e.gauge.leave()
	time.Sleep(5 * time.Millisecond)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}
