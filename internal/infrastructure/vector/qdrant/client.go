package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/it-support-rag/internal/core/domain"
	"github.com/kirillkom/it-support-rag/internal/infrastructure/resilience"
)

// pointNamespace derives stable Qdrant point ids from chunk ids.
var pointNamespace = uuid.MustParse("6f1c1d2e-3b0a-4c55-9a51-6a1d2b7f0c11")

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	exec       *resilience.Executor

	ensureMu sync.Mutex
	ensured  map[string]int
}

type Option func(*Client)

func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

func WithExecutor(exec *resilience.Executor) Option {
	return func(c *Client) { c.exec = exec }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, domain.WrapError(domain.ErrConfiguration, "new qdrant client", fmt.Errorf("QDRANT_URL is empty"))
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		ensured:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.exec == nil {
		c.exec = resilience.NewExecutor(resilience.Config{RetryMaxAttempts: 1, BreakerEnabled: false})
	}
	return c, nil
}

// PointID maps a chunk id to a deterministic UUID so re-ingestion overwrites.
func PointID(chunkID string) string {
	if _, err := uuid.Parse(chunkID); err == nil {
		return chunkID
	}
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

func (c *Client) EnsureCollection(ctx context.Context, name string, dimension int, distance domain.Distance) error {
	if dimension <= 0 {
		return domain.WrapError(domain.ErrValidation, "qdrant ensure collection", fmt.Errorf("invalid dimension %d", dimension))
	}
	if distance == "" {
		distance = domain.DistanceCosine
	}

	c.ensureMu.Lock()
	if size, ok := c.ensured[name]; ok && size == dimension {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": string(distance),
		},
	}

	err := c.exec.Execute(ctx, "qdrant.ensure_collection", func(callCtx context.Context) error {
		resp, err := c.do(callCtx, http.MethodPut, "/collections/"+name, reqBody)
		if err != nil {
			return fmt.Errorf("qdrant ensure collection request: %w", err)
		}
		defer resp.Body.Close()

		// 409 when the collection already exists.
		if resp.StatusCode == http.StatusConflict {
			return nil
		}
		if resp.StatusCode >= 300 {
			return resilience.NewHTTPStatusError("qdrant", "ensure collection", resp)
		}
		return nil
	}, resilience.ClassifyError)
	if err != nil {
		return resilience.WrapTemporaryIfNeeded("qdrant ensure collection", err, nil)
	}

	c.ensureMu.Lock()
	c.ensured[name] = dimension
	c.ensureMu.Unlock()
	return nil
}

func (c *Client) Upsert(ctx context.Context, collection string, points []domain.Point) error {
	if len(points) == 0 {
		return nil
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}
	body := make([]point, 0, len(points))
	for _, p := range points {
		payload := domain.CloneMetadata(p.Payload)
		if _, ok := payload[domain.PayloadChunkID]; !ok {
			payload[domain.PayloadChunkID] = p.ID
		}
		body = append(body, point{
			ID:      PointID(p.ID),
			Vector:  p.Vector,
			Payload: payload,
		})
	}

	err := c.exec.Execute(ctx, "qdrant.upsert", func(callCtx context.Context) error {
		resp, err := c.do(callCtx, http.MethodPut, "/collections/"+collection+"/points?wait=true", map[string]any{"points": body})
		if err != nil {
			return fmt.Errorf("qdrant upsert request: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return resilience.NewHTTPStatusError("qdrant", "upsert", resp)
		}
		return nil
	}, resilience.ClassifyError)
	return resilience.WrapTemporaryIfNeeded("qdrant upsert", err, nil)
}

func (c *Client) Search(
	ctx context.Context,
	collection string,
	vector []float32,
	limit int,
	filter domain.SearchFilter,
) ([]domain.ScoredPoint, error) {
	if limit <= 0 {
		return []domain.ScoredPoint{}, nil
	}

	reqBody := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if !filter.IsZero() {
		must := make([]map[string]any, 0, len(filter.Equals))
		for _, key := range filter.Keys() {
			must = append(must, map[string]any{
				"key": key,
				"match": map[string]any{
					"value": filter.Equals[key],
				},
			})
		}
		reqBody["filter"] = map[string]any{"must": must}
	}

	var searchResp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	err := c.exec.Execute(ctx, "qdrant.search", func(callCtx context.Context) error {
		resp, err := c.do(callCtx, http.MethodPost, "/collections/"+collection+"/points/search", reqBody)
		if err != nil {
			return fmt.Errorf("qdrant search request: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return domain.WrapError(domain.ErrNotFound, "qdrant search", resilience.NewHTTPStatusError("qdrant", "search", resp))
		}
		if resp.StatusCode >= 300 {
			return resilience.NewHTTPStatusError("qdrant", "search", resp)
		}
		if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
			return fmt.Errorf("decode search response: %w", err)
		}
		return nil
	}, resilience.ClassifyError)
	if err != nil {
		return nil, resilience.WrapTemporaryIfNeeded("qdrant search", err, nil)
	}

	out := make([]domain.ScoredPoint, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		id := domain.MetadataString(r.Payload, domain.PayloadChunkID)
		if id == "" {
			id = fmt.Sprintf("%v", r.ID)
		}
		out = append(out, domain.ScoredPoint{
			ID:      id,
			Score:   r.Score,
			Payload: r.Payload,
		})
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}
	return c.httpClient.Do(req)
}
