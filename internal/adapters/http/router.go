package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/it-support-rag/internal/config"
	"github.com/kirillkom/it-support-rag/internal/core/domain"
	"github.com/kirillkom/it-support-rag/internal/core/ports"
	"github.com/kirillkom/it-support-rag/internal/observability/metrics"
)

const (
	serviceName       = "api"
	maxJSONBodyBytes  = 1 << 20
	maxChunkFileBytes = 64 << 20

	defaultChunkFilename = "chunks.jsonl"
)

type Router struct {
	cfg      config.Config
	queryUC  ports.QuestionAnswerer
	uploader ports.ChunkUploader
	metrics  *metrics.HTTPServerMetrics
}

// NewRouter wires the serving endpoints. uploader may be nil when no job queue
// is configured; metrics may be nil to disable instrumentation.
func NewRouter(
	cfg config.Config,
	queryUC ports.QuestionAnswerer,
	uploader ports.ChunkUploader,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:      cfg,
		queryUC:  queryUC,
		uploader: uploader,
		metrics:  httpMetrics,
	}
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("/v1/ask", rt.ask)
	api.HandleFunc("/v1/retrieve", rt.retrieve)
	api.HandleFunc("/v1/chunks", rt.uploadChunks)

	var guarded http.Handler = api
	guarded = backpressureMiddleware(guarded, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait, rt.rejected("overloaded"))
	guarded = rateLimitMiddleware(guarded, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, rt.rejected("rate_limited"))

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/openapi.json", rt.openAPI)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}
	mux.Handle("/v1/", guarded)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) rejected(reason string) func() {
	return func() {
		if rt.metrics != nil {
			rt.metrics.RecordRejected(serviceName, reason)
		}
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type askRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

func (rt *Router) ask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req askRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	start := time.Now()
	answer, err := rt.queryUC.Answer(r.Context(), req.Question, req.TopK)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordRAGObservation(serviceName, "ask", "answer", len(answer.Chunks), time.Since(start))
		rt.metrics.RecordCategory(serviceName, answer.Category)
	}
	writeJSON(w, http.StatusOK, answer)
}

type retrieveRequest struct {
	Question       string `json:"question"`
	TopK           int    `json:"top_k"`
	CategoryFilter bool   `json:"category_filter"`
	Normalize      *bool  `json:"normalize"`
}

type retrieveResponse struct {
	Question string                   `json:"question"`
	Mode     domain.RetrievalMode     `json:"mode"`
	Results  []domain.RetrievalResult `json:"results"`
}

func (rt *Router) retrieve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req retrieveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	mode := domain.RetrievalMode{Normalize: true, CategoryFilter: req.CategoryFilter}
	if req.Normalize != nil {
		mode.Normalize = *req.Normalize
	}

	start := time.Now()
	results, err := rt.queryUC.RetrieveWithMode(r.Context(), req.Question, req.TopK, mode)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	if results == nil {
		results = []domain.RetrievalResult{}
	}

	if rt.metrics != nil {
		rt.metrics.RecordRAGObservation(serviceName, "retrieve", modeLabel(mode), len(results), time.Since(start))
	}
	writeJSON(w, http.StatusOK, retrieveResponse{Question: req.Question, Mode: mode, Results: results})
}

func (rt *Router) uploadChunks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if rt.uploader == nil {
		writeError(w, r, http.StatusServiceUnavailable, "chunk ingestion is not configured")
		return
	}

	filename := defaultChunkFilename
	if err := runtime.BindQueryParameter("form", true, false, "filename", r.URL.Query(), &filename); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid filename parameter: "+err.Error())
		return
	}
	if filename = strings.TrimSpace(filename); filename == "" {
		filename = defaultChunkFilename
	}

	job, err := rt.uploader.Enqueue(r.Context(), filename, http.MaxBytesReader(w, r.Body, maxChunkFileBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "chunk file is too large")
			return
		}
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":      job.ID,
		"storage_key": job.StorageKey,
		"filename":    job.Filename,
	})
}

func (rt *Router) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	if gateway, ok := domain.FailedGateway(err); ok && rt.metrics != nil {
		rt.metrics.RecordGatewayError(serviceName, gateway)
	}
	writeError(w, r, mapErrorToHTTPStatus(err), err.Error())
}

func modeLabel(mode domain.RetrievalMode) string {
	switch {
	case mode.Normalize && mode.CategoryFilter:
		return "category-aware"
	case mode.Normalize:
		return "baseline"
	case mode.CategoryFilter:
		return "raw_category"
	default:
		return "raw"
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json: "+err.Error())
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error":      message,
		"request_id": requestIDFromContext(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
