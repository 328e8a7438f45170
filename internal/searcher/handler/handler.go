// Package handler exposes the search executor over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/logger"
)

type SearchExecutor interface {
	Execute(ctx context.Context, raw string, fields []string, limit int) (*executor.SearchResult, error)
	Document(id index.DocID) (index.Document, error)
}

// IndexInfo describes the published index. *indexer.Engine implements it.
type IndexInfo interface {
	Store() *index.Store
}

type Handler struct {
	executor     SearchExecutor
	info         IndexInfo
	cache        *cache.QueryCache
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

// New wires the handler. queryCache may be nil when caching is disabled.
func New(exec SearchExecutor, info IndexInfo, queryCache *cache.QueryCache, defaultLimit, maxResults int) *Handler {
	return &Handler{
		executor:     exec,
		info:         info,
		cache:        queryCache,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

type route struct {
	pattern string
	handle  http.HandlerFunc
}

func (h *Handler) routes() []route {
	return []route{
		{"GET /api/v1/search", h.Search},
		{"GET /api/v1/documents/{id}", h.Document},
		{"GET /api/v1/index", h.IndexStats},
		{"GET /api/v1/cache/stats", h.CacheStats},
		{"POST /api/v1/cache/invalidate", h.CacheInvalidate},
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	for _, rt := range h.routes() {
		mux.HandleFunc(rt.pattern, rt.handle)
	}
}

// Patterns lists the method and path of every route Register mounts.
func (h *Handler) Patterns() []string {
	rts := h.routes()
	out := make([]string, len(rts))
	for i, rt := range rts {
		out[i] = rt.pattern
	}
	return out
}

// Search handles GET /api/v1/search?q=...&limit=...&fields=a,b.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'q' is required"))
		return
	}
	limit := h.defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a positive integer"))
			return
		}
		limit = min(parsed, h.maxResults)
	}
	var fields []string
	if raw := r.URL.Query().Get("fields"); raw != "" {
		for _, f := range strings.Split(raw, ",") {
			if f = strings.TrimSpace(f); f != "" {
				fields = append(fields, f)
			}
		}
	}

	result, err := h.executor.Execute(ctx, q, fields, limit)
	if err != nil {
		log.Warn("search failed", "query", q, "error", err)
		h.writeError(w, err)
		return
	}
	log.Info("search completed",
		"query", q,
		"total_hits", result.TotalHits,
		"returned", len(result.Hits),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, result)
}

// Document handles GET /api/v1/documents/{id} for an internal id.
func (h *Handler) Document(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		h.writeError(w, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid document id %q", r.PathValue("id")))
		return
	}
	doc, err := h.executor.Document(index.DocID(id))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

type fieldInfo struct {
	DocCount  int     `json:"doc_count"`
	AvgLength float64 `json:"avg_length"`
}

// IndexStats handles GET /api/v1/index.
func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	store := h.info.Store()
	if !store.Ready() {
		h.writeError(w, apperrors.ErrIndexNotReady)
		return
	}
	fields := make(map[string]fieldInfo)
	for _, f := range store.Fields() {
		fs := store.FieldStats(f)
		fields[f] = fieldInfo{DocCount: fs.DocCount, AvgLength: fs.AvgLength()}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"generation": store.Generation(),
		"documents":  store.NumDocs(),
		"n":          store.N(),
		"segments":   store.Segments(),
		"similarity": store.SimilarityConfig(),
		"fields":     fields,
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, apperrors.New(apperrors.ErrInternal, http.StatusServiceUnavailable, "caching is disabled"))
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

type errorBody struct {
	Error    string `json:"error"`
	Position *int   `json:"position,omitempty"`
}

// writeError maps err to its HTTP status. Internal errors are not echoed.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	body := errorBody{Error: err.Error()}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		body.Error = appErr.Message
	}
	var qErr *apperrors.InvalidQueryError
	if errors.As(err, &qErr) {
		pos := qErr.Pos
		body.Position = &pos
	}
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		body.Error = "internal error"
	}
	h.writeJSON(w, status, body)
}
