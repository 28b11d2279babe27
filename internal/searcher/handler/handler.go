// Package handler exposes school search, query parsing, school profiles and
// result summaries over HTTP.
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

	"github.com/andrewoneill45-ctrl/school-profile/internal/analytics"
	"github.com/andrewoneill45-ctrl/school-profile/internal/dataset"
	"github.com/andrewoneill45-ctrl/school-profile/internal/profile"
	"github.com/andrewoneill45-ctrl/school-profile/internal/school"
	"github.com/andrewoneill45-ctrl/school-profile/internal/searcher/cache"
	"github.com/andrewoneill45-ctrl/school-profile/internal/searcher/executor"
	"github.com/andrewoneill45-ctrl/school-profile/internal/searcher/filter"
	"github.com/andrewoneill45-ctrl/school-profile/internal/searcher/parser"
	"github.com/andrewoneill45-ctrl/school-profile/pkg/config"
	apperrors "github.com/andrewoneill45-ctrl/school-profile/pkg/errors"
	"github.com/andrewoneill45-ctrl/school-profile/pkg/logger"
	"github.com/andrewoneill45-ctrl/school-profile/pkg/metrics"
	"github.com/andrewoneill45-ctrl/school-profile/pkg/middleware"
	"github.com/andrewoneill45-ctrl/school-profile/pkg/tracing"
)

type SearchExecutor interface {
	Execute(ctx context.Context, query string, limit, offset int) (*executor.SearchResult, error)
	Match(ctx context.Context, query string) (*executor.Match, error)
}

// Tracker receives usage events. analytics.Collector implements it.
type Tracker interface {
	TrackSearch(event analytics.SearchEvent)
	TrackProfile(event analytics.ProfileEvent)
}

type Handler struct {
	ds           *dataset.Dataset
	executor     SearchExecutor
	cache        *cache.QueryCache
	tracker      Tracker
	metrics      *metrics.Metrics
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

// New wires a handler. queryCache, tracker and m may be nil.
func New(
	ds *dataset.Dataset,
	exec SearchExecutor,
	queryCache *cache.QueryCache,
	tracker Tracker,
	m *metrics.Metrics,
	cfg config.SearchConfig,
) *Handler {
	return &Handler{
		ds:           ds,
		executor:     exec,
		cache:        queryCache,
		tracker:      tracker,
		metrics:      m,
		defaultLimit: cfg.DefaultLimit,
		maxResults:   cfg.MaxResults,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/parse", h.Parse)
	mux.HandleFunc("GET /api/v1/schools/{urn}", h.School)
	mux.HandleFunc("GET /api/v1/summary", h.Summary)
	mux.HandleFunc("GET /api/v1/compare", h.Compare)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

type searchResponse struct {
	*executor.SearchResult
	CacheHit bool `json:"cache_hit"`
}

// Search serves GET /api/v1/search?q=&limit=&offset=. A blank q lists every
// school.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := tracing.StartSpan(r.Context(), "search", middleware.GetRequestID(r.Context()))
	log := logger.FromContext(ctx)
	defer func() {
		span.End()
		span.Log(ctx)
	}()

	query := r.URL.Query().Get("q")
	limit, offset, err := h.paging(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var result *executor.SearchResult
	cacheHit := false
	cacheStatus := "disabled"
	if h.cache != nil {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, query, limit, offset, func() (*executor.SearchResult, error) {
			return h.executor.Execute(ctx, query, limit, offset)
		})
		cacheStatus = "miss"
		if cacheHit {
			cacheStatus = "hit"
		}
	} else {
		result, err = h.executor.Execute(ctx, query, limit, offset)
	}
	if err != nil {
		if h.metrics != nil {
			h.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
		}
		log.Error("search execution failed", "query", query, "error", err)
		h.writeError(w, r, classify(err))
		return
	}

	latency := time.Since(start)
	keys := result.Filters.Keys()
	span.SetAttr("cache", cacheStatus)
	span.SetAttr("total_hits", result.TotalHits)
	if h.metrics != nil {
		h.metrics.SearchQueriesTotal.WithLabelValues(outcome(result)).Inc()
		h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(latency.Seconds())
		h.metrics.SearchResultsCount.Observe(float64(result.TotalHits))
		for _, k := range keys {
			h.metrics.FilterKeysTotal.WithLabelValues(k).Inc()
		}
	}

	log.Info("search completed",
		"query", query,
		"filters", keys,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	if h.tracker != nil {
		h.tracker.TrackSearch(analytics.SearchEvent{
			Query:      query,
			FilterKeys: keys,
			Fuzzy:      result.Fuzzy(),
			TotalHits:  result.TotalHits,
			Returned:   len(result.Results),
			LatencyMs:  latency.Milliseconds(),
			CacheHit:   cacheHit,
			Timestamp:  time.Now().UTC(),
			RequestID:  middleware.GetRequestID(ctx),
		})
	}

	h.writeJSON(w, http.StatusOK, searchResponse{SearchResult: result, CacheHit: cacheHit})
}

// Parse serves GET /api/v1/parse?q= and shows what the compiler made of a
// query without running it.
func (h *Handler) Parse(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	fs, rules := parser.Trace(query)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"query":       query,
		"normalized":  parser.Normalize(query),
		"filters":     fs,
		"description": filter.Describe(fs),
		"keys":        fs.Keys(),
		"rules":       rules,
	})
}

// School serves GET /api/v1/schools/{urn}.
func (h *Handler) School(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("urn")
	urn, ok := school.ParseURN(raw)
	if !ok {
		h.writeError(w, r, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid urn %q", raw))
		return
	}
	s, ok := h.ds.ByURN(urn)
	if !ok {
		h.writeError(w, r, apperrors.Newf(apperrors.ErrSchoolNotFound, http.StatusNotFound, "no school with urn %s", urn))
		return
	}

	p := profile.Build(h.ds, s)
	if h.tracker != nil {
		h.tracker.TrackProfile(analytics.ProfileEvent{
			URN:       string(s.URN),
			Name:      s.Name,
			Phase:     s.Phase,
			RequestID: middleware.GetRequestID(r.Context()),
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"school":  s,
		"profile": p,
	})
}

// Compare serves GET /api/v1/compare?urn=a&urn=b or ?urn=a,b,c. Repeated
// URNs count once.
func (h *Handler) Compare(w http.ResponseWriter, r *http.Request) {
	var urns []school.URN
	seen := make(map[school.URN]bool)
	for _, param := range r.URL.Query()["urn"] {
		for _, raw := range strings.Split(param, ",") {
			urn, ok := school.ParseURN(raw)
			if !ok {
				h.writeError(w, r, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid urn %q", raw))
				return
			}
			if !seen[urn] {
				seen[urn] = true
				urns = append(urns, urn)
			}
		}
	}
	if len(urns) == 0 || len(urns) > profile.MaxCompare {
		h.writeError(w, r, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"compare takes between 1 and %d schools", profile.MaxCompare))
		return
	}

	schools := make([]*school.School, 0, len(urns))
	for _, urn := range urns {
		s, ok := h.ds.ByURN(urn)
		if !ok {
			h.writeError(w, r, apperrors.Newf(apperrors.ErrSchoolNotFound, http.StatusNotFound, "no school with urn %s", urn))
			return
		}
		schools = append(schools, s)
	}
	h.writeJSON(w, http.StatusOK, profile.Compare(schools))
}

// Summary serves GET /api/v1/summary?q= with aggregate figures over every
// matching school.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	m, err := h.executor.Match(r.Context(), query)
	if err != nil {
		logger.FromContext(r.Context()).Error("summary match failed", "query", query, "error", err)
		h.writeError(w, r, classify(err))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"query":       query,
		"filters":     m.Filters,
		"description": filter.Describe(m.Filters),
		"summary":     profile.Summarize(m.Schools),
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.cache.Stats())
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, r, apperrors.New(apperrors.ErrCacheUnavailable, http.StatusServiceUnavailable, "caching is disabled"))
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %v", apperrors.ErrCacheUnavailable, err))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) paging(r *http.Request) (limit, offset int, err error) {
	limit = h.defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return 0, 0, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = parsed
	}
	if h.maxResults > 0 && limit > h.maxResults {
		limit = h.maxResults
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return 0, 0, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "offset must be a non-negative integer")
		}
		offset = parsed
	}
	return limit, offset, nil
}

func outcome(result *executor.SearchResult) string {
	switch {
	case result.Filters == nil:
		return "all"
	case result.TotalHits == 0:
		return "zero_result"
	case result.Fuzzy():
		return "fuzzy"
	default:
		return "structured"
	}
}

// classify maps context errors from a slow or abandoned request to
// ErrTimeout.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", apperrors.ErrTimeout, err)
	}
	return err
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	h.writeJSON(w, status, map[string]string{"error": apperrors.Message(err)})
}
