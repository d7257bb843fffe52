// Package handler implements the searcher's HTTP surface. The query
// interface takes a pre-tokenized term sequence (whitespace-separated in
// the q parameter; preprocessing happens upstream) and returns at most k
// ranked (document_id, title, score) results.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashedsearch/retrieval-platform/internal/events"
	"github.com/hashedsearch/retrieval-platform/internal/scorer"
	"github.com/hashedsearch/retrieval-platform/internal/searcher/cache"
	apperrors "github.com/hashedsearch/retrieval-platform/pkg/errors"
	"github.com/hashedsearch/retrieval-platform/pkg/logger"
	"github.com/hashedsearch/retrieval-platform/pkg/metrics"
	"github.com/hashedsearch/retrieval-platform/pkg/middleware"
)

// ScorerProvider yields the live scorer; it fails before the first index
// load and after a failed swap.
type ScorerProvider interface {
	Scorer() (*scorer.Sharded, error)
}

// SearchResponse is the JSON reply to a search request.
type SearchResponse struct {
	Tokens  []string           `json:"tokens"`
	K       int                `json:"k"`
	Results []scorer.ScoredDoc `json:"results"`
}

type Handler struct {
	provider  ScorerProvider
	cache     *cache.QueryCache
	collector *events.Collector
	metrics   *metrics.Metrics
	defaultK  int
	maxK      int
	logger    *slog.Logger
}

func New(provider ScorerProvider, queryCache *cache.QueryCache, collector *events.Collector, m *metrics.Metrics, defaultK, maxK int) *Handler {
	return &Handler{
		provider:  provider,
		cache:     queryCache,
		collector: collector,
		metrics:   m,
		defaultK:  defaultK,
		maxK:      maxK,
		logger:    slog.Default().With("component", "search-handler"),
	}
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	tokens := strings.Fields(query)
	if len(tokens) == 0 {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	k := h.defaultK
	if kStr := r.URL.Query().Get("k"); kStr != "" {
		parsed, err := strconv.Atoi(kStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "k must be a positive integer")
			return
		}
		if parsed > h.maxK {
			parsed = h.maxK
		}
		k = parsed
	}

	sharded, err := h.provider.Scorer()
	if err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "no index loaded")
		return
	}

	var results []scorer.ScoredDoc
	cacheHit := false
	if h.cache != nil {
		results, cacheHit, err = h.cache.GetOrCompute(ctx, tokens, k, func() ([]scorer.ScoredDoc, error) {
			return sharded.Score(ctx, tokens, k)
		})
	} else {
		results, err = sharded.Score(ctx, tokens, k)
	}

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			log.Info("search cancelled", "tokens", tokens)
			h.observe("cancelled", cacheHit, start, 0)
			h.writeError(w, http.StatusRequestTimeout, "search cancelled")
			return
		}
		log.Error("search execution failed", "tokens", tokens, "error", err)
		h.observe("error", cacheHit, start, 0)
		h.writeError(w, apperrors.HTTPStatusCode(err), "search failed")
		return
	}

	latency := time.Since(start)
	resultType := "hit"
	if len(results) == 0 {
		resultType = "zero_result"
	}
	h.observe(resultType, cacheHit, start, len(results))

	log.Info("search completed",
		"tokens", tokens,
		"k", k,
		"returned", len(results),
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	if h.collector != nil {
		eventType := events.EventSearch
		switch {
		case cacheHit:
			eventType = events.EventCacheHit
		case len(results) == 0:
			eventType = events.EventZeroResult
		}
		h.collector.Track(events.QueryEvent{
			Type:      eventType,
			Tokens:    tokens,
			K:         k,
			Returned:  len(results),
			LatencyMs: latency.Milliseconds(),
			CacheHit:  cacheHit,
			Timestamp: time.Now().UTC(),
			RequestID: middleware.GetRequestID(ctx),
		})
	}

	h.writeJSON(w, http.StatusOK, SearchResponse{
		Tokens:  tokens,
		K:       k,
		Results: results,
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":   hits,
		"misses": misses,
		"total":  hits + misses,
	})
}

func (h *Handler) observe(resultType string, cacheHit bool, start time.Time, returned int) {
	if h.metrics == nil {
		return
	}
	h.metrics.QueriesTotal.WithLabelValues(resultType).Inc()
	cacheStatus := "miss"
	if cacheHit {
		cacheStatus = "hit"
		h.metrics.CacheHitsTotal.Inc()
	} else {
		h.metrics.CacheMissesTotal.Inc()
	}
	h.metrics.QueryLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
	h.metrics.QueryResultsCount.Observe(float64(returned))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
