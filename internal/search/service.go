// Package search executes queries against the inverted index: it tokenizes
// the query with the same tokenizer used at build time, scores documents,
// resolves doc ids back to paths, and optionally serves results through a
// Redis query cache.
package search

import (
	"context"
	"log/slog"
	"time"

	"github.com/searchstack/textsearchd/internal/analytics"
	"github.com/searchstack/textsearchd/internal/docstore"
	"github.com/searchstack/textsearchd/internal/index"
	"github.com/searchstack/textsearchd/internal/tokenizer"
	"github.com/searchstack/textsearchd/pkg/metrics"
)

// Hit is one scored document with its path resolved.
type Hit struct {
	DocID int32   `json:"doc_id"`
	Score float64 `json:"score"`
	Path  string  `json:"path"`
}

// Result is the outcome of one query execution.
type Result struct {
	Query  string   `json:"q"`
	Terms  []string `json:"terms"`
	TookMS float64  `json:"t_ms"`
	Cached bool     `json:"cached"`
	Hits   []Hit    `json:"results"`
}

// Service wires the tokenizer, index, and catalog into a query path. The
// cache, metrics, and collector fields are optional; nil disables them.
type Service struct {
	tok       *tokenizer.Tokenizer
	ix        *index.Index
	store     *docstore.Store
	cache     *QueryCache
	metrics   *metrics.Metrics
	collector *analytics.Collector
	logger    *slog.Logger
}

// NewService creates a Service over its collaborators.
func NewService(tok *tokenizer.Tokenizer, ix *index.Index, store *docstore.Store) *Service {
	return &Service{
		tok:    tok,
		ix:     ix,
		store:  store,
		logger: slog.Default().With("component", "search"),
	}
}

// WithCache attaches a query cache.
func (s *Service) WithCache(cache *QueryCache) *Service {
	s.cache = cache
	return s
}

// WithMetrics attaches Prometheus collectors.
func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.metrics = m
	return s
}

// WithCollector attaches an analytics collector.
func (s *Service) WithCollector(c *analytics.Collector) *Service {
	s.collector = c
	return s
}

// Cache returns the attached query cache, or nil.
func (s *Service) Cache() *QueryCache {
	return s.cache
}

// Search tokenizes the query and returns the topK highest-scoring documents.
// topK == 0 means unlimited. A query with no usable terms yields an empty
// result, not an error.
func (s *Service) Search(ctx context.Context, query string, topK int) (*Result, error) {
	start := time.Now()

	if s.cache != nil {
		result, cached, err := s.cache.GetOrCompute(ctx, query, topK, func() (*Result, error) {
			return s.execute(query, topK), nil
		})
		if err != nil {
			return nil, err
		}
		result.Cached = cached
		s.observe(result, cached, time.Since(start))
		return result, nil
	}

	result := s.execute(query, topK)
	s.observe(result, false, time.Since(start))
	return result, nil
}

func (s *Service) execute(query string, topK int) *Result {
	start := time.Now()
	terms := s.tok.Tokenize([]byte(query))

	scored := s.ix.Search(terms, topK)
	hits := make([]Hit, 0, len(scored))
	for _, r := range scored {
		path, ok := s.store.PathFor(r.DocID)
		if !ok {
			continue
		}
		hits = append(hits, Hit{DocID: r.DocID, Score: r.Score, Path: path})
	}

	return &Result{
		Query:  query,
		Terms:  terms,
		TookMS: float64(time.Since(start).Microseconds()) / 1000.0,
		Hits:   hits,
	}
}

func (s *Service) observe(result *Result, cached bool, took time.Duration) {
	if s.metrics != nil {
		resultType := "hit"
		if len(result.Hits) == 0 {
			resultType = "zero_result"
		}
		s.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()

		cacheStatus := "off"
		if s.cache != nil {
			if cached {
				cacheStatus = "hit"
				s.metrics.CacheHitsTotal.Inc()
			} else {
				cacheStatus = "miss"
				s.metrics.CacheMissesTotal.Inc()
			}
		}
		s.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(took.Seconds())
		s.metrics.SearchResultsCount.Observe(float64(len(result.Hits)))
	}

	s.collector.Track(analytics.NewSearchEvent(result.Query, result.Terms, len(result.Hits), cached, result.TookMS))

	s.logger.Debug("query executed",
		"q", result.Query,
		"terms", len(result.Terms),
		"hits", len(result.Hits),
		"cached", cached,
		"t_ms", result.TookMS,
	)
}
