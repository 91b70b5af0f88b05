package search

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/searchstack/textsearchd/pkg/config"
	pkgredis "github.com/searchstack/textsearchd/pkg/redis"
	"github.com/searchstack/textsearchd/pkg/resilience"
	"golang.org/x/sync/singleflight"
)

const cacheKeyPrefix = "search:"

// QueryCache memoises search results in Redis keyed by the normalised query
// and topK. Concurrent misses for the same key are collapsed through
// singleflight so the index is queried once. A circuit breaker guards the
// Redis round trips; while it is open every lookup is treated as a miss and
// queries are answered from the index directly.
type QueryCache struct {
	client  *pkgredis.Client
	cfg     config.RedisConfig
	group   singleflight.Group
	breaker *resilience.Breaker
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewQueryCache wraps an established Redis client.
func NewQueryCache(client *pkgredis.Client, cfg config.RedisConfig) *QueryCache {
	return &QueryCache{
		client:  client,
		cfg:     cfg,
		breaker: resilience.NewBreaker("redis-cache", resilience.BreakerConfig{}),
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Get returns the cached result for (query, topK), if present.
func (c *QueryCache) Get(ctx context.Context, query string, topK int) (*Result, bool) {
	key := c.buildKey(query, topK)
	var data string
	err := c.breaker.Do(func() error {
		d, err := c.client.Get(ctx, key)
		if err != nil {
			if pkgredis.IsNilError(err) {
				// A key miss is a healthy response, not a Redis failure.
				return nil
			}
			return err
		}
		data = d
		return nil
	})
	if err != nil {
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	if data == "" {
		c.misses.Add(1)
		return nil, false
	}
	var result Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "query", query, "key", key)
	return &result, true
}

// Set stores a result under (query, topK) with the configured TTL.
func (c *QueryCache) Set(ctx context.Context, query string, topK int, result *Result) {
	key := c.buildKey(query, topK)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Do(func() error {
		return c.client.Set(ctx, key, data, c.cfg.CacheTTL)
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result or computes, stores, and returns a
// fresh one. The second return value reports whether the result came from
// cache.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	query string,
	topK int,
	computeFn func() (*Result, error),
) (*Result, bool, error) {
	if result, ok := c.Get(ctx, query, topK); ok {
		return result, true, nil
	}
	key := c.buildKey(query, topK)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if result, ok := c.Get(ctx, query, topK); ok {
			return result, nil
		}
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, query, topK, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*Result), false, nil
}

// Invalidate removes every cached search result. Called after a build pass so
// stale scores never outlive the index generation that produced them.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.client.FlushByPattern(ctx, cacheKeyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating query cache: %w", err)
	}
	c.logger.Info("query cache invalidated", "keys_deleted", deleted)
	return nil
}

// Stats returns the hit and miss counters.
func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) buildKey(query string, topK int) string {
	terms := strings.Fields(strings.ToLower(query))
	sort.Strings(terms)
	raw := fmt.Sprintf("%s:topk=%d", strings.Join(terms, ","), topK)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", cacheKeyPrefix, hash[:16])
}
