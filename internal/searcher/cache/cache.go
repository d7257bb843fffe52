// Package cache is the Redis-backed query-result cache. Identical queries
// are collapsed through singleflight so a cache miss computes once, and all
// Redis traffic runs behind a circuit breaker: when Redis is down the cache
// degrades to a no-op instead of adding timeouts to every query.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/hashedsearch/retrieval-platform/internal/scorer"
	"github.com/hashedsearch/retrieval-platform/pkg/config"
	pkgredis "github.com/hashedsearch/retrieval-platform/pkg/redis"
	"github.com/hashedsearch/retrieval-platform/pkg/resilience"
)

const keyPrefix = "query:"

type QueryCache struct {
	client  *pkgredis.Client
	cfg     config.RedisConfig
	group   singleflight.Group
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(client *pkgredis.Client, cfg config.RedisConfig) *QueryCache {
	return &QueryCache{
		client:  client,
		cfg:     cfg,
		breaker: resilience.NewCircuitBreaker("query-cache", resilience.CircuitBreakerConfig{}),
		logger:  slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, tokens []string, k int) ([]scorer.ScoredDoc, bool) {
	key := c.buildKey(tokens, k)
	var data string
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.client.Get(ctx, key)
		if pkgredis.IsNilError(err) {
			// A miss is not a Redis failure; keep the circuit closed.
			data = ""
			return nil
		}
		return err
	})
	if err != nil {
		c.logger.Debug("cache get skipped", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	if data == "" {
		c.misses.Add(1)
		return nil, false
	}
	var results []scorer.ScoredDoc
	if err := json.Unmarshal([]byte(data), &results); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return results, true
}

func (c *QueryCache) Set(ctx context.Context, tokens []string, k int, results []scorer.ScoredDoc) {
	key := c.buildKey(tokens, k)
	data, err := json.Marshal(results)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.client.Set(ctx, key, data, c.cfg.CacheTTL)
	})
	if err != nil {
		c.logger.Debug("cache set skipped", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for (tokens, k) or computes it
// once, even under concurrent identical queries.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	tokens []string,
	k int,
	computeFn func() ([]scorer.ScoredDoc, error),
) ([]scorer.ScoredDoc, bool, error) {
	if results, ok := c.Get(ctx, tokens, k); ok {
		return results, true, nil
	}
	key := c.buildKey(tokens, k)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if results, ok := c.Get(ctx, tokens, k); ok {
			return results, nil
		}
		results, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, tokens, k, results)
		return results, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]scorer.ScoredDoc), false, nil
}

// Invalidate drops every cached query result; called after an index swap so
// stale rankings cannot outlive the index they came from.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating query cache: %w", err)
	}
	c.logger.Info("query cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// buildKey hashes the token sequence and k. Token order is preserved: the
// scorer's dot product is order-insensitive, but repeated tokens matter,
// so the raw sequence is the safest cache identity.
func (c *QueryCache) buildKey(tokens []string, k int) string {
	raw := fmt.Sprintf("%s|k=%d", strings.Join(tokens, "\x00"), k)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, sum[:16])
}
