// Package cache memoizes search results in Redis. Keys combine the index
// generation with the parsed query tree, so a rebuilt or reloaded index
// never serves stale hits and differently written queries that parse to
// the same tree share an entry.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/resilience"
)

const keyPrefix = "search:"

// Backend is the key-value store behind the cache. *redis.Client
// implements it.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	backend Backend
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New returns a cache storing entries for ttl. m may be nil.
func New(backend Backend, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		backend: backend,
		ttl:     ttl,
		breaker: resilience.NewCircuitBreaker("query-cache", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     10 * time.Second,
		}),
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Get looks up a cached result. Backend failures count as misses.
func (c *QueryCache) Get(ctx context.Context, generation string, node query.Node, limit int) (*executor.SearchResult, bool) {
	key := Key(generation, node, limit)
	var data []byte
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.backend.Get(ctx, key)
		if pkgredis.IsNilError(err) {
			return nil
		}
		return err
	})
	if err != nil || data == nil {
		if err != nil {
			c.logger.Warn("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	return &result, true
}

// Set stores result. Failures are logged and otherwise ignored.
func (c *QueryCache) Set(ctx context.Context, generation string, node query.Node, limit int, result *executor.SearchResult) {
	key := Key(generation, node, limit)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.breaker.Execute(func() error { return c.backend.Set(ctx, key, data, c.ttl) }); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result or runs compute once per key,
// sharing its outcome with concurrent callers. The bool reports a hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	generation string,
	node query.Node,
	limit int,
	compute func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, generation, node, limit); ok {
		return result, true, nil
	}
	key := Key(generation, node, limit)
	val, err, _ := c.group.Do(key, func() (any, error) {
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, generation, node, limit, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

// Invalidate drops every cached result.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// Key derives the cache key for a parsed query against one index generation.
func Key(generation string, node query.Node, limit int) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|limit=%d", node.String(), limit))
	return fmt.Sprintf("%s%s:%x", keyPrefix, generation, sum[:16])
}
