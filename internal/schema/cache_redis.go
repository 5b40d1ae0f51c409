package schema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"domainreader/pkg/platform/circuit"
	"domainreader/pkg/platform/sentinel"
)

const (
	cacheKeyPrefix      = "domain-reader:schema:"
	defaultFetchTimeout = 10 * time.Second
)

// RedisCache is a read-through descriptor cache in front of another Registry.
// Concurrent misses for the same key share one registry call. Cache failures
// never fail a lookup: after repeated failures the breaker opens and reads skip
// Redis, while writes keep probing until it recovers.
//
// The shared registry call is detached from any single caller's context and
// bounded by the fetch timeout; each caller stops waiting when its own context
// ends.
type RedisCache struct {
	next         Registry
	client       redis.Cmdable
	ttl          time.Duration
	fetchTimeout time.Duration
	group        singleflight.Group
	breaker      *circuit.Breaker
	metrics      *Metrics
	logger       *slog.Logger
}

type CacheOption func(*RedisCache)

func WithCacheMetrics(m *Metrics) CacheOption {
	return func(c *RedisCache) {
		c.metrics = m
	}
}

func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *RedisCache) {
		c.logger = logger
	}
}

// WithFetchTimeout bounds the shared registry call made on a miss.
func WithFetchTimeout(d time.Duration) CacheOption {
	return func(c *RedisCache) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) CacheOption {
	return func(c *RedisCache) {
		c.breaker = b
	}
}

func NewRedisCache(next Registry, client redis.Cmdable, ttl time.Duration, opts ...CacheOption) (*RedisCache, error) {
	if next == nil {
		return nil, fmt.Errorf("backing registry is required")
	}
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cache ttl must be positive")
	}
	c := &RedisCache{
		next:         next,
		client:       client,
		ttl:          ttl,
		fetchTimeout: defaultFetchTimeout,
		breaker:      circuit.New("schema-cache"),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *RedisCache) GetSchema(ctx context.Context, key Key) (*Descriptor, error) {
	cacheKey := cacheKeyPrefix + key.String()

	if !c.breaker.IsOpen() {
		descriptor, err := c.read(ctx, cacheKey)
		switch {
		case err == nil:
			c.metrics.IncHit()
			return descriptor, nil
		case errors.Is(err, redis.Nil):
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			c.recordFailure(ctx, "read", err)
		}
	}
	c.metrics.IncMiss()

	ch := c.group.DoChan(cacheKey, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()

		descriptor, err := c.next.GetSchema(fetchCtx, key)
		if err != nil {
			return nil, err
		}
		if descriptor == nil {
			return nil, fmt.Errorf("schema %s: %w", key, sentinel.ErrNotFound)
		}
		c.write(fetchCtx, cacheKey, descriptor)
		return descriptor, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Descriptor), nil
	}
}

func (c *RedisCache) read(ctx context.Context, cacheKey string) (*Descriptor, error) {
	raw, err := c.client.Get(ctx, cacheKey).Bytes()
	if err != nil {
		return nil, err
	}
	var descriptor Descriptor
	if err := json.Unmarshal(raw, &descriptor); err != nil {
		return nil, fmt.Errorf("decode cached descriptor: %w", err)
	}
	return &descriptor, nil
}

func (c *RedisCache) write(ctx context.Context, cacheKey string, descriptor *Descriptor) {
	raw, err := json.Marshal(descriptor)
	if err != nil {
		c.recordFailure(ctx, "encode", err)
		return
	}
	if err := c.client.Set(ctx, cacheKey, raw, c.ttl).Err(); err != nil {
		c.recordFailure(ctx, "write", err)
		return
	}
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.metrics.SetBreakerOpen(false)
		c.logger.InfoContext(ctx, "schema cache recovered")
	}
}

func (c *RedisCache) recordFailure(ctx context.Context, op string, err error) {
	c.metrics.IncError()
	_, change := c.breaker.RecordFailure()
	if change.Opened {
		c.metrics.SetBreakerOpen(true)
	}
	c.logger.WarnContext(ctx, "schema cache unavailable",
		"op", op,
		"breaker", c.breaker.Name(),
		"breaker_open", c.breaker.IsOpen(),
		"error", err,
	)
}
