// Package cache implements the small key-value cache storage adapter named
// in §2(2b): typed Get/Set with TTL, atomic counters, and a best-effort
// lease (set-if-absent) primitive used by the scheduler's dedup gate
// (§4.5) and the command surface's per-plot rate counters (§4.6).
// Generalized from the teacher's weather-specific Redis hash cache
// (features/weather/cache/weather.go) into a byte-oriented generic cache.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/harvestguard/ingestcore/internal/metrics"
)

// Cache wraps a Redis client with the typed operations the pipeline needs.
// No SQL/command shapes leak past this boundary.
type Cache struct {
	client *redis.Client
	logger *zap.Logger
}

// New connects to Redis and verifies the connection with a ping.
func New(addr, password string, logger *zap.Logger) (*Cache, error) {
	if logger == nil {
		var err error
		logger, err = zap.NewProduction()
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to cache: %w", err)
	}

	logger.Info("connected to cache", zap.String("address", addr))
	return &Cache{client: client, logger: logger}, nil
}

// NewWithClient wraps an already-constructed redis client (used by tests
// with miniredis, and by callers that share one client across adapters).
func NewWithClient(client *redis.Client, logger *zap.Logger) *Cache {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Cache{client: client, logger: logger}
}

// Client exposes the underlying redis client for health checks.
func (c *Cache) Client() *redis.Client { return c.client }

// Get returns the cached string value, or ("", false, nil) on a miss.
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		metrics.RecordCacheMiss()
		return "", false, nil
	}
	if err != nil {
		metrics.RecordCacheError("get")
		return "", false, fmt.Errorf("cache get %q: %w", key, err)
	}
	metrics.RecordCacheHit()
	return val, true, nil
}

// Set stores value under key with a TTL (0 disables expiry).
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		metrics.RecordCacheError("set")
		return fmt.Errorf("cache set %q: %w", key, err)
	}
	return nil
}

// Delete removes a key. A missing key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		metrics.RecordCacheError("delete")
		return fmt.Errorf("cache delete %q: %w", key, err)
	}
	return nil
}

// TTL returns the remaining time-to-live for key.
func (c *Cache) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := c.client.TTL(ctx, key).Result()
	if err != nil {
		metrics.RecordCacheError("ttl")
		return 0, fmt.Errorf("cache ttl %q: %w", key, err)
	}
	return ttl, nil
}

// Incr atomically increments an integer counter with an expiry applied only
// on first creation, for rate-limit and retry-attempt counters.
func (c *Cache) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		metrics.RecordCacheError("incr")
		return 0, fmt.Errorf("cache incr %q: %w", key, err)
	}
	if n == 1 {
		if err := c.client.Expire(ctx, key, ttl).Err(); err != nil {
			metrics.RecordCacheError("incr")
			return 0, fmt.Errorf("cache incr %q: %w", key, err)
		}
	}
	return n, nil
}

// AcquireLease is the best-effort set-if-absent primitive (§5 Shared-resource
// policy): it returns true when this caller won the lease for the given TTL,
// false when someone else already holds it. Used by the scheduler's dedup
// gate — losing a lease means the enqueue within the window is absorbed.
func (c *Cache) AcquireLease(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		metrics.RecordCacheError("lease")
		return false, fmt.Errorf("cache lease %q: %w", key, err)
	}
	return ok, nil
}

// Ping verifies the cache connection is alive, used by the health checker.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
