package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/opensource-finance/underwriter/internal/domain"
)

// ErrBreakerOpen is returned while the Redis circuit breaker is open.
var ErrBreakerOpen = fmt.Errorf("redis unavailable: %w", gobreaker.ErrOpenState)

const (
	defaultBreakerThreshold = 5
	defaultBreakerTimeout   = 30 * time.Second
)

// RedisCache implements Cache using Redis.
// Every call goes through a circuit breaker so an unhealthy Redis fails fast.
type RedisCache struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(cfg domain.CacheConfig) (*RedisCache, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newRedisCache(client, cfg), nil
}

func newRedisCache(client *redis.Client, cfg domain.CacheConfig) *RedisCache {
	threshold := cfg.BreakerThreshold
	if threshold == 0 {
		threshold = defaultBreakerThreshold
	}
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = defaultBreakerTimeout
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-cache",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A miss is an answer, not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return &RedisCache{client: client, breaker: breaker}
}

var _ domain.Cache = (*RedisCache)(nil)

// Get retrieves a value from Redis. A miss returns nil, nil.
func (c *RedisCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	val, err := c.do(func() (any, error) {
		return c.client.Get(ctx, c.makeKey(tenantID, key)).Bytes()
	})
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val.([]byte), nil
}

// Set stores a value in Redis with TTL.
func (c *RedisCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	_, err := c.do(func() (any, error) {
		return nil, c.client.Set(ctx, c.makeKey(tenantID, key), value, ttl).Err()
	})
	return err
}

// Delete removes a value from Redis.
func (c *RedisCache) Delete(ctx context.Context, tenantID string, key string) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	_, err := c.do(func() (any, error) {
		return nil, c.client.Del(ctx, c.makeKey(tenantID, key)).Err()
	})
	return err
}

// GetEvaluation retrieves a cached evaluation result.
func (c *RedisCache) GetEvaluation(ctx context.Context, tenantID string, evalID string) (*domain.EvaluationResult, error) {
	return getEvaluation(ctx, c, tenantID, evalID)
}

// SetEvaluation caches an evaluation result.
func (c *RedisCache) SetEvaluation(ctx context.Context, tenantID string, eval *domain.EvaluationResult, ttl time.Duration) error {
	return setEvaluation(ctx, c, tenantID, eval, ttl)
}

// Ping checks Redis connectivity, bypassing the breaker.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// State reports the circuit breaker state.
func (c *RedisCache) State() gobreaker.State {
	return c.breaker.State()
}

func (c *RedisCache) do(fn func() (any, error)) (any, error) {
	val, err := c.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrBreakerOpen
	}
	return val, err
}

func (c *RedisCache) makeKey(tenantID, key string) string {
	return "underwriter:" + makeKey(tenantID, key)
}
