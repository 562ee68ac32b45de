package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/underwriter/internal/domain"
)

// New creates a new cache based on configuration.
// For Community tier: returns LRU cache.
// For Pro tier with two-phase: returns TwoPhaseCache wrapping LRU + Redis.
// For Pro tier without two-phase: returns Redis cache.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize, 0), nil

	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// rawCache is the byte-level subset every cache tier implements.
type rawCache interface {
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error
}

func evaluationKey(evalID string) string {
	return "eval:" + evalID
}

func makeKey(tenantID, key string) string {
	return tenantID + ":" + key
}

func getEvaluation(ctx context.Context, c rawCache, tenantID, evalID string) (*domain.EvaluationResult, error) {
	data, err := c.Get(ctx, tenantID, evaluationKey(evalID))
	if err != nil || data == nil {
		return nil, err
	}

	var eval domain.EvaluationResult
	if err := json.Unmarshal(data, &eval); err != nil {
		return nil, fmt.Errorf("failed to decode cached evaluation: %w", err)
	}
	return &eval, nil
}

func setEvaluation(ctx context.Context, c rawCache, tenantID string, eval *domain.EvaluationResult, ttl time.Duration) error {
	if eval == nil || eval.ID == "" {
		return fmt.Errorf("evaluation id is required")
	}

	data, err := json.Marshal(eval)
	if err != nil {
		return fmt.Errorf("failed to encode evaluation: %w", err)
	}
	return c.Set(ctx, tenantID, evaluationKey(eval.ID), data, ttl)
}

// TwoPhaseCache implements the two-phase caching strategy.
// L1: Local LRU cache for fast reads
// L2: Redis shared across nodes
type TwoPhaseCache struct {
	local  *LRUCache
	remote domain.Cache
	l1TTL  time.Duration
}

// NewTwoPhaseCache creates a two-phase cache with LRU + Redis.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	remote, err := NewRedisCache(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}
	return newTwoPhaseCache(NewLRUCache(cfg.LocalMaxSize, cfg.LocalTTL), remote, cfg.LocalTTL), nil
}

func newTwoPhaseCache(local *LRUCache, remote domain.Cache, l1TTL time.Duration) *TwoPhaseCache {
	if l1TTL <= 0 {
		l1TTL = 5 * time.Minute
	}
	return &TwoPhaseCache{local: local, remote: remote, l1TTL: l1TTL}
}

var _ domain.Cache = (*TwoPhaseCache)(nil)

// Get retrieves from L1 first, then L2. Populates L1 on L2 hit.
// While L2 is unavailable an L1 miss is reported as a miss.
func (c *TwoPhaseCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, tenantID, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		return val, nil
	}

	val, err = c.remote.Get(ctx, tenantID, key)
	if err != nil {
		slog.Warn("L2 cache read failed", "tenant_id", tenantID, "error", err)
		return nil, nil
	}
	if val != nil {
		_ = c.local.Set(ctx, tenantID, key, val, c.l1TTL)
	}

	return val, nil
}

// Set writes to both L1 and L2. L1 keeps the shorter of the two TTLs.
func (c *TwoPhaseCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	l1TTL := c.l1TTL
	if ttl < l1TTL {
		l1TTL = ttl
	}
	if err := c.local.Set(ctx, tenantID, key, value, l1TTL); err != nil {
		return err
	}

	return c.remote.Set(ctx, tenantID, key, value, ttl)
}

// Delete removes from both L1 and L2.
func (c *TwoPhaseCache) Delete(ctx context.Context, tenantID string, key string) error {
	if err := c.local.Delete(ctx, tenantID, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, tenantID, key)
}

// GetEvaluation retrieves a cached evaluation result from either tier.
func (c *TwoPhaseCache) GetEvaluation(ctx context.Context, tenantID string, evalID string) (*domain.EvaluationResult, error) {
	return getEvaluation(ctx, c, tenantID, evalID)
}

// SetEvaluation caches an evaluation result in both tiers.
func (c *TwoPhaseCache) SetEvaluation(ctx context.Context, tenantID string, eval *domain.EvaluationResult, ttl time.Duration) error {
	return setEvaluation(ctx, c, tenantID, eval, ttl)
}

// Ping checks both L1 and L2 health.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("L1 ping failed: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

// Close closes both L1 and L2.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats returns L1 cache statistics.
func (c *TwoPhaseCache) Stats() (size int, capacity int) {
	return c.local.Stats()
}
