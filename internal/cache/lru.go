// Package cache provides evaluation result caches for Underwriter.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/opensource-finance/underwriter/internal/domain"
)

const defaultLocalMaxSize = 10000

// LRUCache is a size-bounded in-process cache with per-entry expiry.
// Used as the Community tier cache and as L1 in two-phase caching.
type LRUCache struct {
	maxSize int
	entries *expirable.LRU[string, cacheEntry]
}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewLRUCache creates an LRU cache holding at most maxSize entries.
// maxTTL caps every entry's lifetime; zero leaves entries to their own TTL.
func NewLRUCache(maxSize int, maxTTL time.Duration) *LRUCache {
	if maxSize <= 0 {
		maxSize = defaultLocalMaxSize
	}
	return &LRUCache{
		maxSize: maxSize,
		entries: expirable.NewLRU[string, cacheEntry](maxSize, nil, maxTTL),
	}
}

var _ domain.Cache = (*LRUCache)(nil)

// Get retrieves a value. A miss returns nil, nil.
func (c *LRUCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	fullKey := makeKey(tenantID, key)
	entry, ok := c.entries.Get(fullKey)
	if !ok {
		return nil, nil
	}
	if time.Now().After(entry.expiresAt) {
		c.entries.Remove(fullKey)
		return nil, nil
	}
	return entry.value, nil
}

// Set stores a value for ttl.
func (c *LRUCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	c.entries.Add(makeKey(tenantID, key), cacheEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	})
	return nil
}

// Delete removes a value.
func (c *LRUCache) Delete(ctx context.Context, tenantID string, key string) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	c.entries.Remove(makeKey(tenantID, key))
	return nil
}

// GetEvaluation retrieves a cached evaluation result.
func (c *LRUCache) GetEvaluation(ctx context.Context, tenantID string, evalID string) (*domain.EvaluationResult, error) {
	return getEvaluation(ctx, c, tenantID, evalID)
}

// SetEvaluation caches an evaluation result.
func (c *LRUCache) SetEvaluation(ctx context.Context, tenantID string, eval *domain.EvaluationResult, ttl time.Duration) error {
	return setEvaluation(ctx, c, tenantID, eval, ttl)
}

// Ping always succeeds for the in-process cache.
func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close drops every entry.
func (c *LRUCache) Close() error {
	c.entries.Purge()
	return nil
}

// Stats returns cache statistics.
func (c *LRUCache) Stats() (size int, capacity int) {
	return c.entries.Len(), c.maxSize
}
