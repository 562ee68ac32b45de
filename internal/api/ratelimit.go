package api

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterSweepInterval = time.Minute
	limiterIdleTTL       = 3 * time.Minute
)

// TenantRateLimiter keeps one token bucket per tenant.
type TenantRateLimiter struct {
	mu      sync.Mutex
	tenants map[string]*tenantLimiter
	rps     rate.Limit
	burst   int
}

type tenantLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewTenantRateLimiter creates a limiter allowing rps requests per second per
// tenant with the given burst. Idle tenants are swept until ctx is done.
func NewTenantRateLimiter(ctx context.Context, rps float64, burst int) *TenantRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	rl := &TenantRateLimiter{
		tenants: make(map[string]*tenantLimiter),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
	go rl.sweep(ctx)
	return rl
}

func (rl *TenantRateLimiter) limiter(tenantID string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	t, ok := rl.tenants[tenantID]
	if !ok {
		t = &tenantLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.tenants[tenantID] = t
	}
	t.lastSeen = time.Now()
	return t.limiter
}

func (rl *TenantRateLimiter) sweep(ctx context.Context) {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.mu.Lock()
			for id, t := range rl.tenants {
				if time.Since(t.lastSeen) > limiterIdleTTL {
					delete(rl.tenants, id)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Middleware rejects requests over the tenant's budget with 429.
// It must run after TenantMiddleware.
func (rl *TenantRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.limiter(GetTenantID(r.Context())).Allow() {
			retry := time.Second
			if rl.rps > 0 {
				retry = time.Duration(float64(time.Second) / float64(rl.rps))
			}
			w.Header().Set("Retry-After", strconv.Itoa(max(1, int(retry.Seconds()))))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
