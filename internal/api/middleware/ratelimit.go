package middleware

import (
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jroosing/hydrablock/internal/api/models"
)

// Requests are admitted by two token buckets: one shared by every client and
// one per client IP. Each request takes one token from both; buckets refill
// at their rate up to their burst. A zero rate or burst disables a level.

// RateLimitSettings configures the API limiter.
type RateLimitSettings struct {
	QPS         float64
	Burst       int
	ClientQPS   float64
	ClientBurst int
	// MaxClients caps tracked client buckets. New clients beyond it are
	// refused until idle buckets expire.
	MaxClients int
	// IdleAfter drops a client bucket after this long unused. Default: 1m.
	IdleAfter time.Duration
}

// RateLimiter combines the global and per-client buckets.
type RateLimiter struct {
	global *TokenBuckets
	client *TokenBuckets
}

// NewRateLimiter builds a limiter from s.
func NewRateLimiter(s RateLimitSettings) *RateLimiter {
	idle := s.IdleAfter
	if idle <= 0 {
		idle = time.Minute
	}
	return &RateLimiter{
		global: NewTokenBuckets(s.QPS, s.Burst, 1, idle),
		client: NewTokenBuckets(s.ClientQPS, s.ClientBurst, s.MaxClients, idle),
	}
}

// Allow reports whether a request from client may proceed.
func (r *RateLimiter) Allow(client string) bool {
	if r == nil {
		return true
	}
	if !r.global.Allow("*") {
		return false
	}
	return r.client.Allow(client)
}

// RateLimit answers 429 for requests the limiter refuses.
func RateLimit(l *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.Allow(c.ClientIP()) {
			c.Next()
			return
		}
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{Error: "rate limit exceeded"})
	}
}

// TokenBuckets is a keyed set of token buckets sharing one rate and burst.
//
// Thread-safe for concurrent use.
type TokenBuckets struct {
	rate       float64
	burst      float64
	maxEntries int
	idle       time.Duration

	mu        sync.Mutex
	lastSweep time.Time
	buckets   map[string]*bucket
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// NewTokenBuckets creates buckets refilling at rate tokens/second up to burst.
func NewTokenBuckets(rate float64, burst, maxEntries int, idle time.Duration) *TokenBuckets {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &TokenBuckets{
		rate:       rate,
		burst:      float64(burst),
		maxEntries: maxEntries,
		idle:       idle,
		lastSweep:  time.Now(),
		buckets:    make(map[string]*bucket),
	}
}

// Allow takes a token from key's bucket. It always succeeds when the rate or
// burst is not positive.
func (b *TokenBuckets) Allow(key string) bool {
	if b == nil || b.rate <= 0 || b.burst <= 0 {
		return true
	}
	now := time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	if now.Sub(b.lastSweep) > b.idle {
		b.sweepLocked(now)
	}

	bk, ok := b.buckets[key]
	if !ok {
		if len(b.buckets) >= b.maxEntries {
			b.sweepLocked(now)
			if len(b.buckets) >= b.maxEntries {
				return false
			}
		}
		b.buckets[key] = &bucket{tokens: b.burst - 1, seen: now}
		return true
	}

	if elapsed := now.Sub(bk.seen).Seconds(); elapsed > 0 {
		bk.tokens = math.Min(b.burst, bk.tokens+elapsed*b.rate)
	}
	bk.seen = now
	if bk.tokens >= 1 {
		bk.tokens--
		return true
	}
	return false
}

// Len returns the number of tracked keys.
func (b *TokenBuckets) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buckets)
}

func (b *TokenBuckets) sweepLocked(now time.Time) {
	cutoff := now.Add(-b.idle)
	for k, bk := range b.buckets {
		if !bk.seen.After(cutoff) {
			delete(b.buckets, k)
		}
	}
	b.lastSweep = now
}
