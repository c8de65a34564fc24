package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a token bucket per client IP
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     rate.Limit // tokens per second
	burst    int        // maximum tokens
	idleTTL  time.Duration

	// Idle buckets are swept at most once per pruneEvery
	pruneEvery time.Duration
	lastPrune  time.Time
	now        func() time.Time
}

// NewRateLimiter allows r requests per second per client with the given burst
func NewRateLimiter(r float64, burst int) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate.Limit(r),
		burst:    burst,
		idleTTL:  10 * time.Minute,

		pruneEvery: time.Minute,
		now:        time.Now,
	}
}

// Allow reports whether a request from ip may proceed and consumes a token
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, ok := rl.visitors[ip]
	if !ok {
		// Initialize if first request
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now

	// Drop idle buckets; they refill to full anyway
	if now.Sub(rl.lastPrune) >= rl.pruneEvery {
		rl.lastPrune = now
		for key, other := range rl.visitors {
			if now.Sub(other.lastSeen) > rl.idleTTL {
				delete(rl.visitors, key)
			}
		}
	}

	return v.limiter.AllowN(now, 1)
}

// RateLimit rejects clients that exceed their bucket with 429
func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
			})
			return
		}

		c.Next()
	}
}
