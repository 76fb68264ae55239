// Package ratelimit implements a token-bucket limiter guarding the inbound
// OCR surface. It keeps the teacher's token-bucket refill arithmetic
// (maxTokens/refillRate/lastRefillTime) but drops the teacher's blocking
// Wait() in favor of a non-blocking TryAcquire, since an inbound HTTP
// handler must answer 429 immediately rather than stall the caller.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Limiter is a token bucket: maxTokens capacity, refilling one token every
// refillRate.
type Limiter struct {
	tokens         int
	maxTokens      int
	refillRate     time.Duration
	lastRefillTime time.Time
	mu             sync.Mutex
}

// New builds a Limiter with the given capacity and refill interval.
func New(maxTokens int, refillRate time.Duration) *Limiter {
	return &Limiter{
		tokens:         maxTokens,
		maxTokens:      maxTokens,
		refillRate:     refillRate,
		lastRefillTime: time.Now(),
	}
}

func (l *Limiter) refillLocked(now time.Time) {
	elapsed := now.Sub(l.lastRefillTime)
	tokensToAdd := int(elapsed / l.refillRate)
	if tokensToAdd <= 0 {
		return
	}
	l.tokens += tokensToAdd
	if l.tokens > l.maxTokens {
		l.tokens = l.maxTokens
	}
	l.lastRefillTime = now
}

// TryAcquire consumes one token if available and reports whether it did.
func (l *Limiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refillLocked(time.Now())
	if l.tokens <= 0 {
		return false
	}
	l.tokens--
	return true
}

// Middleware returns a gin handler that answers 429 once the bucket is
// exhausted, instead of blocking the request.
func Middleware(l *Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.TryAcquire() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded, try again shortly",
			})
			return
		}
		c.Next()
	}
}
