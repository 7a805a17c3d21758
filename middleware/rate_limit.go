package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sagarkhandagre998/pdf-invoice-ai-tool/pkg/logger"
)

// RateLimiter counts requests per client IP within a fixed window. It exists
// to keep one client from burning the shared AI quota, not as a hard defense.
type RateLimiter struct {
	mu        sync.Mutex
	counts    map[string]int
	lastReset time.Time
	rate      int
	window    time.Duration
}

func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		counts:    make(map[string]int),
		lastReset: time.Now(),
		rate:      rate,
		window:    window,
	}
}

// Allow records a request for the client and reports whether it fits the
// window, plus how long until the window resets.
func (l *RateLimiter) Allow(clientIP string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	elapsed := time.Since(l.lastReset)
	if elapsed > l.window {
		l.counts = make(map[string]int)
		l.lastReset = time.Now()
		elapsed = 0
	}

	if l.counts[clientIP] >= l.rate {
		return false, l.window - elapsed
	}
	l.counts[clientIP]++
	return true, 0
}

// RateLimit rejects clients that exceed rate requests per window with a 429
// carrying a Retry-After header.
func RateLimit(rate int, window time.Duration) gin.HandlerFunc {
	limiter := NewRateLimiter(rate, window)

	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		ok, retryAfter := limiter.Allow(clientIP)
		if !ok {
			logger.Warn(c.Request.Context(), "rate limit exceeded", "client_ip", clientIP)

			seconds := int(retryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
			})
			return
		}

		c.Next()
	}
}
