package api

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jiin/botwatch/internal/logger"
)

// RateLimiter is a per-client token bucket
type RateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*clientBucket
	rate     int           // tokens added per interval
	interval time.Duration
	burst    int
	idleTTL  time.Duration
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

type clientBucket struct {
	tokens     int
	lastRefill time.Time
}

// NewRateLimiter creates a rate limiter and starts its cleanup goroutine
func NewRateLimiter(rate int, interval time.Duration, burst int) *RateLimiter {
	rl := &RateLimiter{
		clients:  make(map[string]*clientBucket),
		rate:     rate,
		interval: interval,
		burst:    burst,
		idleTTL:  10 * time.Minute,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
	go rl.cleanupLoop(5 * time.Minute)
	return rl
}

// Stop stops the cleanup goroutine. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimiter) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.evictIdle()
		}
	}
}

func (rl *RateLimiter) evictIdle() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for ip, bucket := range rl.clients {
		if now.Sub(bucket.lastRefill) > rl.idleTTL {
			delete(rl.clients, ip)
		}
	}
}

// Allow consumes one token for clientIP
func (rl *RateLimiter) Allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	bucket, exists := rl.clients[clientIP]
	if !exists {
		rl.clients[clientIP] = &clientBucket{tokens: rl.burst - 1, lastRefill: now}
		return rl.burst > 0
	}

	if refill := int(now.Sub(bucket.lastRefill)/rl.interval) * rl.rate; refill > 0 {
		bucket.tokens = min(bucket.tokens+refill, rl.burst)
		bucket.lastRefill = now
	}

	if bucket.tokens > 0 {
		bucket.tokens--
		return true
	}
	return false
}

// RateLimitMiddleware rejects requests over the limiter's budget
func RateLimitMiddleware(rl *RateLimiter, retryAfter time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			c.Header("Retry-After", retryAfter.String())
			RespondError(c, http.StatusTooManyRequests, "rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}

// MaxBodySizeMiddleware limits the maximum request body size
func MaxBodySizeMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			RespondError(c, http.StatusRequestEntityTooLarge, "request body too large")
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// ConnectionLimiter caps concurrent connections per client and in total
type ConnectionLimiter struct {
	mu          sync.Mutex
	connections map[string]int
	maxPerIP    int
	maxTotal    int
	total       int
}

func NewConnectionLimiter(maxPerIP, maxTotal int) *ConnectionLimiter {
	return &ConnectionLimiter{
		connections: make(map[string]int),
		maxPerIP:    maxPerIP,
		maxTotal:    maxTotal,
	}
}

func (cl *ConnectionLimiter) Acquire(clientIP string) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.total >= cl.maxTotal || cl.connections[clientIP] >= cl.maxPerIP {
		return false
	}
	cl.connections[clientIP]++
	cl.total++
	return true
}

func (cl *ConnectionLimiter) Release(clientIP string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.connections[clientIP] == 0 {
		return
	}
	cl.connections[clientIP]--
	if cl.connections[clientIP] == 0 {
		delete(cl.connections, clientIP)
	}
	cl.total--
}

// SecurityHeadersMiddleware adds security headers to all responses
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			c.Header("Cache-Control", "no-store")
		}
		c.Next()
	}
}

// RequestLogger logs each request through the component logger instead of
// gin's default writer.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		args := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"latency", time.Since(start).String(),
			"client", c.ClientIP(),
		}
		switch {
		case status >= http.StatusInternalServerError:
			log.Error("Request failed", args...)
		case status >= http.StatusBadRequest:
			log.Warn("Request rejected", args...)
		default:
			log.Debug("Request served", args...)
		}
	}
}
