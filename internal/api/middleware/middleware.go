package middleware

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Yupick/mc-simple/internal/config"
	"github.com/Yupick/mc-simple/internal/logging"
)

const corsAllowHeaders = "Content-Type, Content-Length, Authorization, Accept, Origin"

// corsPolicy is the allow-list from config, resolved once.
type corsPolicy struct {
	origins  map[string]struct{}
	wildcard bool
	methods  string
}

func newCORSPolicy(cfg config.CORSConfig) *corsPolicy {
	p := &corsPolicy{origins: map[string]struct{}{}, methods: "GET, POST, PUT, DELETE, OPTIONS"}
	for _, origin := range cfg.AllowedOrigins {
		origin = strings.TrimSpace(origin)
		switch origin {
		case "":
		case "*":
			p.wildcard = true
		default:
			p.origins[origin] = struct{}{}
		}
	}
	if len(cfg.AllowedMethods) > 0 {
		p.methods = strings.Join(cfg.AllowedMethods, ", ")
	}
	return p
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin, or
// false when the origin is not on the list. Requests without an Origin header
// are not cross-origin and always pass.
func (p *corsPolicy) allowOrigin(origin string) (string, bool) {
	if origin == "" {
		if p.wildcard {
			return "*", true
		}
		return "", true
	}
	if _, ok := p.origins[origin]; ok || p.wildcard {
		return origin, true
	}
	return "", false
}

// CORS answers preflight requests and tags responses for listed origins.
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	policy := newCORSPolicy(cfg)

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Add("Vary", "Origin")

		allowOrigin, ok := policy.allowOrigin(c.Request.Header.Get("Origin"))
		if allowOrigin != "" {
			h.Set("Access-Control-Allow-Origin", allowOrigin)
		}

		if c.Request.Method == http.MethodOptions {
			if !ok {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Allow-Methods", policy.methods)
			h.Set("Access-Control-Max-Age", "600")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Logger writes one structured line per request. Health checks and successful
// status polls are only logged in debug mode.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.Request.URL.Path
		if status < http.StatusBadRequest && isPollingRequest(c.Request.Method, path) && gin.Mode() != gin.DebugMode {
			return
		}
		if c.Request.URL.RawQuery != "" {
			path += "?" + redactQuery(c.Request.URL.Query())
		}

		level := slog.LevelInfo
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}

		logging.L().Log(c.Request.Context(), level, "http_request",
			"subject", c.GetString("subject"),
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency", time.Since(start).String(),
			"ip", c.ClientIP(),
		)
	}
}

// redactQuery hides bearer tokens passed in the query string.
func redactQuery(values url.Values) string {
	if values.Has("token") {
		values.Set("token", "REDACTED")
	}
	return values.Encode()
}

func isPollingRequest(method, path string) bool {
	return path == "/health" || (method == http.MethodGet && path == "/api/v1/server/status")
}

// RateLimit throttles each client IP with a token bucket that holds
// requests_per_minute tokens and refills at the same rate. Polling and the
// event stream are not counted.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	if !cfg.Enabled || cfg.RequestsPerMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiter := newRateLimiter(cfg.RequestsPerMinute)

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/api/v1/ws" || isPollingRequest(c.Request.Method, path) {
			c.Next()
			return
		}

		if wait, ok := limiter.allow(c.ClientIP(), time.Now()); !ok {
			c.Header("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		c.Next()
	}
}

type bucket struct {
	tokens float64
	last   time.Time
}

type rateLimiter struct {
	capacity  float64
	perSecond float64

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

func newRateLimiter(requestsPerMinute int) *rateLimiter {
	return &rateLimiter{
		capacity:  float64(requestsPerMinute),
		perSecond: float64(requestsPerMinute) / 60,
		buckets:   make(map[string]*bucket),
		lastSweep: time.Now(),
	}
}

// allow takes a token for key. When none is left it reports how long until
// the next one.
func (rl *rateLimiter) allow(key string, now time.Time) (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) > time.Minute {
		rl.sweep(now)
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: rl.capacity, last: now}
		rl.buckets[key] = b
	}
	b.tokens = min(rl.capacity, b.tokens+now.Sub(b.last).Seconds()*rl.perSecond)
	b.last = now

	if b.tokens < 1 {
		return time.Duration((1 - b.tokens) / rl.perSecond * float64(time.Second)), false
	}
	b.tokens--
	return 0, true
}

// sweep forgets clients whose bucket has refilled completely.
func (rl *rateLimiter) sweep(now time.Time) {
	for key, b := range rl.buckets {
		if b.tokens+now.Sub(b.last).Seconds()*rl.perSecond >= rl.capacity {
			delete(rl.buckets, key)
		}
	}
	rl.lastSweep = now
}
