package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Yupick/mc-simple/internal/auth"
	"github.com/Yupick/mc-simple/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestCORSPolicyAllowOrigin(t *testing.T) {
	listed := newCORSPolicy(config.CORSConfig{AllowedOrigins: []string{" https://example.com ", ""}})
	wildcard := newCORSPolicy(config.CORSConfig{AllowedOrigins: []string{"*"}})

	tests := []struct {
		name   string
		policy *corsPolicy
		origin string
		want   string
		ok     bool
	}{
		{"listed origin", listed, "https://example.com", "https://example.com", true},
		{"unlisted origin", listed, "https://evil.example", "", false},
		{"same origin", listed, "", "", true},
		{"wildcard echoes origin", wildcard, "https://anything.local", "https://anything.local", true},
		{"wildcard without origin", wildcard, "", "*", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.policy.allowOrigin(tt.origin)
			if got != tt.want || ok != tt.ok {
				t.Errorf("allowOrigin(%q) = %q, %v; want %q, %v", tt.origin, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestRateLimiterRefills(t *testing.T) {
	limiter := newRateLimiter(2)
	key := "127.0.0.1"
	now := time.Now()

	for i := 0; i < 2; i++ {
		if _, ok := limiter.allow(key, now); !ok {
			t.Fatalf("expected request %d to be allowed", i+1)
		}
	}
	wait, ok := limiter.allow(key, now)
	if ok {
		t.Fatal("expected third request to be rate limited")
	}
	if wait <= 0 || wait > 31*time.Second {
		t.Errorf("unexpected retry delay %v", wait)
	}
	if _, ok := limiter.allow("10.0.0.2", now); !ok {
		t.Error("other clients must have their own bucket")
	}

	if _, ok := limiter.allow(key, now.Add(31*time.Second)); !ok {
		t.Error("expected a token after half a minute")
	}
	if _, ok := limiter.allow(key, now.Add(31*time.Second)); ok {
		t.Error("expected only one token after half a minute")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(RateLimit(config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1}))
	router.GET("/api/v1/server/status", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.POST("/api/v1/server/command", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(method, path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
		return w
	}

	if w := do(http.MethodPost, "/api/v1/server/command"); w.Code != http.StatusOK {
		t.Fatalf("expected first command to pass, got %d", w.Code)
	}
	w := do(http.MethodPost, "/api/v1/server/command")
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 429 with Retry-After, got %d", w.Code)
	}
	for i := 0; i < 3; i++ {
		if w := do(http.MethodGet, "/api/v1/server/status"); w.Code != http.StatusOK {
			t.Fatalf("status polling must not be limited, got %d", w.Code)
		}
	}
}

func TestRedactQuery(t *testing.T) {
	got := redactQuery(url.Values{"token": {"secret"}, "lines": {"10"}})
	if got != "lines=10&token=REDACTED" {
		t.Fatalf("unexpected query %q", got)
	}
}

func newAuthRouter(manager *auth.JWTManager, permission string) *gin.Engine {
	router := gin.New()
	router.GET("/protected", Auth(manager), RequirePermission(permission), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("subject"))
	})
	return router
}

func TestAuthAndPermissions(t *testing.T) {
	manager := auth.NewJWTManager("test-secret", time.Minute)
	viewer, _, _ := manager.GenerateToken("dashboard", auth.RoleViewer)
	operator, _, _ := manager.GenerateToken("ops", auth.RoleOperator)

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"no token", "", "", http.StatusUnauthorized},
		{"malformed header", "Token abc", "", http.StatusUnauthorized},
		{"garbage token", "Bearer abc", "", http.StatusUnauthorized},
		{"viewer lacks permission", "Bearer " + viewer, "", http.StatusForbidden},
		{"operator allowed", "Bearer " + operator, "", http.StatusOK},
		{"query token", "", "?token=" + operator, http.StatusOK},
	}

	router := newAuthRouter(manager, auth.PermLifecycle)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d (%s)", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	router := gin.New()
	router.Use(CORS(config.CORSConfig{AllowedOrigins: []string{"http://localhost:5173"}}))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Errorf("unexpected allow-origin %q", w.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestCORSRejectsUnlistedPreflight(t *testing.T) {
	router := gin.New()
	router.Use(CORS(config.CORSConfig{AllowedOrigins: []string{"http://localhost:5173"}}))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for an unlisted preflight, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Errorf("unlisted origin must not be echoed")
	}
}
