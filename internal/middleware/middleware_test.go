package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bookswap/config"
	"bookswap/internal/auth"
	"bookswap/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testJWT() *config.JWTConfig {
	return &config.JWTConfig{
		AccessSecret:  "access",
		RefreshSecret: "refresh",
		AccessExpiry:  time.Minute,
		RefreshExpiry: time.Hour,
		Issuer:        "bookswap",
	}
}

func serve(r *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRequired(t *testing.T) {
	cfg := testJWT()
	r := gin.New()
	r.GET("/me", AuthRequired(cfg), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": GetUserID(c)})
	})
	r.GET("/admin", AuthRequired(cfg), RequireRole(domain.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	member, err := auth.GenerateAccessToken(cfg, 7, domain.RoleMember)
	require.NoError(t, err)
	admin, err := auth.GenerateAccessToken(cfg, 1, domain.RoleAdmin)
	require.NoError(t, err)
	refresh, err := auth.GenerateRefreshToken(cfg, 7)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, serve(r, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/me", "garbage").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/me", refresh).Code)

	w := serve(r, "/me", member)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":7}`, w.Body.String())

	assert.Equal(t, http.StatusForbidden, serve(r, "/admin", member).Code)
	assert.Equal(t, http.StatusNoContent, serve(r, "/admin", admin).Code)
}

func TestOptionalAuth(t *testing.T) {
	cfg := testJWT()
	r := gin.New()
	r.GET("/books", OptionalAuth(cfg), func(c *gin.Context) {
		if id := OptionalUserID(c); id != nil {
			c.JSON(http.StatusOK, gin.H{"id": *id})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": nil})
	})
	token, err := auth.GenerateAccessToken(cfg, 3, domain.RoleMember)
	require.NoError(t, err)

	assert.JSONEq(t, `{"id":null}`, serve(r, "/books", "").Body.String())
	assert.JSONEq(t, `{"id":null}`, serve(r, "/books", "expired-or-bad").Body.String())
	assert.JSONEq(t, `{"id":3}`, serve(r, "/books", token).Body.String())
}

func TestRateLimitPerClient(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	r := gin.New()
	r.Use(RateLimit(rl))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	from := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
	assert.Equal(t, http.StatusOK, from("10.0.0.1"))
	assert.Equal(t, http.StatusOK, from("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, from("10.0.0.1"))
	assert.Equal(t, http.StatusOK, from("10.0.0.2"))
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	rl.idle = 0
	rl.Allow("a")
	rl.Allow("b")
	time.Sleep(time.Millisecond)
	assert.Equal(t, 2, rl.Cleanup())
}

func TestRequestLoggerSetsRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger(nil))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, "/ping", "")
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}
