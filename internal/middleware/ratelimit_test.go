package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_BurstThenReject(t *testing.T) {
	gin.SetMode(gin.TestMode)

	limiter := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 60, Burst: 3})
	now := time.Now()
	limiter.now = func() time.Time { return now }

	router := gin.New()
	router.Use(limiter.Middleware())
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, w.Code, "request %d", i)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":"Too many requests"}`, w.Body.String())
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	now = now.Add(time.Second)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code, "one token refills per second")
}

func TestRateLimiter_PerClient(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 60, Burst: 1})
	now := time.Now()
	limiter.now = func() time.Time { return now }

	allowed, _ := limiter.Allow("10.0.0.1")
	assert.True(t, allowed)
	allowed, _ = limiter.Allow("10.0.0.1")
	assert.False(t, allowed)

	allowed, _ = limiter.Allow("10.0.0.2")
	assert.True(t, allowed, "clients have independent budgets")
}

func TestRateLimiter_SweepsIdleClients(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{IdleTTL: time.Minute})
	now := time.Now()
	limiter.now = func() time.Time { return now }

	limiter.Allow("a")
	limiter.Allow("b")
	assert.Equal(t, 2, limiter.Len())

	now = now.Add(2 * time.Minute)
	limiter.Allow("c")

	assert.Equal(t, 1, limiter.Len())
}
