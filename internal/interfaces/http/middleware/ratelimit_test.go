package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter(t *testing.T) {
	t.Run("window admits up to the limit", func(t *testing.T) {
		limiter := NewRateLimiter(5, time.Minute)

		for i := 0; i < 5; i++ {
			assert.True(t, limiter.Allow("client1"), "request %d", i+1)
		}
		assert.False(t, limiter.Allow("client1"))
	})

	t.Run("keys are independent", func(t *testing.T) {
		limiter := NewRateLimiter(2, time.Minute)

		assert.True(t, limiter.Allow("clientA"))
		assert.True(t, limiter.Allow("clientA"))
		assert.False(t, limiter.Allow("clientA"))

		assert.True(t, limiter.Allow("clientB"))
		assert.True(t, limiter.Allow("clientB"))
	})

	t.Run("window expiry resets the bucket", func(t *testing.T) {
		limiter := NewRateLimiter(2, 50*time.Millisecond)

		assert.True(t, limiter.Allow("client3"))
		assert.True(t, limiter.Allow("client3"))
		assert.False(t, limiter.Allow("client3"))

		time.Sleep(60 * time.Millisecond)
		assert.True(t, limiter.Allow("client3"))
	})

	t.Run("remaining counts down", func(t *testing.T) {
		limiter := NewRateLimiter(5, time.Minute)

		assert.Equal(t, 5, limiter.Remaining("newclient"))
		limiter.Allow("newclient")
		limiter.Allow("newclient")
		assert.Equal(t, 3, limiter.Remaining("newclient"))
	})

	t.Run("concurrent callers never exceed the limit", func(t *testing.T) {
		limiter := NewRateLimiter(100, time.Minute)

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			allowed int
		)
		for i := 0; i < 150; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if limiter.Allow("concurrent-client") {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 100, allowed)
	})
}

// limitedLogin builds a router with the given middleware and a POST /login
// route, and returns a request function bound to remoteAddr.
func limitedLogin(mw gin.HandlerFunc, remoteAddr string) func() *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(mw)
	router.POST("/login", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	return func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = remoteAddr
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("serves until the limit then 429s", func(t *testing.T) {
		router := gin.New()
		router.Use(RateLimit(NewRateLimiter(2, time.Minute)))
		router.GET("/rates", okHandler)

		for i := 0; i < 2; i++ {
			assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/rates").Code)
		}

		w := serve(router, http.MethodGet, "/rates")
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")
	})

	t.Run("tenant header partitions the key space", func(t *testing.T) {
		router := gin.New()
		router.Use(RateLimit(NewRateLimiter(1, time.Minute)))
		router.GET("/rates", okHandler)

		asTenant := func(tenant string) int {
			req := httptest.NewRequest(http.MethodGet, "/rates", nil)
			req.Header.Set("X-Tenant-ID", tenant)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			return w.Code
		}

		assert.Equal(t, http.StatusOK, asTenant("tenant1"))
		assert.Equal(t, http.StatusTooManyRequests, asTenant("tenant1"))
		assert.Equal(t, http.StatusOK, asTenant("tenant2"))
	})
}

func TestRateLimitByKey(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(RateLimitByKey(NewRateLimiter(1, time.Minute), func(c *gin.Context) string {
		return c.GetHeader("X-User-ID")
	}))
	router.GET("/rates", okHandler)

	asUser := func(user string) int {
		req := httptest.NewRequest(http.MethodGet, "/rates", nil)
		req.Header.Set("X-User-ID", user)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, asUser("user1"))
	assert.Equal(t, http.StatusTooManyRequests, asUser("user1"))
	assert.Equal(t, http.StatusOK, asUser("user2"))
}

func TestAuthRateLimit(t *testing.T) {
	t.Run("admits attempts within the limit", func(t *testing.T) {
		login := limitedLogin(AuthRateLimit(NewRateLimiter(5, time.Minute)), "192.168.1.100:12345")

		for i := 0; i < 5; i++ {
			assert.Equal(t, http.StatusOK, login().Code, "attempt %d", i+1)
		}
	})

	t.Run("blocked attempts get the auth-specific code", func(t *testing.T) {
		login := limitedLogin(AuthRateLimit(NewRateLimiter(3, time.Minute)), "192.168.1.100:12345")

		for i := 0; i < 3; i++ {
			assert.Equal(t, http.StatusOK, login().Code)
		}

		w := login()
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Contains(t, w.Body.String(), "AUTH_RATE_LIMIT_EXCEEDED")
		assert.Contains(t, w.Body.String(), "Too many authentication attempts")
	})

	t.Run("exposes limit headers", func(t *testing.T) {
		login := limitedLogin(AuthRateLimit(NewRateLimiter(5, time.Minute)), "192.168.1.100:12345")

		w := login()
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "4", w.Header().Get("X-RateLimit-Remaining"))
	})

	t.Run("blocked responses carry Retry-After", func(t *testing.T) {
		login := limitedLogin(AuthRateLimit(NewRateLimiter(1, time.Minute)), "192.168.1.100:12345")

		assert.Equal(t, http.StatusOK, login().Code)

		w := login()
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "60", w.Header().Get("Retry-After"))
	})

	t.Run("addresses are limited independently", func(t *testing.T) {
		limiter := NewRateLimiter(2, time.Minute)
		first := limitedLogin(AuthRateLimit(limiter), "192.168.1.1:12345")
		second := limitedLogin(AuthRateLimit(limiter), "192.168.1.2:12345")

		assert.Equal(t, http.StatusOK, first().Code)
		assert.Equal(t, http.StatusOK, first().Code)
		assert.Equal(t, http.StatusTooManyRequests, first().Code)

		assert.Equal(t, http.StatusOK, second().Code)
	})

	t.Run("auth prefix keeps limiters apart", func(t *testing.T) {
		gin.SetMode(gin.TestMode)
		authLimiter := NewRateLimiter(2, time.Minute)
		globalLimiter := NewRateLimiter(100, time.Minute)

		router := gin.New()
		authGroup := router.Group("/auth")
		authGroup.Use(AuthRateLimit(authLimiter))
		authGroup.POST("/login", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"success": true})
		})
		router.Use(RateLimit(globalLimiter))
		router.GET("/api/rates", okHandler)

		request := func(method, path string) int {
			req := httptest.NewRequest(method, path, nil)
			req.RemoteAddr = "192.168.1.100:12345"
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			return w.Code
		}

		assert.Equal(t, http.StatusOK, request(http.MethodPost, "/auth/login"))
		assert.Equal(t, http.StatusOK, request(http.MethodPost, "/auth/login"))
		assert.Equal(t, http.StatusTooManyRequests, request(http.MethodPost, "/auth/login"))

		assert.Equal(t, http.StatusOK, request(http.MethodGet, "/api/rates"))
	})
}
