package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestBodyLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	limitedRouter := func(maxBytes int64) *gin.Engine {
		router := gin.New()
		router.Use(BodyLimit(maxBytes))
		router.POST("/deposits", func(c *gin.Context) {
			c.String(http.StatusOK, "ok")
		})
		router.GET("/deposits", func(c *gin.Context) {
			c.String(http.StatusOK, "ok")
		})
		return router
	}

	t.Run("body within limit passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/deposits", strings.NewReader("small body"))
		w := httptest.NewRecorder()
		limitedRouter(1024).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("declared length over limit is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/deposits", strings.NewReader(strings.Repeat("x", 200)))
		req.ContentLength = 200
		w := httptest.NewRecorder()
		limitedRouter(100).ServeHTTP(w, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Contains(t, w.Body.String(), "REQUEST_TOO_LARGE")
	})

	t.Run("bodyless request passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/deposits", nil)
		w := httptest.NewRecorder()
		limitedRouter(10).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("capped reader stops undeclared streams", func(t *testing.T) {
		router := gin.New()
		router.Use(BodyLimit(50))
		router.POST("/deposits", func(c *gin.Context) {
			buf := make([]byte, 200)
			if _, err := c.Request.Body.Read(buf); err != nil {
				c.String(http.StatusBadRequest, "body too large")
				return
			}
			c.String(http.StatusOK, "ok")
		})

		// No Content-Length, as with a chunked upload.
		req := httptest.NewRequest(http.MethodPost, "/deposits", strings.NewReader(strings.Repeat("x", 100)))
		req.ContentLength = -1
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
