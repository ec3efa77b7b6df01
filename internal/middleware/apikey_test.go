package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/vantage-advisory/lead-capture/internal/middleware"
)

func apiKeyRouter(key string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.APIKeyAuth(key))
	r.GET("/ops/outbox/stats", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return r
}

func TestAPIKeyAuth_ValidKey(t *testing.T) {
	r := apiKeyRouter("secret-key")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ops/outbox/stats", http.NoBody)
	req.Header.Set("X-API-Key", "secret-key")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestAPIKeyAuth_WrongKey(t *testing.T) {
	r := apiKeyRouter("secret-key")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ops/outbox/stats", http.NoBody)
	req.Header.Set("X-API-Key", "wrong")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAPIKeyAuth_MissingKey(t *testing.T) {
	r := apiKeyRouter("secret-key")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ops/outbox/stats", http.NoBody)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAPIKeyAuth_EmptyConfiguredKeyRejectsAll(t *testing.T) {
	r := apiKeyRouter("")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ops/outbox/stats", http.NoBody)
	req.Header.Set("X-API-Key", "")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}
