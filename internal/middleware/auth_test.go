package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/config"
)

func TestAPIKeyAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{HTTPAuth: config.HTTPAuthConfig{APIKeys: []string{"old-secret", "secret"}}}

	router := gin.New()
	router.Use(APIKeyAuth(cfg))
	router.GET("/api/test", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	cases := []struct {
		name   string
		path   string
		header string
		value  string
		status int
	}{
		{"missing key", "/api/test", "", "", http.StatusUnauthorized},
		{"wrong key", "/api/test", "X-API-Key", "nope", http.StatusUnauthorized},
		{"current key", "/api/test", "X-API-Key", "secret", http.StatusOK},
		{"rotated key", "/api/test", "X-API-Key", "old-secret", http.StatusOK},
		{"bearer token", "/api/test", "Authorization", "Bearer secret", http.StatusOK},
		{"health is public", "/health", "", "", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		if tc.header != "" {
			req.Header.Set(tc.header, tc.value)
		}
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.status, resp.Code)
		}
	}
}

func TestAPIKeyAuthDisabledWithoutKeys(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(APIKeyAuth(&config.Config{}))
	router.GET("/api/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/test", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected ok, got %d", resp.Code)
	}
}
