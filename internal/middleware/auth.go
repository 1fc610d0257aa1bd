package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/config"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/httperror"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/metrics"
)

// APIKeyAuth 는 /api/ 경로의 API 키 인증 미들웨어다. 설정된 키가 없으면 인증하지 않는다.
func APIKeyAuth(cfg *config.Config) gin.HandlerFunc {
	var accepted [][]byte
	if cfg != nil {
		for _, key := range cfg.HTTPAuth.APIKeys {
			if trimmed := strings.TrimSpace(key); trimmed != "" {
				accepted = append(accepted, []byte(trimmed))
			}
		}
	}

	return func(c *gin.Context) {
		if len(accepted) == 0 || !shouldProtectPath(c.Request.URL.Path) {
			c.Next()
			return
		}

		if !matchesAnyKey([]byte(extractAPIKey(c)), accepted) {
			metrics.IncHTTPRejected(metrics.RejectUnauthorized)
			details := map[string]any{"path": c.Request.URL.Path}
			status, payload := httperror.Response(httperror.NewUnauthorized(details), GetRequestID(c))
			c.AbortWithStatusJSON(status, payload)
			return
		}

		c.Next()
	}
}

// matchesAnyKey: 일치 여부와 무관하게 모든 키와 비교합니다.
func matchesAnyKey(provided []byte, accepted [][]byte) bool {
	if len(provided) == 0 {
		return false
	}
	matched := 0
	for _, key := range accepted {
		matched |= subtle.ConstantTimeCompare(provided, key)
	}
	return matched == 1
}

func extractAPIKey(c *gin.Context) string {
	if c == nil {
		return ""
	}

	if value := strings.TrimSpace(c.GetHeader("X-API-Key")); value != "" {
		return value
	}

	authValue := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(authValue) > len("bearer ") && strings.EqualFold(authValue[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(authValue[len("bearer "):])
	}
	return ""
}

func shouldProtectPath(path string) bool {
	return strings.HasPrefix(path, "/api/")
}
