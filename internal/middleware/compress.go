package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

// Gzip 는 조회 API 응답을 압축한다.
// /metrics 는 promhttp 가 자체 압축하고 헬스 응답은 작아서 제외한다.
func Gzip() gin.HandlerFunc {
	return gzip.Gzip(gzip.DefaultCompression, gzip.WithCustomShouldCompressFn(shouldCompress))
}

func shouldCompress(c *gin.Context) bool {
	if c.Request.Method != http.MethodGet {
		return false
	}
	if !strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") {
		return false
	}
	path := c.Request.URL.Path
	return strings.HasPrefix(path, "/api/security/") || strings.HasPrefix(path, "/api/usage/")
}
