package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Tracing: 수신 traceparent 를 추출하고 요청마다 서버 span 을 시작합니다.
// 헬스/메트릭 경로는 추적하지 않습니다.
func Tracing(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName, otelgin.WithFilter(func(r *http.Request) bool {
		return !isNoisyInfoPath(r.URL.Path)
	}))
}
