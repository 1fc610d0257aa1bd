package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// RequestIDHeader 는 요청 ID 헤더 키다.
const RequestIDHeader = "X-Request-ID"

const (
	requestIDKey       = "request_id"
	maxRequestIDLength = 128
)

// RequestID 는 요청 ID를 부여하는 미들웨어다.
// 헤더가 없으면 유효한 trace id 를, 그것도 없으면 UUID 를 사용한다.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = fallbackRequestID(c)
		}
		c.Set(requestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()
	}
}

// GetRequestID: 컨텍스트의 요청 ID를 반환합니다.
func GetRequestID(c *gin.Context) string {
	if c == nil {
		return ""
	}
	value, ok := c.Get(requestIDKey)
	if !ok {
		return ""
	}
	requestID, ok := value.(string)
	if !ok {
		return ""
	}
	return requestID
}

func fallbackRequestID(c *gin.Context) string {
	if c != nil && c.Request != nil {
		if spanCtx := trace.SpanContextFromContext(c.Request.Context()); spanCtx.HasTraceID() {
			return spanCtx.TraceID().String()
		}
	}
	return uuid.NewString()
}
