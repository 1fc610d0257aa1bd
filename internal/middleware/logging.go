package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestLogger 는 HTTP 요청 로그 미들웨어다.
// 요청 컨텍스트로 기록하므로 추적 상관 핸들러가 trace_id 를 붙인다.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	return func(c *gin.Context) {
		startedAt := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		if status < http.StatusBadRequest && len(c.Errors) == 0 && isNoisyInfoPath(path) {
			return
		}

		attrs := []slog.Attr{
			slog.String("request_id", GetRequestID(c)),
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(startedAt)),
			slog.Int("bytes", c.Writer.Size()),
		}
		if route := c.FullPath(); route != "" && route != path {
			attrs = append(attrs, slog.String("route", route))
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("errors", c.Errors.String()))
		}

		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		logger.LogAttrs(c.Request.Context(), level, "http_request", attrs...)
	}
}

func isNoisyInfoPath(path string) bool {
	switch path {
	case "/health", "/health/ready", "/health/models", "/metrics":
		return true
	default:
		return false
	}
}
