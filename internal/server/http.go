package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/config"
)

// NewHTTPServer 는 HTTP 서버를 생성한다. HTTP2 가 켜져 있으면 h2c 로 감싼다.
func NewHTTPServer(cfg *config.Config, router *gin.Engine) *http.Server {
	addr := net.JoinHostPort(cfg.HTTP.Host, fmt.Sprint(cfg.HTTP.Port))
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSeconds) * time.Second,
	}

	if cfg.HTTP.HTTP2Enabled {
		server.Handler = h2c.NewHandler(router, &http2.Server{})
	}

	return server
}

// Serve: ctx 가 끝날 때까지 서빙하고 shutdownTimeout 안에 graceful shutdown 합니다.
// 정상 종료면 nil 을 반환합니다.
func Serve(ctx context.Context, server *http.Server, listener net.Listener, shutdownTimeout time.Duration, logger *slog.Logger) error {
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Serve(listener)
	}()

	select {
	case err := <-serverErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http serve: %w", err)
	case <-ctx.Done():
	}

	if logger != nil {
		logger.Info("http_server_shutdown_start", "timeout", shutdownTimeout)
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		if logger != nil {
			logger.Error("http_server_shutdown_failed", "err", err)
		}
		_ = server.Close()
	}

	if err := <-serverErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http serve: %w", err)
	}
	return nil
}
