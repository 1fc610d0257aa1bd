package handler

import (
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/config"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/health"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/httperror"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/middleware"
)

// NewRouter 는 HTTP 라우터를 구성한다.
func NewRouter(
	cfg *config.Config,
	logger *slog.Logger,
	guardHandler *GuardHandler,
	securityHandler *SecurityHandler,
	usageHandler *UsageHandler,
	healthDeps health.Dependencies,
) *gin.Engine {
	setGinMode(cfg.Logging.Level)

	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.Tracing(cfg.Telemetry.ServiceName),
		middleware.RequestLogger(logger),
		gin.CustomRecovery(recoveryHandler(logger)),
		middleware.APIKeyAuth(cfg),
		middleware.RateLimit(cfg),
		middleware.Gzip(),
	)

	RegisterHealthRoutes(router, cfg, healthDeps)
	guardHandler.RegisterRoutes(router)
	securityHandler.RegisterRoutes(router)
	usageHandler.RegisterRoutes(router)

	return router
}

// recoveryHandler: 패닉을 로그로 남기고 공통 에러 응답으로 변환합니다.
func recoveryHandler(logger *slog.Logger) gin.RecoveryFunc {
	return func(c *gin.Context, recovered any) {
		if logger != nil {
			logger.ErrorContext(c.Request.Context(), "http_panic_recovered",
				"request_id", middleware.GetRequestID(c),
				"path", c.Request.URL.Path,
				"panic", recovered,
			)
		}
		status, payload := httperror.Response(httperror.NewInternalError("internal server error"), middleware.GetRequestID(c))
		c.AbortWithStatusJSON(status, payload)
	}
}

func setGinMode(level string) {
	if strings.EqualFold(strings.TrimSpace(level), "debug") {
		gin.SetMode(gin.DebugMode)
		return
	}
	gin.SetMode(gin.ReleaseMode)
}
