package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/config"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/health"
)

// ModelConfigResponse: 문맥 분류기 모델 설정 응답입니다.
type ModelConfigResponse struct {
	ClassifierModel       string  `json:"classifier_model"`
	UseContextualLayer    bool    `json:"use_contextual_layer"`
	EscalationThreshold   string  `json:"escalation_threshold"`
	FallbackVerdict       string  `json:"fallback_verdict"`
	Temperature           float64 `json:"temperature"`
	ConfiguredTemperature float64 `json:"configured_temperature"`
	ThinkingLevel         string  `json:"thinking_level"`
	TimeoutSeconds        int     `json:"timeout_seconds"`
	VerdictCacheEnabled   bool    `json:"verdict_cache_enabled"`
	HTTP2Enabled          bool    `json:"http2_enabled"`
	TransportMode         string  `json:"transport_mode"`
}

// RegisterHealthRoutes: 상태 확인 라우트를 등록합니다.
func RegisterHealthRoutes(router *gin.Engine, cfg *config.Config, deps health.Dependencies) {
	router.GET("/health", func(c *gin.Context) {
		// Liveness: 외부 의존성(Valkey/DB 등) 상태로 인해 다운 판정되지 않도록 shallow로 유지합니다.
		payload := health.Collect(c.Request.Context(), cfg, deps, false)
		c.JSON(http.StatusOK, payload)
	})

	router.GET("/health/ready", func(c *gin.Context) {
		payload := health.Collect(c.Request.Context(), cfg, deps, true)
		status := http.StatusOK
		if payload.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, payload)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/health/models", func(c *gin.Context) {
		transportMode := "h1"
		if cfg.HTTP.HTTP2Enabled {
			transportMode = "h2c"
		}

		c.JSON(http.StatusOK, ModelConfigResponse{
			ClassifierModel:       cfg.Classifier.Model,
			UseContextualLayer:    cfg.Guard.UseContextualLayer,
			EscalationThreshold:   cfg.Guard.EscalationThreshold,
			FallbackVerdict:       cfg.Classifier.FallbackVerdict,
			Temperature:           cfg.Gemini.TemperatureForModel(cfg.Classifier.Model),
			ConfiguredTemperature: cfg.Gemini.Temperature,
			ThinkingLevel:         cfg.Gemini.ThinkingLevel,
			TimeoutSeconds:        cfg.Classifier.TimeoutSeconds,
			VerdictCacheEnabled:   cfg.VerdictCache.Enabled,
			HTTP2Enabled:          cfg.HTTP.HTTP2Enabled,
			TransportMode:         transportMode,
		})
	})
}
