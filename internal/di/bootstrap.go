//go:build !wireinject

package di

import (
	"fmt"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/classifier"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/config"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/database"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/gemini"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/guard"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/handler"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/hybrid"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/metrics"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/prompt"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/securitylog"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/server"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/usage"
)

// InitializeApp 은 애플리케이션 의존성을 초기화하고 App 인스턴스를 반환한다.
func InitializeApp() (*App, error) {
	cfg, err := config.ProvideConfig()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	telemetryProvider, err := ProvideTelemetry(cfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	metricsStore := metrics.NewStore()
	handle := database.NewHandle(cfg, logger)
	usageRepository := usage.NewRepository(handle, logger)
	usageRecorder := usage.NewRecorder(cfg, usageRepository, logger)

	geminiClient, err := gemini.NewClient(cfg, metricsStore, usageRecorder)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	verdictCache, err := classifier.NewVerdictCache(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("verdict cache: %w", err)
	}

	contextual, err := ProvideClassifier(cfg, geminiClient, verdictCache, logger)
	if err != nil {
		return nil, err
	}

	matcher, err := guard.NewMatcher(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("pattern matcher: %w", err)
	}

	eventStore, err := securitylog.NewStore(cfg, handle, logger)
	if err != nil {
		return nil, fmt.Errorf("security event store: %w", err)
	}
	securityEvents, err := securitylog.NewLogger(eventStore, logger)
	if err != nil {
		return nil, fmt.Errorf("security event logger: %w", err)
	}

	engine, err := hybrid.NewEngine(cfg, matcher, contextual, securityEvents, metricsStore, logger)
	if err != nil {
		return nil, fmt.Errorf("risk engine: %w", err)
	}

	prompts, err := prompt.NewSafePromptBuilder()
	if err != nil {
		return nil, fmt.Errorf("safe prompt builder: %w", err)
	}

	guardHandler := handler.NewGuardHandler(engine, prompts, logger)
	securityHandler := handler.NewSecurityHandler(securityEvents, logger)
	usageHandler := handler.NewUsageHandler(cfg, usageRecorder, logger)
	healthDeps := ProvideHealthDependencies(handle, verdictCache)

	router := handler.NewRouter(cfg, logger, guardHandler, securityHandler, usageHandler, healthDeps)
	httpServer := server.NewHTTPServer(cfg, router)

	return NewApp(httpServer, logger, cfg, telemetryProvider, handle, usageRecorder, securityEvents, verdictCache), nil
}
