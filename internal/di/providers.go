package di

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/classifier"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/config"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/database"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/gemini"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/health"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/logging"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/telemetry"
)

// ProvideLogger: 로거를 구성해 반환합니다.
// OTel이 활성화된 경우 로그에 trace_id/span_id가 자동으로 추가됩니다.
func ProvideLogger(cfg *config.Config) (*slog.Logger, error) {
	logger, err := logging.NewLogger(cfg.Logging, cfg.Telemetry.Enabled)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

// ProvideTelemetry: 추적 provider 를 초기화합니다. 비활성 설정이면 no-op 입니다.
func ProvideTelemetry(cfg *config.Config) (*telemetry.Provider, error) {
	provider, err := telemetry.NewProvider(context.Background(), cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	return provider, nil
}

// ProvideClassifier: 문맥 계층이 꺼져 있으면 nil 분류기를 반환합니다.
func ProvideClassifier(
	cfg *config.Config,
	llm gemini.LLM,
	verdictCache classifier.VerdictCache,
	logger *slog.Logger,
) (classifier.Classifier, error) {
	if !cfg.Guard.UseContextualLayer {
		return nil, nil
	}
	contextual, err := classifier.NewGeminiClassifier(cfg, llm, verdictCache, logger)
	if err != nil {
		return nil, fmt.Errorf("init classifier: %w", err)
	}
	return contextual, nil
}

// ProvideHealthDependencies: 헬스 체크 대상 의존성을 묶습니다.
func ProvideHealthDependencies(handle *database.Handle, verdictCache classifier.VerdictCache) health.Dependencies {
	return health.Dependencies{Database: handle, VerdictCache: verdictCache}
}
