//go:build wireinject

package di

import (
	"github.com/google/wire"

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

func InitializeApp() (*App, error) {
	wire.Build(
		config.ProvideConfig,
		ProvideLogger,
		ProvideTelemetry,
		metrics.NewStore,
		database.NewHandle,
		usage.NewRepository,
		usage.NewRecorder,
		gemini.NewClient,
		wire.Bind(new(gemini.LLM), new(*gemini.Client)),
		classifier.NewVerdictCache,
		ProvideClassifier,
		guard.NewMatcher,
		wire.Bind(new(guard.PatternMatcher), new(*guard.Matcher)),
		securitylog.NewStore,
		securitylog.NewLogger,
		wire.Bind(new(hybrid.EventRecorder), new(*securitylog.Logger)),
		hybrid.NewEngine,
		prompt.NewSafePromptBuilder,
		handler.NewGuardHandler,
		handler.NewSecurityHandler,
		handler.NewUsageHandler,
		ProvideHealthDependencies,
		handler.NewRouter,
		server.NewHTTPServer,
		NewApp,
	)
	return nil, nil
}
