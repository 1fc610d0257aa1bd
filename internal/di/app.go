package di

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/classifier"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/config"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/database"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/securitylog"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/telemetry"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/usage"
)

// App: 애플리케이션 구성 요소를 묶는다.
type App struct {
	Server         *http.Server
	Logger         *slog.Logger
	Config         *config.Config
	Telemetry      *telemetry.Provider
	Database       *database.Handle
	UsageRecorder  *usage.Recorder
	SecurityEvents *securitylog.Logger
	VerdictCache   classifier.VerdictCache
}

// NewApp: App 인스턴스를 생성합니다.
func NewApp(
	server *http.Server,
	logger *slog.Logger,
	cfg *config.Config,
	telemetryProvider *telemetry.Provider,
	handle *database.Handle,
	usageRecorder *usage.Recorder,
	securityEvents *securitylog.Logger,
	verdictCache classifier.VerdictCache,
) *App {
	return &App{
		Server:         server,
		Logger:         logger,
		Config:         cfg,
		Telemetry:      telemetryProvider,
		Database:       handle,
		UsageRecorder:  usageRecorder,
		SecurityEvents: securityEvents,
		VerdictCache:   verdictCache,
	}
}

// Close: 앱 리소스를 정리합니다. 기록기를 먼저 닫고 DB 연결을 마지막에 닫습니다.
func (a *App) Close(ctx context.Context) {
	if a.UsageRecorder != nil {
		a.UsageRecorder.Close()
	}
	if a.SecurityEvents != nil {
		if err := a.SecurityEvents.Close(); err != nil && a.Logger != nil {
			a.Logger.Warn("security_log_close_failed", "err", err)
		}
	}
	if a.VerdictCache != nil {
		a.VerdictCache.Close()
	}
	if a.Database != nil {
		a.Database.Close()
	}
	if a.Telemetry != nil {
		if err := a.Telemetry.Shutdown(ctx); err != nil && a.Logger != nil {
			a.Logger.Warn("telemetry_shutdown_failed", "err", err)
		}
	}
}
