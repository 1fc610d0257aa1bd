package usage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/config"
)

// ErrUsageDisabled 는 사용량 저장소가 구성되지 않았을 때 반환된다.
var ErrUsageDisabled = errors.New("usage recording disabled")

// Recorder 는 요청별 토큰 사용량을 저장하거나 배치로 적재한다.
type Recorder struct {
	repo    *Repository
	batcher *batcher
	logger  *slog.Logger
}

// NewRecorder 는 설정에 따라 배치 사용 여부를 결정해 Recorder를 생성한다.
func NewRecorder(cfg *config.Config, repo *Repository, logger *slog.Logger) *Recorder {
	if cfg != nil && !cfg.Database.UsageEnabled {
		repo = nil
	}
	recorder := &Recorder{
		repo:   repo,
		logger: logger,
	}

	if repo != nil && cfg != nil && cfg.Database.UsageBatchEnabled {
		recorder.batcher = newBatcher(cfg, repo, logger)
		recorder.batcher.start()
		if logger != nil {
			logger.Info(
				"usage_db_batch_enabled",
				"flush_interval_seconds", cfg.Database.UsageBatchFlushIntervalSeconds,
				"flush_timeout_seconds", cfg.Database.UsageBatchFlushTimeoutSeconds,
				"max_pending_requests", cfg.Database.UsageBatchMaxPendingRequests,
				"max_backoff_seconds", cfg.Database.UsageBatchMaxBackoffSeconds,
				"error_log_max_interval_seconds", cfg.Database.UsageBatchErrorLogMaxIntervalSeconds,
			)
		}
	}

	return recorder
}

// Record 는 프로젝트의 1회 분류 호출 토큰 사용량을 기록한다.
func (r *Recorder) Record(ctx context.Context, projectID string, inputTokens int64, outputTokens int64, reasoningTokens int64) {
	if r == nil || r.repo == nil {
		return
	}
	if inputTokens <= 0 && outputTokens <= 0 {
		return
	}

	if r.batcher != nil {
		r.batcher.add(projectID, inputTokens, outputTokens, reasoningTokens, 1)
		return
	}

	if err := r.repo.RecordUsage(ctx, projectID, inputTokens, outputTokens, reasoningTokens, 1, time.Time{}); err != nil {
		if r.logger != nil {
			r.logger.Warn("usage_db_save_failed", "project_id", projectID, "err", err)
		}
	}
}

// Totals 는 최근 N일 사용량 합계를 조회한다. projectID 가 비면 전체 합계다.
func (r *Recorder) Totals(ctx context.Context, days int, projectID string) (DailyUsage, error) {
	if r == nil || r.repo == nil {
		return DailyUsage{}, ErrUsageDisabled
	}
	return r.repo.GetTotalUsage(ctx, days, projectID)
}

// Daily 는 특정 일자(UTC, zero 면 오늘) 사용량을 조회한다. 기록이 없으면 nil 이다.
func (r *Recorder) Daily(ctx context.Context, usageDate time.Time) (*DailyUsage, error) {
	if r == nil || r.repo == nil {
		return nil, ErrUsageDisabled
	}
	return r.repo.GetDailyUsage(ctx, usageDate)
}

// Recent 는 최근 N일 일자별 사용량을 조회한다.
func (r *Recorder) Recent(ctx context.Context, days int) ([]DailyUsage, error) {
	if r == nil || r.repo == nil {
		return nil, ErrUsageDisabled
	}
	return r.repo.GetRecentUsage(ctx, days)
}

// Close 는 배치 플러셔를 중지한다.
func (r *Recorder) Close() {
	if r == nil || r.batcher == nil {
		return
	}
	r.batcher.stop()
}
