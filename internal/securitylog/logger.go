package securitylog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/config"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/database"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/metrics"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/risk"
)

const (
	defaultRecentLimit = 100
	maxRecentLimit     = 10000
	defaultPeriodDays  = 7
)

// 저장소 백엔드 이름
const (
	BackendFile     = "file"
	BackendDatabase = "database"
)

// NewStore 는 SECURITY_LOG_BACKEND 설정에 맞는 저장소를 만든다.
func NewStore(cfg *config.Config, handle *database.Handle, logger *slog.Logger) (Store, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	switch strings.ToLower(cfg.SecurityLog.Backend) {
	case BackendFile, "":
		return NewFileStore(cfg.SecurityLog.Dir, logger)
	case BackendDatabase:
		if handle == nil {
			return nil, fmt.Errorf("%w: security log database backend requires a database handle", risk.ErrConfiguration)
		}
		return NewDBStore(handle, logger), nil
	default:
		return nil, fmt.Errorf("%w: security log backend %q", risk.ErrConfiguration, cfg.SecurityLog.Backend)
	}
}

// Logger 는 보안 이벤트 기록기다. 기록 실패는 호출자에게 전파하지 않는다.
type Logger struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewLogger 는 저장소를 주입받아 Logger 를 생성한다.
func NewLogger(store Store, logger *slog.Logger) (*Logger, error) {
	if store == nil {
		return nil, errors.New("security event store is nil")
	}
	return &Logger{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Record 는 이벤트에 ID 와 시각을 채워 저장한다.
// 실패는 경고 로그와 실패 카운터로만 남긴다. CRITICAL 이벤트는 security_alert 로그를 추가로 남긴다.
func (l *Logger) Record(ctx context.Context, event Event) {
	if l == nil {
		return
	}
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now()
	}
	event.Timestamp = event.Timestamp.UTC().Truncate(time.Millisecond)
	if event.EventType == "" {
		event.EventType = EventTypeRiskCheck
	}
	if event.ProjectID == "" {
		event.ProjectID = DefaultProjectID
	}
	if event.Threats == nil {
		event.Threats = []risk.Category{}
	}

	// 클라이언트 연결이 끊겨도 기록은 남긴다
	if err := l.store.Append(context.WithoutCancel(ctx), event); err != nil {
		metrics.IncSecurityEventWriteFailure()
		if l.logger != nil {
			l.logger.Warn("security_event_write_failed",
				"event_id", event.EventID,
				"project_id", event.ProjectID,
				"err", err,
			)
		}
	}

	if event.RiskLevel == risk.LevelCritical && l.logger != nil {
		l.logger.Error("security_alert",
			"event_id", event.EventID,
			"event_type", event.EventType,
			"risk_level", event.RiskLevel.String(),
			"project_id", event.ProjectID,
			"user_id", event.UserID,
			"threats", firstCategories(event.Threats, 3),
			"timestamp", event.Timestamp.Format(time.RFC3339Nano),
		)
	}
}

// Statistics 는 최근 days 일의 집계를 반환한다. projectID 가 비면 전역 스트림이다.
func (l *Logger) Statistics(ctx context.Context, projectID string, days int) (Statistics, error) {
	if days <= 0 {
		days = defaultPeriodDays
	}
	since := l.now().Add(-time.Duration(days) * 24 * time.Hour)
	stats, err := l.store.Statistics(ctx, projectID, since)
	if err != nil {
		return Statistics{}, fmt.Errorf("security statistics: %w", err)
	}
	stats.PeriodDays = days
	return stats, nil
}

// RecentEvents 는 최근 이벤트를 최신순으로 반환한다.
func (l *Logger) RecentEvents(ctx context.Context, query Query) ([]Event, error) {
	query.Limit = normalizeLimit(query.Limit)
	events, err := l.store.Recent(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("recent security events: %w", err)
	}
	return events, nil
}

// Close 는 저장소를 닫는다.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	return l.store.Close()
}

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultRecentLimit
	case limit > maxRecentLimit:
		return maxRecentLimit
	default:
		return limit
	}
}

func firstCategories(categories []risk.Category, limit int) []string {
	names := make([]string, 0, min(len(categories), limit))
	for _, category := range categories {
		if len(names) == limit {
			break
		}
		names = append(names, string(category))
	}
	return names
}
