package securitylog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"gorm.io/gorm"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/database"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/risk"
)

// eventRow 는 security_events 테이블 행이다. 위험도는 정렬/필터를 위해 정수로 저장한다.
type eventRow struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	EventID     string    `gorm:"column:event_id;size:36;not null;uniqueIndex"`
	Timestamp   time.Time `gorm:"column:occurred_at;not null;index"`
	EventType   string    `gorm:"column:event_type;size:32;not null"`
	ProjectID   string    `gorm:"column:project_id;size:128;not null;index"`
	UserID      string    `gorm:"column:user_id;size:128;not null"`
	RiskLevel   int       `gorm:"column:risk_level;not null;index"`
	Threats     string    `gorm:"column:threats;type:text;not null"`
	CheckMethod string    `gorm:"column:check_method;size:64;not null"`
	Source      string    `gorm:"column:source;size:32"`
}

func (eventRow) TableName() string {
	return "security_events"
}

func toRow(event Event) (eventRow, error) {
	threats, err := json.Marshal(event.Threats)
	if err != nil {
		return eventRow{}, fmt.Errorf("encode threats: %w", err)
	}
	return eventRow{
		EventID:     event.EventID,
		Timestamp:   event.Timestamp.UTC(),
		EventType:   event.EventType,
		ProjectID:   event.ProjectID,
		UserID:      event.UserID,
		RiskLevel:   int(event.RiskLevel),
		Threats:     string(threats),
		CheckMethod: string(event.CheckMethod),
		Source:      event.Source,
	}, nil
}

func (r eventRow) event(scope Scope) Event {
	var threats []risk.Category
	_ = json.Unmarshal([]byte(r.Threats), &threats)
	return Event{
		EventID:     r.EventID,
		Timestamp:   r.Timestamp.UTC(),
		EventType:   r.EventType,
		ProjectID:   r.ProjectID,
		UserID:      r.UserID,
		RiskLevel:   risk.Level(r.RiskLevel),
		Threats:     threats,
		CheckMethod: risk.Method(r.CheckMethod),
		Context:     scope,
		Source:      r.Source,
	}
}

// DBStore 는 gorm 기반 저장소다. 전역 스트림은 테이블 전체, 프로젝트 스트림은 project_id 필터다.
type DBStore struct {
	handle   *database.Handle
	logger   *slog.Logger
	mu       sync.Mutex
	migrated bool
}

// NewDBStore 는 DB 저장소를 만든다. 테이블은 첫 접근 시 마이그레이션되며, 실패하면 다음 접근에서 다시 시도한다.
func NewDBStore(handle *database.Handle, logger *slog.Logger) *DBStore {
	return &DBStore{handle: handle, logger: logger}
}

func (s *DBStore) getDB(ctx context.Context) (*gorm.DB, error) {
	db, err := s.handle.Get(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.migrate(ctx, db); err != nil {
		return nil, fmt.Errorf("prepare security events table: %w", err)
	}
	return db, nil
}

// migrate: 호출자 취소와 무관하게 테이블을 준비합니다. 성공한 경우에만 완료로 표시합니다.
func (s *DBStore) migrate(ctx context.Context, db *gorm.DB) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.migrated {
		return nil
	}
	if err := db.WithContext(context.WithoutCancel(ctx)).AutoMigrate(&eventRow{}); err != nil {
		if s.logger != nil {
			s.logger.Error("security_db_migrate_failed", "err", err)
		}
		return err
	}
	s.migrated = true
	return nil
}

// Append 는 이벤트 한 행을 삽입한다.
func (s *DBStore) Append(ctx context.Context, event Event) error {
	row, err := toRow(event)
	if err != nil {
		return fmt.Errorf("%w: %v", risk.ErrLogWrite, err)
	}
	db, err := s.getDB(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", risk.ErrLogWrite, err)
	}
	if err := db.Create(&row).Error; err != nil {
		return fmt.Errorf("%w: insert event: %v", risk.ErrLogWrite, err)
	}
	return nil
}

// Recent 는 조건에 맞는 최근 이벤트를 최신순으로 반환한다.
func (s *DBStore) Recent(ctx context.Context, query Query) ([]Event, error) {
	db, err := s.getDB(ctx)
	if err != nil {
		return nil, err
	}

	scope := ScopeGlobal
	tx := db.Model(&eventRow{}).Where("risk_level >= ?", int(query.MinRisk))
	if query.ProjectID != "" {
		scope = ScopeProject
		tx = tx.Where("project_id = ?", query.ProjectID)
	}

	var rows []eventRow
	if err := tx.Order("occurred_at desc").Order("id desc").Limit(normalizeLimit(query.Limit)).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query security events: %w", err)
	}

	events := make([]Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, row.event(scope))
	}
	return events, nil
}

type groupCount struct {
	Key   string
	Level int
	Count int
}

// Statistics 는 since 이후 이벤트를 SQL GROUP BY 로 집계한다.
func (s *DBStore) Statistics(ctx context.Context, projectID string, since time.Time) (Statistics, error) {
	db, err := s.getDB(ctx)
	if err != nil {
		return Statistics{}, err
	}

	base := func() *gorm.DB {
		tx := db.Model(&eventRow{}).Where("occurred_at >= ?", since.UTC())
		if projectID != "" {
			tx = tx.Where("project_id = ?", projectID)
		}
		return tx
	}

	var byLevel []groupCount
	if err := base().Select("risk_level AS level, COUNT(*) AS count").Group("risk_level").Scan(&byLevel).Error; err != nil {
		return Statistics{}, fmt.Errorf("aggregate risk levels: %w", err)
	}
	var byMethod []groupCount
	if err := base().Select("check_method AS key, COUNT(*) AS count").Group("check_method").Scan(&byMethod).Error; err != nil {
		return Statistics{}, fmt.Errorf("aggregate check methods: %w", err)
	}
	var byUser []groupCount
	if err := base().
		Select("user_id AS key, COUNT(*) AS count").
		Group("user_id").
		Order("count DESC").
		Order("user_id ASC").
		Limit(maxTopUsers).
		Scan(&byUser).Error; err != nil {
		return Statistics{}, fmt.Errorf("aggregate users: %w", err)
	}

	stats := newStatsAccumulator().result()
	for _, row := range byLevel {
		level := risk.Level(row.Level)
		stats.TotalEvents += row.Count
		stats.ByRiskLevel[level.String()] += row.Count
		if level == risk.LevelCritical {
			stats.CriticalEvents += row.Count
		}
		if level >= risk.LevelHigh {
			stats.HighRiskEvents += row.Count
		}
	}
	for _, row := range byMethod {
		stats.ByCheckMethod[row.Key] += row.Count
	}
	stats.TopUsers = make([]UserCount, 0, len(byUser))
	for _, row := range byUser {
		stats.TopUsers = append(stats.TopUsers, UserCount{UserID: row.Key, Count: row.Count})
	}
	sortUserCounts(stats.TopUsers)
	return stats, nil
}

// Close 는 공유 DB 핸들을 닫지 않는다. 핸들 수명은 DI 컨테이너가 관리한다.
func (s *DBStore) Close() error {
	return nil
}
