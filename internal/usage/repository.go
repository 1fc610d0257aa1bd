package usage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/database"
)

const defaultProjectID = "default"

// Repository 는 usage DB 접근을 담당한다. postgres 와 sqlite 모두에서 동작하는 쿼리만 사용한다.
type Repository struct {
	handle   *database.Handle
	logger   *slog.Logger
	migrated sync.Once
	migErr   error
}

// NewRepository 는 usage 저장소를 생성한다.
func NewRepository(handle *database.Handle, logger *slog.Logger) *Repository {
	return &Repository{
		handle: handle,
		logger: logger,
	}
}

// RecordUsage 는 지정한 날짜(또는 오늘)의 프로젝트 토큰 사용량을 누적 저장한다.
func (r *Repository) RecordUsage(
	ctx context.Context,
	projectID string,
	inputTokens int64,
	outputTokens int64,
	reasoningTokens int64,
	requestCount int64,
	usageDate time.Time,
) error {
	if requestCount <= 0 && inputTokens <= 0 && outputTokens <= 0 {
		return nil
	}

	db, err := r.getDB(ctx)
	if err != nil {
		return err
	}

	targetDate := usageDate
	if targetDate.IsZero() {
		targetDate = todayDate()
	}
	if projectID == "" {
		projectID = defaultProjectID
	}

	row := TokenUsage{
		UsageDate:       targetDate,
		ProjectID:       projectID,
		InputTokens:     inputTokens,
		OutputTokens:    outputTokens,
		ReasoningTokens: reasoningTokens,
		RequestCount:    requestCount,
	}

	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "usage_date"}, {Name: "project_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"input_tokens":     gorm.Expr("token_usage.input_tokens + excluded.input_tokens"),
			"output_tokens":    gorm.Expr("token_usage.output_tokens + excluded.output_tokens"),
			"reasoning_tokens": gorm.Expr("token_usage.reasoning_tokens + excluded.reasoning_tokens"),
			"request_count":    gorm.Expr("token_usage.request_count + excluded.request_count"),
			"version":          gorm.Expr("token_usage.version + 1"),
		}),
	}).Create(&row).Error
}

// GetDailyUsage 는 특정 날짜(또는 오늘)의 전체 프로젝트 합계를 조회한다. 기록이 없으면 nil 이다.
func (r *Repository) GetDailyUsage(ctx context.Context, usageDate time.Time) (*DailyUsage, error) {
	db, err := r.getDB(ctx)
	if err != nil {
		return nil, err
	}

	targetDate := usageDate
	if targetDate.IsZero() {
		targetDate = todayDate()
	}

	var result DailyUsage
	if err := db.Model(&TokenUsage{}).
		Select(sumColumns).
		Where("usage_date = ?", targetDate).
		Scan(&result).Error; err != nil {
		return nil, fmt.Errorf("query daily usage: %w", err)
	}
	if result.RequestCount == 0 && result.TotalTokens() == 0 {
		return nil, nil
	}
	result.UsageDate = targetDate
	return &result, nil
}

// GetRecentUsage 는 최근 N일의 일자별 전체 합계를 최신순으로 조회한다.
func (r *Repository) GetRecentUsage(ctx context.Context, days int) ([]DailyUsage, error) {
	db, err := r.getDB(ctx)
	if err != nil {
		return nil, err
	}
	if days <= 0 {
		days = 7
	}

	var rows []TokenUsage
	if err := db.Model(&TokenUsage{}).
		Select(sumColumns + ", usage_date").
		Group("usage_date").
		Order("usage_date desc").
		Limit(days).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("query recent usage: %w", err)
	}

	usages := make([]DailyUsage, 0, len(rows))
	for _, row := range rows {
		usages = append(usages, toDailyUsage(row))
	}
	return usages, nil
}

// GetTotalUsage 는 최근 N일 합계를 조회한다.
func (r *Repository) GetTotalUsage(ctx context.Context, days int, projectID string) (DailyUsage, error) {
	db, err := r.getDB(ctx)
	if err != nil {
		return DailyUsage{}, err
	}
	if days <= 0 {
		days = 30
	}

	cutoff := todayDate().AddDate(0, 0, -days)
	query := db.Model(&TokenUsage{}).Select(sumColumns).Where("usage_date >= ?", cutoff)
	if projectID != "" {
		query = query.Where("project_id = ?", projectID)
	}

	var result DailyUsage
	if err := query.Scan(&result).Error; err != nil {
		return DailyUsage{}, fmt.Errorf("query total usage: %w", err)
	}
	result.UsageDate = todayDate()
	result.ProjectID = projectID
	return result, nil
}

const sumColumns = "COALESCE(SUM(input_tokens), 0) AS input_tokens, " +
	"COALESCE(SUM(output_tokens), 0) AS output_tokens, " +
	"COALESCE(SUM(reasoning_tokens), 0) AS reasoning_tokens, " +
	"COALESCE(SUM(request_count), 0) AS request_count"

func (r *Repository) getDB(ctx context.Context) (*gorm.DB, error) {
	db, err := r.handle.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("open usage db: %w", err)
	}

	r.migrated.Do(func() {
		r.migErr = db.AutoMigrate(&TokenUsage{})
		if r.migErr != nil && r.logger != nil {
			r.logger.Error("usage_db_migrate_failed", "err", r.migErr)
		}
	})
	if r.migErr != nil {
		return nil, fmt.Errorf("prepare usage db: %w", r.migErr)
	}
	return db, nil
}

func todayDate() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
