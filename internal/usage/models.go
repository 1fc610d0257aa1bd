package usage

import (
	"time"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/llm"
)

// TokenUsage 는 프로젝트/일자별 분류기 토큰 사용량 집계를 저장하는 DB 모델이다.
type TokenUsage struct {
	ID              int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UsageDate       time.Time `gorm:"column:usage_date;not null;uniqueIndex:idx_token_usage_date_project,priority:1"`
	ProjectID       string    `gorm:"column:project_id;size:128;not null;default:'';uniqueIndex:idx_token_usage_date_project,priority:2"`
	InputTokens     int64     `gorm:"column:input_tokens;not null;default:0"`
	OutputTokens    int64     `gorm:"column:output_tokens;not null;default:0"`
	ReasoningTokens int64     `gorm:"column:reasoning_tokens;not null;default:0"`
	RequestCount    int64     `gorm:"column:request_count;not null;default:0"`
	Version         int64     `gorm:"column:version;not null;default:0"`
}

// TableName 은 GORM에서 사용할 테이블명을 반환한다.
func (TokenUsage) TableName() string {
	return "token_usage"
}

// DailyUsage 는 API/집계용 사용량 뷰 모델이다. ProjectID 가 비어 있으면 전체 합계다.
type DailyUsage struct {
	UsageDate       time.Time
	ProjectID       string
	InputTokens     int64
	OutputTokens    int64
	ReasoningTokens int64
	RequestCount    int64
}

// TotalTokens 는 입력+출력 토큰 합계를 반환한다.
func (d DailyUsage) TotalTokens() int64 {
	return d.InputTokens + d.OutputTokens
}

// EstimatedCostUSD 는 백만 토큰당 단가로 추정 비용을 계산한다.
func (d DailyUsage) EstimatedCostUSD(inputPricePerMTok float64, outputPricePerMTok float64) float64 {
	return llm.EstimateCostUSD(d.InputTokens, d.OutputTokens, inputPricePerMTok, outputPricePerMTok)
}

func toDailyUsage(row TokenUsage) DailyUsage {
	return DailyUsage{
		UsageDate:       row.UsageDate,
		ProjectID:       row.ProjectID,
		InputTokens:     row.InputTokens,
		OutputTokens:    row.OutputTokens,
		ReasoningTokens: row.ReasoningTokens,
		RequestCount:    row.RequestCount,
	}
}
