// Package securitylog 는 위험도 LOW 이상 검사 결과를 추가 전용 보안 이벤트로 기록하고 통계를 제공한다.
package securitylog

import (
	"context"
	"sort"
	"time"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/risk"
)

// EventTypeRiskCheck 는 입력 검사 이벤트 유형이다.
const EventTypeRiskCheck = "risk_check"

// DefaultProjectID 는 프로젝트 없이 들어온 검사의 귀속 대상이다.
const DefaultProjectID = "default"

// Scope 는 이벤트가 기록된 스트림이다.
type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeProject Scope = "project"
)

// 입력 출처
const (
	SourceUserMessage = "user_message"
	SourceFileUpload  = "file_upload"
)

// Event 는 보안 이벤트 한 건이다. 생성 후 수정하지 않는다.
type Event struct {
	EventID     string          `json:"event_id"`
	Timestamp   time.Time       `json:"timestamp"`
	EventType   string          `json:"event_type"`
	ProjectID   string          `json:"project_id"`
	UserID      string          `json:"user_id"`
	RiskLevel   risk.Level      `json:"risk_level"`
	Threats     []risk.Category `json:"threats"`
	CheckMethod risk.Method     `json:"check_method"`
	Context     Scope           `json:"context"`
	Source      string          `json:"source,omitempty"`
}

// NewEvent 는 검사 결과로 이벤트를 만든다. ID 와 시각은 Logger.Record 가 채운다.
func NewEvent(result risk.CheckResult, projectID string, userID string, source string) Event {
	if projectID == "" {
		projectID = DefaultProjectID
	}
	return Event{
		EventType:   EventTypeRiskCheck,
		ProjectID:   projectID,
		UserID:      userID,
		RiskLevel:   result.Level,
		Threats:     result.Categories(),
		CheckMethod: result.Method,
		Source:      source,
	}
}

// Query 는 최근 이벤트 조회 조건이다.
type Query struct {
	ProjectID string
	Limit     int
	MinRisk   risk.Level
}

// UserCount 는 사용자별 이벤트 수다.
type UserCount struct {
	UserID string `json:"user_id"`
	Count  int    `json:"count"`
}

// Statistics 는 기간 내 이벤트 집계다.
type Statistics struct {
	PeriodDays     int            `json:"period_days"`
	TotalEvents    int            `json:"total_events"`
	CriticalEvents int            `json:"critical_events"`
	HighRiskEvents int            `json:"high_risk_events"`
	ByRiskLevel    map[string]int `json:"by_risk_level"`
	ByCheckMethod  map[string]int `json:"by_check_method"`
	TopUsers       []UserCount    `json:"top_users"`
}

const maxTopUsers = 10

// Store 는 보안 이벤트 저장소다.
// Append 는 전역 스트림과 프로젝트 스트림 모두에 기록한다.
type Store interface {
	Append(ctx context.Context, event Event) error
	Recent(ctx context.Context, query Query) ([]Event, error)
	Statistics(ctx context.Context, projectID string, since time.Time) (Statistics, error)
	Close() error
}

// 구현체 컴파일 타임 확인
var (
	_ Store = (*FileStore)(nil)
	_ Store = (*DBStore)(nil)
)

// statsAccumulator 는 이벤트 스트림을 Statistics 로 집계한다.
type statsAccumulator struct {
	stats  Statistics
	byUser map[string]int
}

func newStatsAccumulator() *statsAccumulator {
	return &statsAccumulator{
		stats: Statistics{
			ByRiskLevel:   make(map[string]int),
			ByCheckMethod: make(map[string]int),
		},
		byUser: make(map[string]int),
	}
}

func (a *statsAccumulator) add(level risk.Level, method string, userID string, count int) {
	a.stats.TotalEvents += count
	a.stats.ByRiskLevel[level.String()] += count
	a.stats.ByCheckMethod[method] += count
	a.byUser[userID] += count
	if level == risk.LevelCritical {
		a.stats.CriticalEvents += count
	}
	if level >= risk.LevelHigh {
		a.stats.HighRiskEvents += count
	}
}

func (a *statsAccumulator) result() Statistics {
	a.stats.TopUsers = topUsers(a.byUser, maxTopUsers)
	return a.stats
}

// topUsers 는 건수 내림차순, 같으면 사용자 ID 오름차순으로 최대 limit 명을 반환한다.
func topUsers(byUser map[string]int, limit int) []UserCount {
	users := make([]UserCount, 0, len(byUser))
	for userID, count := range byUser {
		users = append(users, UserCount{UserID: userID, Count: count})
	}
	sortUserCounts(users)
	if len(users) > limit {
		users = users[:limit]
	}
	return users
}

func sortUserCounts(users []UserCount) {
	sort.Slice(users, func(i, j int) bool {
		if users[i].Count != users[j].Count {
			return users[i].Count > users[j].Count
		}
		return users[i].UserID < users[j].UserID
	})
}
