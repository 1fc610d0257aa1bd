package metrics

import (
	"sync/atomic"
	"time"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/llm"
)

// Store 는 프로세스 수명 동안의 검사/분류기 호출 통계를 원자적으로 누적한다.
type Store struct {
	checks      atomic.Int64
	escalations atomic.Int64
	fallbacks   atomic.Int64
	blocked     atomic.Int64
	sanitized   atomic.Int64

	classifierCalls      atomic.Int64
	classifierErrors     atomic.Int64
	totalInputTokens     atomic.Int64
	totalOutputTokens    atomic.Int64
	totalReasoningTokens atomic.Int64
	totalDurationMs      atomic.Int64
}

// NewStore 는 통계 저장소를 생성한다.
func NewStore() *Store {
	return &Store{}
}

// RecordCheck 는 최종 판정 1건을 기록한다.
func (s *Store) RecordCheck(escalated bool, fallback bool, action string) {
	s.checks.Add(1)
	if escalated {
		s.escalations.Add(1)
	}
	if fallback {
		s.fallbacks.Add(1)
	}
	switch action {
	case "block":
		s.blocked.Add(1)
	case "sanitize":
		s.sanitized.Add(1)
	}
}

// RecordSuccess 는 분류기 성공 호출 통계를 기록한다.
func (s *Store) RecordSuccess(duration time.Duration, usage llm.Usage) {
	s.classifierCalls.Add(1)
	s.totalInputTokens.Add(int64(usage.InputTokens))
	s.totalOutputTokens.Add(int64(usage.OutputTokens))
	s.totalReasoningTokens.Add(int64(usage.ReasoningTokens))
	s.totalDurationMs.Add(duration.Milliseconds())
}

// RecordError 는 분류기 실패 호출 통계를 기록한다.
func (s *Store) RecordError(duration time.Duration) {
	s.classifierCalls.Add(1)
	s.classifierErrors.Add(1)
	s.totalDurationMs.Add(duration.Milliseconds())
}

// UsageTotals 는 누적 토큰 사용량을 반환한다.
func (s *Store) UsageTotals() llm.Usage {
	input := s.totalInputTokens.Load()
	output := s.totalOutputTokens.Load()
	return llm.Usage{
		InputTokens:     int(input),
		OutputTokens:    int(output),
		TotalTokens:     int(input + output),
		ReasoningTokens: int(s.totalReasoningTokens.Load()),
	}
}

// Snapshot 는 통계 스냅샷을 반환한다.
func (s *Store) Snapshot() map[string]float64 {
	calls := s.classifierCalls.Load()
	durationMs := s.totalDurationMs.Load()

	avgDuration := 0.0
	if calls > 0 {
		avgDuration = float64(durationMs) / float64(calls)
	}
	usage := s.UsageTotals()

	return map[string]float64{
		"checks_total":              float64(s.checks.Load()),
		"escalations_total":         float64(s.escalations.Load()),
		"fallbacks_total":           float64(s.fallbacks.Load()),
		"blocked_total":             float64(s.blocked.Load()),
		"sanitized_total":           float64(s.sanitized.Load()),
		"classifier_calls":          float64(calls),
		"classifier_errors":         float64(s.classifierErrors.Load()),
		"classifier_input_tokens":   float64(usage.InputTokens),
		"classifier_output_tokens":  float64(usage.OutputTokens),
		"classifier_total_tokens":   float64(usage.TotalTokens),
		"classifier_duration_ms":    float64(durationMs),
		"classifier_avg_latency_ms": avgDuration,
	}
}
