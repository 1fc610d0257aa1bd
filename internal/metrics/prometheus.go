package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 분류기 호출 결과 라벨
const (
	OutcomeSuccess     = "success"
	OutcomeUnavailable = "unavailable"
	OutcomeParseError  = "parse_error"
	OutcomeCacheHit    = "cache_hit"
)

var (
	checksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskguard_checks_total",
			Help: "Input risk checks by final risk level, check method and action",
		},
		[]string{"risk_level", "check_method", "action"},
	)

	classifierCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskguard_classifier_calls_total",
			Help: "Contextual classifier calls by outcome",
		},
		[]string{"outcome"},
	)

	classifierDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "riskguard_classifier_duration_seconds",
			Help:    "Contextual classifier call latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	httpRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskguard_http_rejected_total",
			Help: "API requests rejected before reaching a handler",
		},
		[]string{"reason"},
	)

	securityEventWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "riskguard_security_event_write_failures_total",
			Help: "Security events that could not be persisted",
		},
	)
)

// ObserveCheck: 최종 판정 1건을 기록합니다.
func ObserveCheck(riskLevel string, checkMethod string, action string) {
	checksTotal.WithLabelValues(riskLevel, checkMethod, action).Inc()
}

// ObserveClassifierCall: 분류기 호출 결과와 지연 시간을 기록합니다.
func ObserveClassifierCall(outcome string, duration time.Duration) {
	classifierCalls.WithLabelValues(outcome).Inc()
	if outcome != OutcomeCacheHit {
		classifierDuration.Observe(duration.Seconds())
	}
}

// HTTP 거부 사유 라벨
const (
	RejectUnauthorized = "unauthorized"
	RejectRateLimited  = "rate_limited"
)

// IncHTTPRejected: 인증/요청 제한으로 거부된 요청을 기록합니다.
func IncHTTPRejected(reason string) {
	httpRejected.WithLabelValues(reason).Inc()
}

// IncSecurityEventWriteFailure: 보안 이벤트 저장 실패를 기록합니다.
func IncSecurityEventWriteFailure() {
	securityEventWriteFailures.Inc()
}
