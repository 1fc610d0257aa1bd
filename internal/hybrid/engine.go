package hybrid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/classifier"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/config"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/guard"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/metrics"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/risk"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/securitylog"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/telemetry"
)

// EventRecorder 는 보안 이벤트 기록 인터페이스다. 기록 실패를 반환하지 않는다.
type EventRecorder interface {
	Record(ctx context.Context, event securitylog.Event)
}

// securitylog.Logger가 EventRecorder 인터페이스를 구현하는지 컴파일 타임 확인
var _ EventRecorder = (*securitylog.Logger)(nil)

// CheckOptions 는 단일 검사 옵션이다.
type CheckOptions struct {
	// ForceContextual: CRITICAL 이 아니면 임계값과 무관하게 문맥 분류기를 호출 (문맥 계층이 켜진 경우만)
	ForceContextual bool
	// Source: user_message | file_upload
	Source string
}

// CheckOption 은 CheckOptions 수정 함수다.
type CheckOption func(*CheckOptions)

// WithForceContextual 은 문맥 분류를 강제한다.
func WithForceContextual(force bool) CheckOption {
	return func(o *CheckOptions) { o.ForceContextual = force }
}

// WithSource 는 입력 출처를 지정한다.
func WithSource(source string) CheckOption {
	return func(o *CheckOptions) {
		if source != "" {
			o.Source = source
		}
	}
}

// Engine 은 패턴 검사, 게이트, 문맥 분류, 결합, 이벤트 기록을 순서대로 수행한다.
// 검사마다 독립적이며 동시 호출에 안전하다.
type Engine struct {
	matcher      guard.PatternMatcher
	classifier   classifier.Classifier
	events       EventRecorder
	metrics      *metrics.Store
	logger       *slog.Logger
	threshold    risk.ThresholdConfig
	sanitizer    Sanitizer
	refusal      string
	excerptChars int
	tracer       trace.Tracer
}

// NewEngine 은 검사 엔진을 생성한다. 문맥 계층이 켜져 있으면 classifier 가 필요하다.
func NewEngine(
	cfg *config.Config,
	matcher guard.PatternMatcher,
	contextual classifier.Classifier,
	events EventRecorder,
	metricsStore *metrics.Store,
	logger *slog.Logger,
) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if matcher == nil {
		return nil, errors.New("pattern matcher is nil")
	}
	if events == nil {
		return nil, errors.New("event recorder is nil")
	}
	if metricsStore == nil {
		return nil, errors.New("metrics store is nil")
	}

	threshold, err := cfg.Guard.Threshold()
	if err != nil {
		return nil, err
	}
	if threshold.UseContextualLayer && contextual == nil {
		return nil, fmt.Errorf("%w: contextual layer enabled without classifier", risk.ErrConfiguration)
	}
	sanitizer, err := NewSanitizer(cfg.Guard.Sanitizer)
	if err != nil {
		return nil, err
	}

	excerptChars := cfg.Guard.FileExcerptChars
	if excerptChars <= 0 {
		excerptChars = defaultFileExcerptChars
	}

	if logger != nil {
		logger.Info("hybrid_engine_ready",
			"use_contextual_layer", threshold.UseContextualLayer,
			"escalation_threshold", threshold.EscalationThreshold.String(),
			"sanitizer", sanitizer.Name(),
		)
	}

	return &Engine{
		matcher:      matcher,
		classifier:   contextual,
		events:       events,
		metrics:      metricsStore,
		logger:       logger,
		threshold:    threshold,
		sanitizer:    sanitizer,
		refusal:      cfg.Guard.RefusalMessage,
		excerptChars: excerptChars,
		tracer:       telemetry.Tracer(),
	}, nil
}

const defaultFileExcerptChars = 5000

// Threshold 는 엔진의 게이트 설정을 반환한다.
func (e *Engine) Threshold() risk.ThresholdConfig {
	return e.threshold
}

// Evaluate 는 패턴 계층만 실행한다. 이벤트를 기록하지 않는다.
func (e *Engine) Evaluate(text string) guard.Match {
	return e.matcher.Match(text)
}

// CheckInput 은 입력 하나를 판정한다. 에러를 반환하지 않으며 분류기/기록 실패는 내부에서 흡수한다.
// 위험도 LOW 이상 결과는 보안 이벤트로 정확히 한 번 기록한다.
func (e *Engine) CheckInput(ctx context.Context, text string, projectID string, userID string, opts ...CheckOption) risk.CheckResult {
	options := CheckOptions{Source: securitylog.SourceUserMessage}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Source == securitylog.SourceFileUpload {
		text = truncateRunes(text, e.excerptChars)
	}

	ctx, span := e.tracer.Start(ctx, "hybrid.check_input",
		trace.WithAttributes(
			attribute.String("riskguard.project_id", projectID),
			attribute.String("riskguard.source", options.Source),
		),
	)
	defer span.End()

	start := time.Now()
	match := e.matcher.Match(text)
	decision := decide(match.Risk, e.threshold, options.ForceContextual)

	var contextual *classifier.Classification
	if decision == Escalate {
		verdict := e.classifier.Classify(ctx, text, projectID)
		contextual = &verdict
	}

	result := e.finalize(Combine(match, decision, contextual), text)

	fallback := contextual != nil && contextual.Fallback
	e.metrics.RecordCheck(decision == Escalate, fallback, string(result.Action))
	metrics.ObserveCheck(result.Level.String(), string(result.Method), string(result.Action))

	span.SetAttributes(
		attribute.String("riskguard.pattern_risk", match.Risk.String()),
		attribute.String("riskguard.gate", decision.String()),
		attribute.String("riskguard.risk_level", result.Level.String()),
		attribute.String("riskguard.action", string(result.Action)),
	)

	if result.Level >= risk.LevelLow {
		e.events.Record(ctx, securitylog.NewEvent(result, projectID, userID, options.Source))
	}

	if e.logger != nil {
		e.logger.Debug("guard_check_completed",
			"project_id", projectID,
			"pattern_risk", match.Risk.String(),
			"gate", decision.String(),
			"risk_level", result.Level.String(),
			"check_method", string(result.Method),
			"action", string(result.Action),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return result
}

// finalize 는 조치에 따라 정리된 텍스트나 차단 메시지를 채운다.
func (e *Engine) finalize(result risk.CheckResult, text string) risk.CheckResult {
	switch result.Action {
	case risk.ActionSanitize:
		result.SanitizedText = e.sanitizer.Sanitize(text, result.Threats)
	case risk.ActionBlock:
		result.Message = e.refusal
	}
	return result
}
