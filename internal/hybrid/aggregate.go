package hybrid

import (
	"unicode/utf8"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/classifier"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/guard"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/risk"
)

const maxExcerptRunes = 120

// Combine 은 패턴 결과와 (있다면) 문맥 판정을 하나의 CheckResult 로 합친다.
// 정리된 텍스트와 차단 메시지는 Engine 이 채운다.
//
// 문맥 판정이 있으면 max(판정 위험도, 패턴 위험도) 이며,
// 판정이 SAFE 이고 패턴이 CRITICAL 미만이면 SAFE 로 내린다.
func Combine(pattern guard.Match, decision GateAction, contextual *classifier.Classification) risk.CheckResult {
	threats := make([]risk.ThreatSignature, 0, len(pattern.Threats))
	threats = append(threats, pattern.Threats...)

	result := risk.CheckResult{
		Level:  pattern.Risk,
		Method: risk.MethodPatternOnly,
	}

	if contextual != nil && decision == Escalate {
		verdictLevel := contextual.Level()
		result.Level = risk.MaxLevel(verdictLevel, pattern.Risk)
		if contextual.Verdict == risk.VerdictSafe && pattern.Risk < risk.LevelCritical {
			result.Level = risk.LevelSafe
		}

		result.Method = risk.MethodPatternPlusContextual
		if contextual.Fallback {
			result.Method = risk.MethodPatternPlusContextualFallback
		}
		result.Reasoning = contextual.Reasoning
		threats = append(threats, contextualThreats(contextual.Threats)...)
	}

	result.Threats = threats
	result.Action = risk.ActionFor(result.Level)
	if decision == FinalizeSafe && result.Action == risk.ActionBlock {
		result.Action = risk.ActionSanitize
	}
	return result
}

func contextualThreats(labels []string) []risk.ThreatSignature {
	if len(labels) == 0 {
		return nil
	}
	signatures := make([]risk.ThreatSignature, 0, len(labels))
	for _, label := range labels {
		category, _ := risk.ParseCategory(label)
		signatures = append(signatures, risk.ThreatSignature{
			Category: category,
			Excerpt:  truncateRunes(label, maxExcerptRunes),
			Source:   risk.SourceContextual,
		})
	}
	return signatures
}

func truncateRunes(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	return string([]rune(value)[:limit])
}
