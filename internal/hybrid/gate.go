// Package hybrid 는 패턴 계층과 문맥 분류기를 결합해 입력 위험도를 판정한다.
package hybrid

import (
	"fmt"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/risk"
)

// GateAction 은 패턴 결과 이후의 진행 방향이다.
type GateAction int

const (
	// FinalizeSafe: 문맥 분류 없이 패턴 결과로 확정 (차단하지 않음)
	FinalizeSafe GateAction = iota
	// FinalizeBlock: CRITICAL 즉시 차단
	FinalizeBlock
	// Escalate: 문맥 분류기 호출
	Escalate
)

func (a GateAction) String() string {
	switch a {
	case FinalizeSafe:
		return "finalize_safe"
	case FinalizeBlock:
		return "finalize_block"
	case Escalate:
		return "escalate"
	default:
		return fmt.Sprintf("gate_action(%d)", int(a))
	}
}

// Decide 는 패턴 위험도와 임계값으로 진행 방향을 정한다.
func Decide(patternRisk risk.Level, cfg risk.ThresholdConfig) GateAction {
	return decide(patternRisk, cfg, false)
}

// decide 규칙 (순서대로):
//  1. CRITICAL 은 항상 차단, 문맥 분류기로 넘기지 않는다.
//  2. 문맥 계층이 꺼져 있으면 확정.
//  3. force 면 나머지는 모두 escalate.
//  4. 임계값 미만이면 확정, 이상이면 escalate.
func decide(patternRisk risk.Level, cfg risk.ThresholdConfig, force bool) GateAction {
	switch {
	case patternRisk >= risk.LevelCritical:
		return FinalizeBlock
	case !cfg.UseContextualLayer:
		return FinalizeSafe
	case force:
		return Escalate
	case patternRisk < cfg.EscalationThreshold:
		return FinalizeSafe
	default:
		return Escalate
	}
}
