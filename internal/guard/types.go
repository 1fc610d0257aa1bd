package guard

import (
	"strings"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/risk"
)

// 구조 검사 규칙 ID. 이 시그니처의 발췌는 입력 구간이 아니라 측정값입니다.
const (
	RuleSpecialCharRatio = "special_char_ratio"
	RuleExcessiveLength  = "excessive_length"
	RuleRepeatedKeyword  = "repeated_keyword"
	RuleBase64Payload    = "base64_payload"
)

// Base64ExcerptPrefix 는 디코딩된 Base64 구간에서 나온 발췌의 접두사다.
const Base64ExcerptPrefix = "base64:"

// IsTextSpan: 발췌가 정규화된 입력의 실제 구간인지 반환합니다.
// 측정값 시그니처와 Base64 디코딩 결과는 원문에 나타나지 않으므로 false 입니다.
func IsTextSpan(signature risk.ThreatSignature) bool {
	switch signature.RuleID {
	case RuleSpecialCharRatio, RuleExcessiveLength, RuleRepeatedKeyword, RuleBase64Payload:
		return false
	}
	return !strings.HasPrefix(signature.Excerpt, Base64ExcerptPrefix)
}

// Match: 패턴 검사 결과입니다. Risk 는 시그니처 심각도의 최댓값입니다.
type Match struct {
	Risk    risk.Level             `json:"risk_level"`
	Threats []risk.ThreatSignature `json:"threats"`
}

// IsSafe: 탐지된 위협이 없는지 반환합니다.
func (m Match) IsSafe() bool {
	return m.Risk == risk.LevelSafe && len(m.Threats) == 0
}

func (m Match) clone() Match {
	if m.Threats == nil {
		return Match{Risk: m.Risk}
	}
	threats := make([]risk.ThreatSignature, len(m.Threats))
	copy(threats, m.Threats)
	return Match{Risk: m.Risk, Threats: threats}
}

type finding struct {
	signature risk.ThreatSignature
	severity  risk.Level
}
