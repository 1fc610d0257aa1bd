// Package classifier 는 패턴 계층이 확정하지 못한 입력을 LLM 으로 판정하는 문맥 분류기다.
package classifier

import (
	"context"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/risk"
)

// Classification 은 문맥 분류 결과다. Fallback 이면 Cause 에 실패 원인이 담긴다.
type Classification struct {
	Verdict    risk.Verdict `json:"verdict"`
	Reasoning  string       `json:"reasoning"`
	Confidence float64      `json:"confidence"`
	Threats    []string     `json:"threats,omitempty"`
	Fallback   bool         `json:"fallback"`
	Cause      error        `json:"-"`
	Model      string       `json:"model,omitempty"`
}

// Level 은 판정을 위험도로 변환한다.
func (c Classification) Level() risk.Level {
	return c.Verdict.Level()
}

// Classifier 는 문맥 분류기 인터페이스다. 실패는 fallback 판정으로 흡수하고 에러를 반환하지 않는다.
type Classifier interface {
	Classify(ctx context.Context, text string, projectID string) Classification
}

// GeminiClassifier가 Classifier 인터페이스를 구현하는지 컴파일 타임 확인
var _ Classifier = (*GeminiClassifier)(nil)
