package gemini

import "context"

// LLM 은 문맥 분류기가 사용하는 LLM 클라이언트 인터페이스다.
// 테스트에서 mock 구현을 주입할 수 있도록 한다.
type LLM interface {
	// Structured JSON 스키마 기반 응답 (응답 맵, 사용 모델)
	Structured(ctx context.Context, req Request, schema map[string]any) (map[string]any, string, error)
}

// Client가 LLM 인터페이스를 구현하는지 컴파일 타임 확인
var _ LLM = (*Client)(nil)
