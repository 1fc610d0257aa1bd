package guard

// PatternMatcher 는 결정적 패턴 검사 인터페이스다.
// 테스트에서 mock 구현을 주입할 수 있도록 한다.
type PatternMatcher interface {
	// Match 입력 문자열 검사 (네트워크 호출 없음)
	Match(text string) Match
}

// Matcher가 PatternMatcher 인터페이스를 구현하는지 컴파일 타임 확인
var _ PatternMatcher = (*Matcher)(nil)
