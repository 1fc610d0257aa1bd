package risk

import "errors"

var (
	// ErrConfiguration 는 시작 시점의 설정 오류다. 프로세스를 종료시킨다.
	ErrConfiguration = errors.New("configuration error")
	// ErrClassifierUnavailable 는 문맥 분류기 호출 실패다.
	ErrClassifierUnavailable = errors.New("classifier unavailable")
	// ErrClassifierParse 는 문맥 분류기 응답 파싱 실패다.
	ErrClassifierParse = errors.New("classifier parse error")
	// ErrLogWrite 는 보안 이벤트 기록 실패다.
	ErrLogWrite = errors.New("security log write error")
)
