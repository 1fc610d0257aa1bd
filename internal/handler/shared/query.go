package shared

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/httperror"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/risk"
)

// QueryPositiveInt 는 양의 정수 쿼리 파라미터를 읽는다. 비어 있으면 fallback 을 반환한다.
// 잘못된 값이면 오류 응답을 쓰고 false 를 반환한다.
func QueryPositiveInt(c *gin.Context, name string, fallback int) (int, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback, true
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		WriteError(c, httperror.NewInvalidInput(name+" must be a positive integer"))
		return 0, false
	}
	return parsed, true
}

// QueryRiskLevel 는 위험도 쿼리 파라미터를 읽는다 (대소문자 무시).
func QueryRiskLevel(c *gin.Context, name string, fallback risk.Level) (risk.Level, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback, true
	}
	level, err := risk.ParseLevel(raw)
	if err != nil {
		WriteError(c, httperror.NewInvalidInput(name+" must be one of safe, low, medium, high, critical"))
		return fallback, false
	}
	return level, true
}

// TrimRunes 는 문자열을 최대 maxRunes 개의 룬으로 자른다.
func TrimRunes(value string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(value)
	if len(runes) <= maxRunes {
		return value
	}
	return string(runes[:maxRunes])
}
