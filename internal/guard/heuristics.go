package guard

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/risk"
)

// defaultSpecialChars: 프롬프트 구조 위장에 쓰이는 기호 집합입니다.
// 일반 문장 부호(#, $, /, :, 괄호 등)는 포함하지 않습니다.
const defaultSpecialChars = "<>{}[]|\\`"

// specialCharRatio: 전체 룬 중 charset 에 속한 룬의 비율입니다.
func specialCharRatio(text string, charset string) (float64, int) {
	total := 0
	special := 0
	for _, r := range text {
		total++
		if strings.ContainsRune(charset, r) {
			special++
		}
	}
	if total == 0 {
		return 0, 0
	}
	return float64(special) / float64(total), total
}

// applyHeuristics: 구조적 이상 징후를 시그니처로 변환합니다.
// raw 는 길이 검사에, normalized 는 나머지 검사에 사용합니다.
func applyHeuristics(h heuristics, raw string, normalized string) []finding {
	var findings []finding

	if h.specialCharRatio > 0 {
		ratio, length := specialCharRatio(normalized, h.specialChars)
		if length >= h.specialCharMinLength && ratio > h.specialCharRatio {
			findings = append(findings, finding{
				signature: risk.ThreatSignature{
					Category: risk.CategoryOther,
					Excerpt:  fmt.Sprintf("special_char_ratio=%.2f", ratio),
					Source:   risk.SourcePattern,
					RuleID:   RuleSpecialCharRatio,
				},
				severity: h.specialCharSeverity,
			})
		}
	}

	if h.maxLength > 0 {
		if length := utf8.RuneCountInString(raw); length > h.maxLength {
			findings = append(findings, finding{
				signature: risk.ThreatSignature{
					Category: risk.CategoryOther,
					Excerpt:  fmt.Sprintf("length=%d", length),
					Source:   risk.SourcePattern,
					RuleID:   RuleExcessiveLength,
				},
				severity: h.lengthSeverity,
			})
		}
	}

	for _, keyword := range h.repeatedKeywords {
		count := strings.Count(normalized, keyword.Keyword)
		if count <= keyword.Limit {
			continue
		}
		findings = append(findings, finding{
			signature: risk.ThreatSignature{
				Category: risk.CategoryOther,
				Excerpt:  fmt.Sprintf("%s x%d", keyword.Keyword, count),
				Source:   risk.SourcePattern,
				RuleID:   RuleRepeatedKeyword,
			},
			severity: h.repeatedSeverity,
		})
	}

	return findings
}
