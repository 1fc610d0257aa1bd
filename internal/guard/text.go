package guard

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/forPelevin/gomoji"
	"github.com/mtibben/confusables"
	"github.com/ymw0407/jamo/pkg/jamo"
	"golang.org/x/text/unicode/norm"
)

// jamoTable: 한글 자모 범위를 통합한 테이블
var jamoTable = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x1100, Hi: 0x11FF, Stride: 1}, // Hangul Jamo
		{Lo: 0x3130, Hi: 0x318F, Stride: 1}, // Hangul Compatibility Jamo
		{Lo: 0xA960, Hi: 0xA97F, Stride: 1}, // Hangul Jamo Extended-A
		{Lo: 0xD7B0, Hi: 0xD7FF, Stride: 1}, // Hangul Jamo Extended-B
	},
}

// hangulTable: 완성형 한글 범위
var hangulTable = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0xAC00, Hi: 0xD7A3, Stride: 1}, // Hangul Syllables (가-힣)
	},
}

const (
	minBase64Length = 20
	maxExcerptRunes = 120
)

// Normalize: 자모 조합 후 패턴 비교용 정규화를 적용합니다.
// 문맥 판정 캐시 키처럼 매처 외부에서 같은 정규화가 필요할 때 사용합니다.
func Normalize(text string) string {
	return normalizeText(composeJamoSequences(text))
}

// normalizeText: 패턴 비교용 정규화 텍스트를 만듭니다.
// NFKC → 소문자 → 비ASCII 동형 문자 치환 → 이모지/제어 문자 제거 순서입니다.
// ASCII 문자는 skeleton 변환 대상이 아닙니다 (skeleton 은 "m" 을 "rn" 으로 바꿉니다).
func normalizeText(text string) string {
	if isASCIIOnly(text) {
		return strings.ToLower(stripControlChars(text))
	}

	// NFD 입력 우회 방지 + 전각 문자 정리
	normalized := norm.NFKC.String(norm.NFC.String(text))
	normalized = strings.ToLower(normalized)
	normalized = foldConfusables(normalized)
	normalized = gomoji.RemoveEmojis(normalized)
	return strings.ToLower(stripControlChars(normalized))
}

// foldConfusables: 한글을 보존하면서 비ASCII 문자를 ASCII 원형으로 치환합니다.
// 원형이 ASCII 가 아니면 원래 문자를 유지합니다.
func foldConfusables(text string) string {
	var builder strings.Builder
	builder.Grow(len(text))

	for _, r := range text {
		if r <= unicode.MaxASCII || unicode.Is(hangulTable, r) || unicode.Is(jamoTable, r) {
			builder.WriteRune(r)
			continue
		}
		skeleton := confusables.Skeleton(string(r))
		if skeleton != "" && isASCIIOnly(skeleton) {
			builder.WriteString(skeleton)
			continue
		}
		builder.WriteRune(r)
	}
	return builder.String()
}

// isASCIIOnly: 문자열이 ASCII만 포함하는지 확인 (Zero Allocation)
func isASCIIOnly(text string) bool {
	for i := 0; i < len(text); i++ {
		if text[i] > unicode.MaxASCII {
			return false
		}
	}
	return true
}

// stripControlChars: 제어/서식 문자를 제거합니다. 줄바꿈과 탭은 공백으로 바꿉니다.
func stripControlChars(text string) string {
	hasControl := false
	for _, r := range text {
		if unicode.Is(unicode.Cf, r) || unicode.Is(unicode.Cc, r) {
			hasControl = true
			break
		}
	}
	if !hasControl {
		return text
	}

	var builder strings.Builder
	builder.Grow(len(text))
	for _, r := range text {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			builder.WriteByte(' ')
		case unicode.Is(unicode.Cf, r) || unicode.Is(unicode.Cc, r):
			continue
		default:
			builder.WriteRune(r)
		}
	}
	return builder.String()
}

// composeJamoSequences: 혼합 문자열에서 연속 자모 시퀀스를 완성형으로 조합합니다.
// 예: "시스템 ㅍㅡㄹㅗㅁㅍㅡㅌㅡ" → "시스템 프롬프트"
func composeJamoSequences(text string) string {
	hasJamo := false
	for _, r := range text {
		if unicode.Is(jamoTable, r) {
			hasJamo = true
			break
		}
	}
	if !hasJamo {
		return text
	}

	var result strings.Builder
	var jamoBuffer strings.Builder
	result.Grow(len(text))

	flushJamo := func() {
		if jamoBuffer.Len() == 0 {
			return
		}
		jamoStr := jamoBuffer.String()
		composed, err := jamo.ComposeHangeul(jamoStr)
		if err == nil && len(composed) > 0 {
			result.WriteString(composed[0])
		} else {
			result.WriteString(jamoStr)
		}
		jamoBuffer.Reset()
	}

	for _, r := range text {
		if unicode.Is(jamoTable, r) {
			jamoBuffer.WriteRune(r)
		} else {
			flushJamo()
			result.WriteRune(r)
		}
	}
	flushJamo()

	return result.String()
}

// isBase64Char: Base64 문자셋 검사 (A-Za-z0-9+/-_)
func isBase64Char(c byte) bool {
	return (c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') ||
		c == '+' || c == '/' || c == '-' || c == '_'
}

// extractBase64Payloads: 원문에서 읽을 수 있는 텍스트로 디코딩되는 Base64 구간을 최대 limit 개 추출합니다.
// 정규화 전 원문에 적용해야 합니다 (소문자 변환이 인코딩을 깨뜨림).
func extractBase64Payloads(input string, limit int) []string {
	if limit <= 0 {
		return nil
	}

	var payloads []string
	n := len(input)
	i := 0
	for i < n && len(payloads) < limit {
		if !isBase64Char(input[i]) {
			i++
			continue
		}

		start := i
		for i < n && isBase64Char(input[i]) {
			i++
		}
		paddingCount := 0
		for i < n && input[i] == '=' && paddingCount < 2 {
			i++
			paddingCount++
		}

		if i-start < minBase64Length {
			continue
		}

		decoded, err := tryDecodeBase64(input[start:i])
		if err != nil {
			continue
		}
		if isReadableText(decoded) {
			payloads = append(payloads, string(decoded))
		}
	}
	return payloads
}

// tryDecodeBase64: URL-Safe 문자 치환 및 패딩 보정 후 디코딩
func tryDecodeBase64(s string) ([]byte, error) {
	trimmed := strings.TrimRight(s, "=")
	n := len(trimmed)
	if n == 0 {
		return nil, fmt.Errorf("base64 decode: empty input")
	}

	padNeeded := (4 - n%4) % 4
	buf := make([]byte, n+padNeeded)
	for i := 0; i < n; i++ {
		switch trimmed[i] {
		case '-':
			buf[i] = '+'
		case '_':
			buf[i] = '/'
		default:
			buf[i] = trimmed[i]
		}
	}
	for i := 0; i < padNeeded; i++ {
		buf[n+i] = '='
	}

	decoded := make([]byte, base64.StdEncoding.DecodedLen(len(buf)))
	written, err := base64.StdEncoding.Decode(decoded, buf)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}
	return decoded[:written], nil
}

// isReadableText: UTF-8 유효성 + 출력 가능 문자 비율 90% 초과 여부
func isReadableText(data []byte) bool {
	n := len(data)
	if n == 0 {
		return false
	}

	printableCount := 0
	totalChars := 0
	i := 0
	for i < n {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			return false
		}
		i += size
		totalChars++
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			printableCount++
		}
	}

	return totalChars > 0 && printableCount*100 > totalChars*90
}

// truncateRunes: 발췌문 길이를 룬 단위로 제한합니다.
func truncateRunes(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[:limit])
}
