package hybrid

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/guard"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/risk"
)

// Sanitizer 는 sanitize 판정 입력을 정리하는 전략이다.
type Sanitizer interface {
	Name() string
	Sanitize(text string, threats []risk.ThreatSignature) string
}

// 전략 이름
const (
	SanitizerEscape = "escape"
	SanitizerStrip  = "strip"
	SanitizerChain  = "chain"
)

// NewSanitizer 는 이름으로 전략을 고른다. 알 수 없는 이름은 설정 오류다.
func NewSanitizer(name string) (Sanitizer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case SanitizerEscape, "":
		return EscapeSanitizer{}, nil
	case SanitizerStrip:
		return StripSanitizer{}, nil
	case SanitizerChain:
		return ChainSanitizer{steps: []Sanitizer{StripSanitizer{}, EscapeSanitizer{}}}, nil
	default:
		return nil, fmt.Errorf("%w: unknown sanitizer %q", risk.ErrConfiguration, name)
	}
}

var (
	specialTokenReplacer = strings.NewReplacer(
		"<|im_start|>", "[IM_START]",
		"<|im_end|>", "[IM_END]",
		"<|endoftext|>", "[EOT]",
	)
	systemTagPattern    = regexp.MustCompile(`</?system>`)
	assistantTagPattern = regexp.MustCompile(`</?assistant>`)
	userTagPattern      = regexp.MustCompile(`</?user>`)
	specialRunPattern   = regexp.MustCompile("[<>{}\\[\\]|\\\\`]{4,}")
)

// EscapeSanitizer 는 특수 토큰과 역할 태그를 표시 문자열로 바꾸고,
// 4자 이상 특수문자 연속을 마지막 문자 3개로 줄이며, \n \r \t 외 제어 문자를 제거한다.
type EscapeSanitizer struct{}

func (EscapeSanitizer) Name() string { return SanitizerEscape }

func (EscapeSanitizer) Sanitize(text string, _ []risk.ThreatSignature) string {
	sanitized := specialTokenReplacer.Replace(text)
	sanitized = systemTagPattern.ReplaceAllString(sanitized, "[SYSTEM_TAG]")
	sanitized = assistantTagPattern.ReplaceAllString(sanitized, "[ASSISTANT_TAG]")
	sanitized = userTagPattern.ReplaceAllString(sanitized, "[USER_TAG]")
	sanitized = specialRunPattern.ReplaceAllStringFunc(sanitized, func(run string) string {
		return strings.Repeat(run[len(run)-1:], 3)
	})
	return stripControl(sanitized)
}

func stripControl(text string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, text)
}

// StripSanitizer 는 패턴 계층이 찾은 발췌 구간을 대소문자 무시로 제거한다.
// 발췌에 이어지는 글자는 같은 단어로 보고 함께 지운다.
// 발췌는 정규화(NFKC, 소문자, 동형 문자 치환) 결과에서 나오므로 동형 문자로 위장한 원문 구간은 남을 수 있다.
// 측정값 시그니처와 Base64 디코딩 발췌는 원문 구간이 아니므로 건너뛴다.
type StripSanitizer struct{}

func (StripSanitizer) Name() string { return SanitizerStrip }

func (StripSanitizer) Sanitize(text string, threats []risk.ThreatSignature) string {
	excerpts := make([]string, 0, len(threats))
	seen := make(map[string]struct{}, len(threats))
	for _, threat := range threats {
		excerpt := strings.TrimSpace(threat.Excerpt)
		if threat.Source != risk.SourcePattern || excerpt == "" || !guard.IsTextSpan(threat) {
			continue
		}
		if _, ok := seen[excerpt]; ok {
			continue
		}
		seen[excerpt] = struct{}{}
		excerpts = append(excerpts, excerpt)
	}
	if len(excerpts) == 0 {
		return text
	}

	// 긴 발췌부터 제거해 부분 문자열이 먼저 지워지지 않게 한다
	sort.SliceStable(excerpts, func(i, j int) bool { return len(excerpts[i]) > len(excerpts[j]) })
	quoted := make([]string, len(excerpts))
	for i, excerpt := range excerpts {
		quoted[i] = regexp.QuoteMeta(excerpt)
	}
	pattern, err := regexp.Compile("(?i)(?:" + strings.Join(quoted, "|") + `)\pL*`)
	if err != nil {
		return text
	}
	return pattern.ReplaceAllString(text, "")
}

// ChainSanitizer 는 전략을 순서대로 적용한다.
type ChainSanitizer struct {
	steps []Sanitizer
}

func (ChainSanitizer) Name() string { return SanitizerChain }

func (c ChainSanitizer) Sanitize(text string, threats []risk.ThreatSignature) string {
	for _, step := range c.steps {
		text = step.Sanitize(text, threats)
	}
	return text
}
