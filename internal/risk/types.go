package risk

import (
	"fmt"
	"strings"
)

// Level: 입력 위험도입니다. 정수 순서가 곧 심각도 순서입니다.
type Level int

const (
	LevelSafe Level = iota
	LevelLow
	LevelMedium
	LevelHigh
	LevelCritical
)

var levelNames = [...]string{"safe", "low", "medium", "high", "critical"}

// String: 소문자 이름을 반환합니다.
func (l Level) String() string {
	if l < LevelSafe || l > LevelCritical {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelNames[l]
}

// Valid: 정의된 위험도인지 확인합니다.
func (l Level) Valid() bool {
	return l >= LevelSafe && l <= LevelCritical
}

// AtLeast: l >= other 여부를 반환합니다.
func (l Level) AtLeast(other Level) bool {
	return l >= other
}

// IsSafe: SAFE 또는 LOW 이면 true 입니다.
func (l Level) IsSafe() bool {
	return l <= LevelLow
}

// MaxLevel: 두 위험도 중 높은 쪽을 반환합니다.
func MaxLevel(a Level, b Level) Level {
	if a >= b {
		return a
	}
	return b
}

// ParseLevel: 이름을 위험도로 변환합니다 (대소문자 무시).
func ParseLevel(value string) (Level, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for i, name := range levelNames {
		if name == normalized {
			return Level(i), nil
		}
	}
	return LevelSafe, fmt.Errorf("unknown risk level %q", value)
}

// MarshalText: JSON/YAML 직렬화용 텍스트를 반환합니다.
func (l Level) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid risk level %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText: 텍스트를 위험도로 파싱합니다.
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Category: 위협 분류입니다.
type Category string

const (
	CategoryInstructionOverride    Category = "instruction_override"
	CategoryRoleManipulation       Category = "role_manipulation"
	CategorySystemPromptExtraction Category = "system_prompt_extraction"
	CategorySpecialTokenInjection  Category = "special_token_injection"
	CategoryCodeExecution          Category = "code_execution"
	CategoryDataExfiltration       Category = "data_exfiltration"
	CategoryOther                  Category = "other"
)

// Categories: 정의된 전체 분류 목록입니다.
var Categories = []Category{
	CategoryInstructionOverride,
	CategoryRoleManipulation,
	CategorySystemPromptExtraction,
	CategorySpecialTokenInjection,
	CategoryCodeExecution,
	CategoryDataExfiltration,
	CategoryOther,
}

// ParseCategory: 이름을 분류로 변환합니다. 알 수 없는 이름이면 false 를 반환합니다.
func ParseCategory(value string) (Category, bool) {
	normalized := Category(strings.ToLower(strings.TrimSpace(value)))
	for _, category := range Categories {
		if category == normalized {
			return category, true
		}
	}
	return CategoryOther, false
}

// Source: 위협 시그니처를 만든 계층입니다.
type Source string

const (
	SourcePattern    Source = "pattern"
	SourceContextual Source = "contextual"
)

// ThreatSignature: 탐지된 위협 하나입니다.
type ThreatSignature struct {
	Category Category `json:"category"`
	Excerpt  string   `json:"excerpt"`
	Source   Source   `json:"source"`
	RuleID   string   `json:"rule_id,omitempty"`
}

// Method: 최종 판정에 사용된 검사 경로입니다.
type Method string

const (
	MethodPatternOnly                   Method = "pattern_only"
	MethodPatternPlusContextual         Method = "pattern_plus_contextual"
	MethodPatternPlusContextualFallback Method = "pattern_plus_contextual_fallback"
)

// Action: 호출자가 수행할 조치입니다.
type Action string

const (
	ActionAllow    Action = "allow"
	ActionSanitize Action = "sanitize"
	ActionBlock    Action = "block"
)

// ActionFor: 위험도별 기본 조치를 반환합니다.
func ActionFor(level Level) Action {
	switch {
	case level >= LevelHigh:
		return ActionBlock
	case level == LevelMedium:
		return ActionSanitize
	default:
		return ActionAllow
	}
}

// CheckResult: 입력 검사 최종 결과입니다. 생성 후 수정하지 않습니다.
type CheckResult struct {
	Level         Level             `json:"risk_level"`
	Action        Action            `json:"action"`
	Threats       []ThreatSignature `json:"threats"`
	Method        Method            `json:"check_method"`
	SanitizedText string            `json:"sanitized_text,omitempty"`
	Reasoning     string            `json:"reasoning,omitempty"`
	Message       string            `json:"message,omitempty"`
}

// IsSafe: 위험도가 SAFE 또는 LOW 인지 반환합니다.
func (r CheckResult) IsSafe() bool {
	return r.Level.IsSafe()
}

// Categories: 시그니처 분류를 처음 등장한 순서대로 중복 없이 반환합니다.
func (r CheckResult) Categories() []Category {
	seen := make(map[Category]struct{}, len(r.Threats))
	categories := make([]Category, 0, len(r.Threats))
	for _, threat := range r.Threats {
		if _, ok := seen[threat.Category]; ok {
			continue
		}
		seen[threat.Category] = struct{}{}
		categories = append(categories, threat.Category)
	}
	return categories
}

// Verdict: 문맥 분류기의 3단계 판정입니다.
type Verdict string

const (
	VerdictSafe       Verdict = "SAFE"
	VerdictSuspicious Verdict = "SUSPICIOUS"
	VerdictUnsafe     Verdict = "UNSAFE"
)

// ParseVerdict: 판정 토큰을 파싱합니다 (대소문자 무시).
func ParseVerdict(value string) (Verdict, bool) {
	switch Verdict(strings.ToUpper(strings.TrimSpace(value))) {
	case VerdictSafe:
		return VerdictSafe, true
	case VerdictSuspicious:
		return VerdictSuspicious, true
	case VerdictUnsafe:
		return VerdictUnsafe, true
	default:
		return "", false
	}
}

// Level: 판정을 위험도로 매핑합니다.
func (v Verdict) Level() Level {
	switch v {
	case VerdictUnsafe:
		return LevelHigh
	case VerdictSuspicious:
		return LevelMedium
	default:
		return LevelSafe
	}
}

// ThresholdConfig: 문맥 계층 호출 조건입니다. 시작 시 한 번 만들어 값으로 전달합니다.
type ThresholdConfig struct {
	UseContextualLayer  bool
	EscalationThreshold Level
}

// ParseThreshold: low/medium/high 만 허용합니다.
func ParseThreshold(value string) (Level, error) {
	level, err := ParseLevel(value)
	if err != nil {
		return LevelSafe, fmt.Errorf("%w: escalation threshold: %v", ErrConfiguration, err)
	}
	switch level {
	case LevelLow, LevelMedium, LevelHigh:
		return level, nil
	default:
		return LevelSafe, fmt.Errorf("%w: escalation threshold must be low, medium or high: %q", ErrConfiguration, value)
	}
}
