package prompt

import (
	"embed"
	"strings"
	"sync"
)

//go:embed prompts/*.yml
var embeddedPrompts embed.FS

const userInputTag = "user_input"

// SafePromptBuilder: 신뢰 구간(시스템 지시)과 비신뢰 구간(사용자 입력)을 분리한 프롬프트를 만듭니다.
type SafePromptBuilder struct {
	preface  string
	template string
}

// NewSafePromptBuilder: 내장 safe_prompt.yml 을 로드합니다.
func NewSafePromptBuilder() (*SafePromptBuilder, error) {
	bundle, err := LoadBundle(embeddedPrompts, "prompts", "safe")
	if err != nil {
		return nil, err
	}
	fields, err := bundle.Fields("safe_prompt", "preface", "template")
	if err != nil {
		return nil, err
	}
	return &SafePromptBuilder{
		preface:  strings.TrimSpace(fields["preface"]),
		template: fields["template"],
	}, nil
}

// Build: 사용자 입력은 항상 XML 이스케이프 후 <user_input> 으로 감쌉니다.
func (b *SafePromptBuilder) Build(systemInstructions string, userInput string, includePreface bool) (string, error) {
	preface := ""
	if includePreface {
		preface = b.preface + "\n"
	}
	return FormatTemplate(b.template, map[string]string{
		"system_instructions": strings.TrimSpace(systemInstructions),
		"safety_preface":      preface,
		"user_input":          WrapXML(userInputTag, userInput),
	})
}

var defaultSafePromptBuilder = sync.OnceValues(NewSafePromptBuilder)

// BuildSafePrompt: 기본 빌더로 안전 프롬프트를 만듭니다.
func BuildSafePrompt(systemInstructions string, userInput string, includePreface bool) (string, error) {
	builder, err := defaultSafePromptBuilder()
	if err != nil {
		return "", err
	}
	return builder.Build(systemInstructions, userInput, includePreface)
}
