package prompt

import (
	"fmt"
	"io/fs"
	"strings"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/risk"
)

// Bundle: 한 컴포넌트가 사용하는 프롬프트 모음입니다. 로드 후 변경하지 않습니다.
type Bundle struct {
	label   string
	prompts map[string]map[string]string
}

// LoadBundle: fs 내 dir 의 YAML 프롬프트를 로드합니다.
// 누락/파싱 실패는 시작 시 치명적이므로 risk.ErrConfiguration 으로 감쌉니다.
func LoadBundle(fsys fs.FS, dir string, label string) (*Bundle, error) {
	loaded, err := LoadYAMLDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s prompts: %v", risk.ErrConfiguration, label, err)
	}
	return &Bundle{label: label, prompts: loaded}, nil
}

// Prompt: 이름으로 프롬프트 맵을 조회합니다.
func (b *Bundle) Prompt(name string) (map[string]string, error) {
	if b == nil || b.prompts == nil {
		return nil, fmt.Errorf("prompts not initialized")
	}
	mapping, ok := b.prompts[name]
	if !ok {
		return nil, fmt.Errorf("%s prompt not found: %s", b.label, name)
	}
	return mapping, nil
}

// Fields: 프롬프트 name 에서 keys 를 모두 조회합니다. 빈 값도 누락으로 봅니다.
func (b *Bundle) Fields(name string, keys ...string) (map[string]string, error) {
	mapping, err := b.Prompt(name)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]string, len(keys))
	var missing []string
	for _, key := range keys {
		value := mapping[key]
		if strings.TrimSpace(value) == "" {
			missing = append(missing, key)
			continue
		}
		fields[key] = value
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s prompt %s missing fields: %s", risk.ErrConfiguration, b.label, name, strings.Join(missing, ", "))
	}
	return fields, nil
}
