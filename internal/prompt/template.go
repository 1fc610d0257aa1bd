package prompt

import (
	"fmt"
	"strings"
)

// walkTemplate: {key} 자리표시자마다 onKey 를, 일반 텍스트마다 onText 를 호출합니다.
// "{{" 와 "}}" 는 리터럴 중괄호로 취급합니다.
func walkTemplate(template string, onText func(string), onKey func(string) error) error {
	start := 0
	flush := func(end int) {
		if end > start {
			onText(template[start:end])
		}
	}

	for i := 0; i < len(template); {
		c := template[i]
		if c != '{' && c != '}' {
			i++
			continue
		}
		if i+1 < len(template) && template[i+1] == c {
			flush(i)
			onText(string(c))
			i += 2
			start = i
			continue
		}
		if c == '}' {
			return fmt.Errorf("invalid template: unexpected '}'")
		}

		end := strings.IndexByte(template[i+1:], '}')
		if end < 0 {
			return fmt.Errorf("invalid template: missing '}'")
		}
		flush(i)
		if err := onKey(template[i+1 : i+1+end]); err != nil {
			return err
		}
		i += end + 2
		start = i
	}
	flush(len(template))
	return nil
}

// FormatTemplate: 템플릿 문자열의 {key} 를 값으로 치환합니다.
func FormatTemplate(template string, values map[string]string) (string, error) {
	var builder strings.Builder
	builder.Grow(len(template))

	err := walkTemplate(template,
		func(text string) { builder.WriteString(text) },
		func(key string) error {
			value, ok := values[key]
			if !ok {
				return fmt.Errorf("missing template value for %q", key)
			}
			builder.WriteString(value)
			return nil
		},
	)
	if err != nil {
		return "", err
	}
	return builder.String(), nil
}

// ValidateSystemStatic: 시스템 프롬프트에 템플릿 변수가 없는지 검사합니다.
func ValidateSystemStatic(name string, system string) error {
	var keyErr error
	err := walkTemplate(system,
		func(string) {},
		func(key string) error {
			keyErr = fmt.Errorf("%s: system prompt must not contain template variables %q", name, key)
			return keyErr
		},
	)
	switch {
	case err == nil:
		return nil
	case keyErr != nil:
		return keyErr
	default:
		return fmt.Errorf("%s: invalid system prompt template syntax", name)
	}
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"\"", "&quot;",
	"'", "&apos;",
)

// EscapeXML: XML 텍스트로 안전하게 이스케이프합니다.
func EscapeXML(value string) string {
	return xmlEscaper.Replace(value)
}

// WrapXML: 값을 이스케이프한 뒤 XML 태그로 감쌉니다.
// 신뢰할 수 없는 입력이 태그를 닫고 빠져나갈 수 없습니다.
func WrapXML(tag string, value string) string {
	return "<" + tag + ">" + EscapeXML(value) + "</" + tag + ">"
}
