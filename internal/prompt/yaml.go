package prompt

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadYAMLMapping 는 프롬프트 YAML 파일 하나를 문자열 맵으로 로드한다.
// system 필드는 정적이어야 한다.
func LoadYAMLMapping(fsys fs.FS, filePath string) (map[string]string, error) {
	data, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return nil, fmt.Errorf("read prompt file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse prompt yaml %s: %w", filePath, err)
	}

	mapping := make(map[string]string, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case nil:
			mapping[key] = ""
		case string:
			mapping[key] = v
		default:
			mapping[key] = fmt.Sprint(v)
		}
	}

	if system := mapping["system"]; strings.TrimSpace(system) != "" {
		if err := ValidateSystemStatic(filePath, system); err != nil {
			return nil, err
		}
	}
	return mapping, nil
}

// LoadYAMLDir 는 디렉터리의 *.yml, *.yaml 을 파일 이름(확장자 제외)별로 로드한다.
func LoadYAMLDir(fsys fs.FS, dir string) (map[string]map[string]string, error) {
	var paths []string
	for _, pattern := range []string{"*.yml", "*.yaml"} {
		matches, err := fs.Glob(fsys, path.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("glob prompt dir: %w", err)
		}
		paths = append(paths, matches...)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no prompt files in %s", dir)
	}
	sort.Strings(paths)

	prompts := make(map[string]map[string]string, len(paths))
	for _, filePath := range paths {
		name := strings.TrimSuffix(path.Base(filePath), path.Ext(filePath))
		if _, dup := prompts[name]; dup {
			return nil, fmt.Errorf("duplicate prompt name %q in %s", name, dir)
		}
		mapping, err := LoadYAMLMapping(fsys, filePath)
		if err != nil {
			return nil, err
		}
		prompts[name] = mapping
	}
	return prompts, nil
}
