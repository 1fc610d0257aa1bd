package guard

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/cloudflare/ahocorasick"
	"gopkg.in/yaml.v3"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/risk"
)

//go:embed rulepacks/*.yml
var embeddedRulepacks embed.FS

const (
	maxMatchesPerRule = 8
	defaultRatioMin   = 20
)

type rawRulepack struct {
	Version    int               `yaml:"version"`
	Severities map[string]string `yaml:"severities"`
	Rules      []rawRule         `yaml:"rules"`
	Heuristics *rawHeuristics    `yaml:"heuristics"`
}

type rawRule struct {
	ID       string   `yaml:"id"`
	Category string   `yaml:"category"`
	Type     string   `yaml:"type"`
	Pattern  string   `yaml:"pattern"`
	Phrases  []string `yaml:"phrases"`
	Severity string   `yaml:"severity"`
}

type rawHeuristics struct {
	SpecialCharRatio     float64        `yaml:"special_char_ratio"`
	SpecialChars         string         `yaml:"special_chars"`
	SpecialCharMinLength int            `yaml:"special_char_min_length"`
	SpecialCharSeverity  string         `yaml:"special_char_severity"`
	MaxLength            int            `yaml:"max_length"`
	LengthSeverity       string         `yaml:"length_severity"`
	RepeatedKeywords     map[string]int `yaml:"repeated_keywords"`
	RepeatedSeverity     string         `yaml:"repeated_severity"`
	Base64Payloads       bool           `yaml:"base64_payloads"`
	Base64MaxPayloads    int            `yaml:"base64_max_payloads"`
	Base64Severity       string         `yaml:"base64_severity"`
}

type regexRule struct {
	ID       string
	Category risk.Category
	Severity risk.Level
	Pattern  *regexp.Regexp
}

type phraseRule struct {
	Phrase   string
	ID       string
	Category risk.Category
	Severity risk.Level
}

type keywordLimit struct {
	Keyword string
	Limit   int
}

type heuristics struct {
	specialCharRatio     float64
	specialChars         string
	specialCharMinLength int
	specialCharSeverity  risk.Level
	maxLength            int
	lengthSeverity       risk.Level
	repeatedKeywords     []keywordLimit
	repeatedSeverity     risk.Level
	base64Payloads       bool
	base64MaxPayloads    int
	base64Severity       risk.Level
}

// ruleTable: 시작 시 한 번 컴파일되는 불변 패턴 테이블입니다.
type ruleTable struct {
	regexRules    []regexRule
	phraseMatcher *ahocorasick.Matcher
	phrases       []phraseRule
	heuristics    heuristics
}

func (t *ruleTable) ruleCount() int {
	if t == nil {
		return 0
	}
	return len(t.regexRules) + len(t.phrases)
}

// loadRuleTable: dir 이 비어 있으면 내장 테이블을, 아니면 dir 의 *.yml/*.yaml 을 병합해 컴파일합니다.
// 모든 오류는 risk.ErrConfiguration 을 감쌉니다.
func loadRuleTable(dir string) (*ruleTable, []string, error) {
	var (
		fsys  fs.FS
		paths []string
		err   error
	)

	if strings.TrimSpace(dir) == "" {
		fsys = embeddedRulepacks
		paths, err = fs.Glob(embeddedRulepacks, "rulepacks/*.yml")
		if err != nil {
			return nil, nil, fmt.Errorf("%w: list embedded rulepacks: %v", risk.ErrConfiguration, err)
		}
	} else {
		fsys = os.DirFS(dir)
		paths = findRulepackFiles(fsys)
		if len(paths) == 0 {
			return nil, nil, fmt.Errorf("%w: no rulepack files in %s", risk.ErrConfiguration, dir)
		}
	}

	packs := make([]rawRulepack, 0, len(paths))
	for _, path := range paths {
		data, readErr := fs.ReadFile(fsys, path)
		if readErr != nil {
			return nil, nil, fmt.Errorf("%w: read rulepack %s: %v", risk.ErrConfiguration, path, readErr)
		}
		var raw rawRulepack
		if parseErr := yaml.Unmarshal(data, &raw); parseErr != nil {
			return nil, nil, fmt.Errorf("%w: parse rulepack %s: %v", risk.ErrConfiguration, path, parseErr)
		}
		packs = append(packs, raw)
	}

	table, err := compileRulepacks(packs)
	if err != nil {
		return nil, nil, err
	}
	if dir != "" {
		for i := range paths {
			paths[i] = filepath.Join(dir, paths[i])
		}
	}
	return table, paths, nil
}

func findRulepackFiles(fsys fs.FS) []string {
	var files []string
	for _, pattern := range []string{"*.yml", "*.yaml"} {
		matches, err := fs.Glob(fsys, pattern)
		if err != nil {
			continue
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files
}

// compileRulepacks: 여러 파일을 순서대로 병합해 하나의 테이블로 컴파일합니다.
func compileRulepacks(packs []rawRulepack) (*ruleTable, error) {
	if len(packs) == 0 {
		return nil, fmt.Errorf("%w: empty rulepack set", risk.ErrConfiguration)
	}

	severities := make(map[risk.Category]risk.Level)
	var rules []rawRule
	var rawHeur *rawHeuristics
	for _, pack := range packs {
		if pack.Version != 0 && pack.Version != 1 {
			return nil, fmt.Errorf("%w: unsupported rulepack version %d", risk.ErrConfiguration, pack.Version)
		}
		for name, value := range pack.Severities {
			category, ok := risk.ParseCategory(name)
			if !ok {
				return nil, fmt.Errorf("%w: unknown category %q in severities", risk.ErrConfiguration, name)
			}
			level, err := risk.ParseLevel(value)
			if err != nil {
				return nil, fmt.Errorf("%w: severity for %s: %v", risk.ErrConfiguration, name, err)
			}
			severities[category] = level
		}
		rules = append(rules, pack.Rules...)
		if pack.Heuristics != nil {
			rawHeur = pack.Heuristics
		}
	}

	table := &ruleTable{}
	seenIDs := make(map[string]struct{}, len(rules))
	seenPhrases := make(map[string]string)

	for _, rule := range rules {
		id := strings.TrimSpace(rule.ID)
		if id == "" {
			return nil, fmt.Errorf("%w: rule without id", risk.ErrConfiguration)
		}
		if _, dup := seenIDs[id]; dup {
			return nil, fmt.Errorf("%w: duplicate rule id %q", risk.ErrConfiguration, id)
		}
		seenIDs[id] = struct{}{}

		category, severity, err := resolveSeverity(rule, severities)
		if err != nil {
			return nil, err
		}

		switch strings.ToLower(strings.TrimSpace(rule.Type)) {
		case "regex":
			if strings.TrimSpace(rule.Pattern) == "" {
				return nil, fmt.Errorf("%w: regex rule %q has empty pattern", risk.ErrConfiguration, id)
			}
			pattern, compileErr := regexp.Compile("(?i)" + rule.Pattern)
			if compileErr != nil {
				return nil, fmt.Errorf("%w: regex rule %q: %v", risk.ErrConfiguration, id, compileErr)
			}
			table.regexRules = append(table.regexRules, regexRule{
				ID:       id,
				Category: category,
				Severity: severity,
				Pattern:  pattern,
			})
		case "phrases":
			if len(rule.Phrases) == 0 {
				return nil, fmt.Errorf("%w: phrases rule %q has no phrases", risk.ErrConfiguration, id)
			}
			for _, phrase := range rule.Phrases {
				value := normalizeText(strings.TrimSpace(phrase))
				if value == "" {
					return nil, fmt.Errorf("%w: phrases rule %q has empty phrase", risk.ErrConfiguration, id)
				}
				if owner, dup := seenPhrases[value]; dup {
					return nil, fmt.Errorf("%w: phrase %q in %q already defined by %q", risk.ErrConfiguration, value, id, owner)
				}
				seenPhrases[value] = id
				table.phrases = append(table.phrases, phraseRule{
					Phrase:   value,
					ID:       id,
					Category: category,
					Severity: severity,
				})
			}
		default:
			return nil, fmt.Errorf("%w: rule %q has unknown type %q", risk.ErrConfiguration, id, rule.Type)
		}
	}

	if len(table.phrases) > 0 {
		patterns := make([][]byte, 0, len(table.phrases))
		for _, phrase := range table.phrases {
			patterns = append(patterns, []byte(phrase.Phrase))
		}
		table.phraseMatcher = ahocorasick.NewMatcher(patterns)
	}

	heur, err := compileHeuristics(rawHeur)
	if err != nil {
		return nil, err
	}
	table.heuristics = heur

	if table.ruleCount() == 0 {
		return nil, fmt.Errorf("%w: rulepack defines no rules", risk.ErrConfiguration)
	}
	return table, nil
}

func resolveSeverity(rule rawRule, severities map[risk.Category]risk.Level) (risk.Category, risk.Level, error) {
	category, ok := risk.ParseCategory(rule.Category)
	if !ok {
		return "", risk.LevelSafe, fmt.Errorf("%w: rule %q has unknown category %q", risk.ErrConfiguration, rule.ID, rule.Category)
	}

	if strings.TrimSpace(rule.Severity) != "" {
		level, err := risk.ParseLevel(rule.Severity)
		if err != nil {
			return "", risk.LevelSafe, fmt.Errorf("%w: rule %q: %v", risk.ErrConfiguration, rule.ID, err)
		}
		return category, level, nil
	}

	level, ok := severities[category]
	if !ok {
		return "", risk.LevelSafe, fmt.Errorf("%w: no severity configured for category %q", risk.ErrConfiguration, category)
	}
	return category, level, nil
}

func compileHeuristics(raw *rawHeuristics) (heuristics, error) {
	if raw == nil {
		return heuristics{}, nil
	}
	if raw.SpecialCharRatio < 0 || raw.SpecialCharRatio > 1 {
		return heuristics{}, fmt.Errorf("%w: special_char_ratio must be within [0,1]", risk.ErrConfiguration)
	}

	parse := func(name string, value string, def risk.Level) (risk.Level, error) {
		if strings.TrimSpace(value) == "" {
			return def, nil
		}
		level, err := risk.ParseLevel(value)
		if err != nil {
			return risk.LevelSafe, fmt.Errorf("%w: heuristics %s: %v", risk.ErrConfiguration, name, err)
		}
		return level, nil
	}

	var errs []error
	specialSeverity, err := parse("special_char_severity", raw.SpecialCharSeverity, risk.LevelMedium)
	errs = append(errs, err)
	lengthSeverity, err := parse("length_severity", raw.LengthSeverity, risk.LevelMedium)
	errs = append(errs, err)
	repeatedSeverity, err := parse("repeated_severity", raw.RepeatedSeverity, risk.LevelLow)
	errs = append(errs, err)
	base64Severity, err := parse("base64_severity", raw.Base64Severity, risk.LevelMedium)
	errs = append(errs, err)
	if joined := errors.Join(errs...); joined != nil {
		return heuristics{}, joined
	}

	keywords := make([]keywordLimit, 0, len(raw.RepeatedKeywords))
	for keyword, limit := range raw.RepeatedKeywords {
		value := strings.ToLower(strings.TrimSpace(keyword))
		if value == "" || limit <= 0 {
			return heuristics{}, fmt.Errorf("%w: invalid repeated keyword %q=%d", risk.ErrConfiguration, keyword, limit)
		}
		keywords = append(keywords, keywordLimit{Keyword: value, Limit: limit})
	}
	sort.Slice(keywords, func(i, j int) bool { return keywords[i].Keyword < keywords[j].Keyword })

	specialChars := raw.SpecialChars
	if specialChars == "" {
		specialChars = defaultSpecialChars
	}
	minLength := raw.SpecialCharMinLength
	if minLength <= 0 {
		minLength = defaultRatioMin
	}
	maxPayloads := raw.Base64MaxPayloads
	if maxPayloads <= 0 {
		maxPayloads = 4
	}

	return heuristics{
		specialCharRatio:     raw.SpecialCharRatio,
		specialChars:         specialChars,
		specialCharMinLength: minLength,
		specialCharSeverity:  specialSeverity,
		maxLength:            raw.MaxLength,
		lengthSeverity:       lengthSeverity,
		repeatedKeywords:     keywords,
		repeatedSeverity:     repeatedSeverity,
		base64Payloads:       raw.Base64Payloads,
		base64MaxPayloads:    maxPayloads,
		base64Severity:       base64Severity,
	}, nil
}
