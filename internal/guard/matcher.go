package guard

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/cache"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/config"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/risk"
)

// Matcher: 규칙 테이블 기반의 결정적 패턴 검사기입니다.
// 생성 후 테이블은 변경되지 않으며 동시 호출에 안전합니다.
type Matcher struct {
	logger *slog.Logger
	table  *ruleTable
	cache  *cache.TTLCache[string, Match]
	group  singleflight.Group
}

// NewMatcher: 규칙 테이블을 로드해 패턴 검사기를 생성합니다.
// 테이블이 잘못되면 risk.ErrConfiguration 을 감싼 오류를 반환합니다.
func NewMatcher(cfg *config.Config, logger *slog.Logger) (*Matcher, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	table, sources, err := loadRuleTable(cfg.Guard.RulepacksDir)
	if err != nil {
		return nil, err
	}

	cacheTTL := time.Duration(cfg.Guard.CacheTTLSeconds) * time.Second
	matcher := &Matcher{
		logger: logger,
		table:  table,
		cache:  cache.NewTTLCache[string, Match](cfg.Guard.CacheMaxSize, cacheTTL),
	}

	if logger != nil {
		logger.Info("guard_ready",
			"rules", table.ruleCount(),
			"regex_rules", len(table.regexRules),
			"phrases", len(table.phrases),
			"sources", sources,
		)
	}
	return matcher, nil
}

// Match: 입력을 검사합니다. 같은 입력에는 항상 같은 결과를 반환합니다.
func (m *Matcher) Match(text string) Match {
	if m == nil || m.table == nil || text == "" {
		return Match{Risk: risk.LevelSafe}
	}

	key := cacheKey(text)
	if cached, ok := m.cache.Get(key); ok {
		return cached.clone()
	}

	value, _, _ := m.group.Do(key, func() (any, error) {
		result := m.scan(text)
		m.cache.Set(key, result)
		return result, nil
	})

	if result, ok := value.(Match); ok {
		return result.clone()
	}
	return m.scan(text)
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func (m *Matcher) scan(text string) Match {
	normalized := Normalize(text)

	findings := m.scanNormalized(normalized, "")
	findings = append(findings, applyHeuristics(m.table.heuristics, text, normalized)...)

	if m.table.heuristics.base64Payloads {
		for _, payload := range extractBase64Payloads(text, m.table.heuristics.base64MaxPayloads) {
			decoded := Normalize(payload)
			findings = append(findings, finding{
				signature: risk.ThreatSignature{
					Category: risk.CategoryOther,
					Excerpt:  Base64ExcerptPrefix + truncateRunes(decoded, maxExcerptRunes),
					Source:   risk.SourcePattern,
					RuleID:   RuleBase64Payload,
				},
				severity: m.table.heuristics.base64Severity,
			})
			findings = append(findings, m.scanNormalized(decoded, Base64ExcerptPrefix)...)
		}
	}

	result := Match{Risk: risk.LevelSafe}
	if len(findings) == 0 {
		return result
	}

	result.Threats = make([]risk.ThreatSignature, 0, len(findings))
	ruleIDs := make([]string, 0, len(findings))
	for _, f := range findings {
		result.Risk = risk.MaxLevel(result.Risk, f.severity)
		result.Threats = append(result.Threats, f.signature)
		ruleIDs = append(ruleIDs, f.signature.RuleID)
	}

	if m.logger != nil && result.Risk >= risk.LevelHigh {
		m.logger.Warn("guard_pattern_detected",
			"risk_level", result.Risk.String(),
			"rules", ruleIDs,
			"input", trimForLog(text),
		)
	}
	return result
}

// scanNormalized: 정규식 규칙과 구문 사전을 정규화된 텍스트에 적용합니다.
func (m *Matcher) scanNormalized(normalized string, prefix string) []finding {
	if normalized == "" {
		return nil
	}

	var findings []finding
	for _, rule := range m.table.regexRules {
		excerpts := rule.Pattern.FindAllString(normalized, maxMatchesPerRule)
		for _, excerpt := range excerpts {
			findings = append(findings, finding{
				signature: risk.ThreatSignature{
					Category: rule.Category,
					Excerpt:  prefix + truncateRunes(excerpt, maxExcerptRunes),
					Source:   risk.SourcePattern,
					RuleID:   rule.ID,
				},
				severity: rule.Severity,
			})
		}
	}

	if m.table.phraseMatcher == nil {
		return findings
	}

	indexes := m.table.phraseMatcher.MatchThreadSafe([]byte(normalized))
	sort.Ints(indexes)
	for _, index := range indexes {
		if index < 0 || index >= len(m.table.phrases) {
			continue
		}
		phrase := m.table.phrases[index]
		findings = append(findings, finding{
			signature: risk.ThreatSignature{
				Category: phrase.Category,
				Excerpt:  prefix + phrase.Phrase,
				Source:   risk.SourcePattern,
				RuleID:   phrase.ID,
			},
			severity: phrase.Severity,
		})
	}
	return findings
}

func trimForLog(value string) string {
	value = strings.TrimSpace(value)
	return truncateRunes(value, 50)
}
