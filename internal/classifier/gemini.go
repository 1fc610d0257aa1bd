package classifier

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/mitchellh/mapstructure"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/config"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/gemini"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/metrics"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/prompt"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/risk"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/telemetry"
)

//go:embed prompts/*.yml
var embeddedPrompts embed.FS

const (
	promptName      = "classifier"
	maxReasonRunes  = 500
	maxThreatLabels = 16
)

// verdictSchema 는 Gemini 구조화 응답 스키마다.
var verdictSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"classification": map[string]any{
			"type": "string",
			"enum": []string{string(risk.VerdictSafe), string(risk.VerdictSuspicious), string(risk.VerdictUnsafe)},
		},
		"confidence": map[string]any{"type": "number"},
		"reason":     map[string]any{"type": "string"},
		"threats": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	},
	"required": []string{"classification", "reason"},
}

// verdictReply 는 분류기 응답 필드다.
type verdictReply struct {
	Classification string   `mapstructure:"classification"`
	Confidence     float64  `mapstructure:"confidence"`
	Reason         string   `mapstructure:"reason"`
	Threats        []string `mapstructure:"threats"`
}

// GeminiClassifier 는 고정 안전 지시문으로 Gemini 에 SAFE/SUSPICIOUS/UNSAFE 판정을 요청한다.
// 호출 간 공유 가변 상태는 캐시(내부 잠금)뿐이다.
type GeminiClassifier struct {
	llm          gemini.LLM
	cache        VerdictCache
	logger       *slog.Logger
	system       string
	userTemplate string
	model        string
	timeout      time.Duration
	fallback     risk.Verdict
	tracer       trace.Tracer
}

// NewGeminiClassifier 는 내장 프롬프트를 로드해 분류기를 생성한다. cache 는 nil 이어도 된다.
func NewGeminiClassifier(cfg *config.Config, llm gemini.LLM, verdictCache VerdictCache, logger *slog.Logger) (*GeminiClassifier, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if llm == nil {
		return nil, errors.New("llm client is nil")
	}
	fallback, err := cfg.Classifier.Fallback()
	if err != nil {
		return nil, err
	}

	bundle, err := prompt.LoadBundle(embeddedPrompts, "prompts", promptName)
	if err != nil {
		return nil, err
	}
	fields, err := bundle.Fields(promptName, "system", "user")
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(cfg.Classifier.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		return nil, fmt.Errorf("%w: classifier timeout must be positive", risk.ErrConfiguration)
	}

	return &GeminiClassifier{
		llm:          llm,
		cache:        verdictCache,
		logger:       logger,
		system:       strings.TrimSpace(fields["system"]),
		userTemplate: fields["user"],
		model:        cfg.Classifier.Model,
		timeout:      timeout,
		fallback:     fallback,
		tracer:       telemetry.Tracer(),
	}, nil
}

// Classify 는 입력을 판정한다. 실패하면 설정된 fallback 판정을 Fallback=true 로 반환한다.
func (c *GeminiClassifier) Classify(ctx context.Context, text string, projectID string) Classification {
	ctx, span := c.tracer.Start(ctx, "classifier.classify",
		trace.WithAttributes(
			attribute.String("riskguard.project_id", projectID),
			attribute.Int("riskguard.input_length", len(text)),
		),
	)
	defer span.End()

	key := ""
	if c.cache != nil {
		key = VerdictKey(text)
		if cached, ok := c.cache.Get(ctx, key); ok {
			metrics.ObserveClassifierCall(metrics.OutcomeCacheHit, 0)
			span.SetAttributes(attribute.Bool("riskguard.cache_hit", true), attribute.String("riskguard.verdict", string(cached.Verdict)))
			return cached
		}
	}

	start := time.Now()
	result, err := c.call(ctx, text, projectID)
	duration := time.Since(start)

	if err != nil {
		outcome := metrics.OutcomeUnavailable
		if errors.Is(err, risk.ErrClassifierParse) {
			outcome = metrics.OutcomeParseError
		}
		metrics.ObserveClassifierCall(outcome, duration)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		if c.logger != nil {
			c.logger.Warn("classifier_fallback",
				"project_id", projectID,
				"fallback_verdict", string(c.fallback),
				"duration_ms", duration.Milliseconds(),
				"err", err,
			)
		}
		return c.fallbackResult(err)
	}

	metrics.ObserveClassifierCall(metrics.OutcomeSuccess, duration)
	span.SetAttributes(attribute.String("riskguard.verdict", string(result.Verdict)))
	if c.cache != nil {
		c.cache.Set(ctx, key, result)
	}
	return result
}

func (c *GeminiClassifier) call(ctx context.Context, text string, projectID string) (Classification, error) {
	userPrompt, err := prompt.FormatTemplate(c.userTemplate, map[string]string{
		"user_input": prompt.WrapXML("user_input", text),
	})
	if err != nil {
		return Classification{}, fmt.Errorf("%w: format prompt: %v", risk.ErrClassifierUnavailable, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, model, err := c.llm.Structured(callCtx, gemini.Request{
		Prompt:       userPrompt,
		SystemPrompt: c.system,
		Model:        c.model,
		ProjectID:    projectID,
	}, verdictSchema)
	if err != nil {
		var decodeErr *gemini.DecodeError
		if errors.As(err, &decodeErr) {
			return parseRawReply(decodeErr.Raw, model)
		}
		if errors.Is(err, gemini.ErrEmptyResponse) {
			return Classification{}, fmt.Errorf("%w: %v", risk.ErrClassifierParse, err)
		}
		return Classification{}, fmt.Errorf("%w: %v", risk.ErrClassifierUnavailable, err)
	}
	return decodeReply(payload, model)
}

func (c *GeminiClassifier) fallbackResult(cause error) Classification {
	return Classification{
		Verdict:   c.fallback,
		Reasoning: "contextual classifier fallback: " + cause.Error(),
		Fallback:  true,
		Cause:     cause,
		Model:     c.model,
	}
}

func decodeReply(payload map[string]any, model string) (Classification, error) {
	var reply verdictReply
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &reply,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Classification{}, fmt.Errorf("%w: %v", risk.ErrClassifierParse, err)
	}
	if err := decoder.Decode(payload); err != nil {
		return Classification{}, fmt.Errorf("%w: decode reply: %v", risk.ErrClassifierParse, err)
	}

	verdict, ok := risk.ParseVerdict(reply.Classification)
	if !ok {
		return Classification{}, fmt.Errorf("%w: unknown verdict %q", risk.ErrClassifierParse, reply.Classification)
	}

	return Classification{
		Verdict:    verdict,
		Reasoning:  truncateRunes(strings.TrimSpace(reply.Reason), maxReasonRunes),
		Confidence: clampConfidence(reply.Confidence),
		Threats:    cleanThreats(reply.Threats),
		Model:      model,
	}, nil
}

// parseRawReply 는 JSON 이 아닌 응답에서 첫 '{' ~ 마지막 '}' 구간을, 실패하면 단독 판정 토큰을 찾는다.
func parseRawReply(raw string, model string) (Classification, error) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start >= 0 && end > start {
		var payload map[string]any
		if err := json.Unmarshal([]byte(raw[start:end+1]), &payload); err == nil {
			return decodeReply(payload, model)
		}
	}

	if verdict, ok := bareVerdict(raw); ok {
		return Classification{
			Verdict:   verdict,
			Reasoning: truncateRunes(strings.TrimSpace(raw), maxReasonRunes),
			Model:     model,
		}, nil
	}
	return Classification{}, fmt.Errorf("%w: no verdict in reply %q", risk.ErrClassifierParse, truncateRunes(raw, 80))
}

// bareVerdict 는 응답의 첫 단어가 판정 토큰인지 확인한다.
func bareVerdict(raw string) (risk.Verdict, bool) {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z')
	})
	if len(fields) == 0 {
		return "", false
	}
	return risk.ParseVerdict(fields[0])
}

func clampConfidence(value float64) float64 {
	switch {
	case value < 0:
		return 0
	case value > 1:
		return 1
	default:
		return value
	}
}

func cleanThreats(threats []string) []string {
	if len(threats) == 0 {
		return nil
	}
	cleaned := make([]string, 0, min(len(threats), maxThreatLabels))
	for _, threat := range threats {
		threat = strings.TrimSpace(threat)
		if threat == "" {
			continue
		}
		cleaned = append(cleaned, truncateRunes(threat, 120))
		if len(cleaned) == maxThreatLabels {
			break
		}
	}
	return cleaned
}

func truncateRunes(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}
