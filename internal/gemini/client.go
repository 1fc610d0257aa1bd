package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"google.golang.org/genai"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/config"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/llm"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/metrics"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/usage"
)

var (
	// ErrMissingAPIKey 는 Gemini API 키가 없을 때 반환된다.
	ErrMissingAPIKey = errors.New("missing gemini api key")
	// ErrInvalidModel 는 지원하지 않는 모델일 때 반환된다.
	ErrInvalidModel = errors.New("invalid model")
	// ErrEmptyResponse 는 응답 본문이 비어 있을 때 반환된다.
	ErrEmptyResponse = errors.New("empty structured response")
)

// DecodeError 는 구조화 응답이 JSON 으로 해석되지 않을 때 원문을 함께 전달한다.
type DecodeError struct {
	Raw string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode structured response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Request 는 Gemini 요청 데이터다.
type Request struct {
	Prompt       string
	SystemPrompt string
	Model        string
	// ProjectID 는 토큰 사용량 귀속 대상이다.
	ProjectID string
}

// Client 는 Gemini 호출을 담당한다.
type Client struct {
	cfg           *config.Config
	metrics       *metrics.Store
	usageRecorder *usage.Recorder
	mu            sync.Mutex
	clients       map[string]*genai.Client
	apiKeys       []string
	apiKeyIdx     int
}

// NewClient 는 Gemini 클라이언트를 생성한다.
func NewClient(cfg *config.Config, metricsStore *metrics.Store, usageRecorder *usage.Recorder) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if metricsStore == nil {
		return nil, errors.New("metrics store is nil")
	}
	return &Client{
		cfg:           cfg,
		metrics:       metricsStore,
		usageRecorder: usageRecorder,
		clients:       make(map[string]*genai.Client),
		apiKeys:       cfg.Gemini.APIKeys,
	}, nil
}

// Structured 는 JSON 스키마 기반 응답을 반환한다.
// 본문이 JSON 이 아니면 *DecodeError 로 원문을 돌려준다.
func (c *Client) Structured(ctx context.Context, req Request, schema map[string]any) (map[string]any, string, error) {
	start := time.Now()
	response, model, err := c.generate(ctx, req, "application/json", schema)
	if err != nil {
		c.metrics.RecordError(time.Since(start))
		return nil, model, err
	}

	usage := extractUsage(response)
	c.metrics.RecordSuccess(time.Since(start), usage)
	c.recordUsage(ctx, req.ProjectID, usage)

	textParts, _ := extractParts(response)
	payload := strings.TrimSpace(strings.Join(textParts, ""))
	if payload == "" {
		return nil, model, ErrEmptyResponse
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, model, &DecodeError{Raw: payload, Err: err}
	}
	return parsed, model, nil
}

// Models 는 설정된 분류 모델 목록을 반환한다.
func (c *Client) Models() []string {
	if c == nil || c.cfg == nil || c.cfg.Classifier.Model == "" {
		return nil
	}
	return []string{c.cfg.Classifier.Model}
}

func (c *Client) recordUsage(ctx context.Context, projectID string, usage llm.Usage) {
	if c.usageRecorder == nil {
		return
	}
	c.usageRecorder.Record(ctx, projectID, int64(usage.InputTokens), int64(usage.OutputTokens), int64(usage.ReasoningTokens))
}

func (c *Client) generate(
	ctx context.Context,
	req Request,
	responseMimeType string,
	responseSchema map[string]any,
) (*genai.GenerateContentResponse, string, error) {
	model, err := c.resolveModel(req.Model)
	if err != nil {
		return nil, model, err
	}

	client, err := c.selectClient(ctx)
	if err != nil {
		return nil, model, err
	}

	config := c.buildGenerateConfig(req.SystemPrompt, model, responseMimeType, responseSchema)
	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}
	response, err := client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, model, fmt.Errorf("generate content: %w", err)
	}
	return response, model, nil
}

// selectClient 는 API 키를 순환하며 키별 genai 클라이언트를 재사용한다.
func (c *Client) selectClient(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.apiKeys) == 0 {
		return nil, ErrMissingAPIKey
	}

	key := c.apiKeys[c.apiKeyIdx%len(c.apiKeys)]
	c.apiKeyIdx++
	if client, ok := c.clients[key]; ok {
		return client, nil
	}

	timeout := time.Duration(c.cfg.Classifier.TimeoutSeconds) * time.Second
	client, err := genai.NewClient(context.WithoutCancel(ctx), &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			Timeout: genai.Ptr(timeout),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	c.clients[key] = client
	return client, nil
}

func (c *Client) resolveModel(modelOverride string) (string, error) {
	model := modelOverride
	if model == "" {
		model = c.cfg.Classifier.Model
	}
	if model == "" {
		return "", ErrInvalidModel
	}
	if !isGemini3(model) {
		return model, ErrInvalidModel
	}
	return model, nil
}

func (c *Client) buildGenerateConfig(
	systemPrompt string,
	model string,
	responseMimeType string,
	responseSchema map[string]any,
) *genai.GenerateContentConfig {
	temperature := float32(c.cfg.Gemini.TemperatureForModel(model))
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(temperature),
		MaxOutputTokens: int32(c.cfg.Gemini.MaxOutputTokens),
	}

	if systemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	if responseMimeType != "" {
		config.ResponseMIMEType = responseMimeType
	}
	if responseSchema != nil {
		config.ResponseJsonSchema = responseSchema
	}

	if thinkingLevel, ok := normalizeThinkingLevel(c.cfg.Gemini.ThinkingLevel); ok {
		config.ThinkingConfig = &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingLevel:   thinkingLevel,
		}
	}

	return config
}

func normalizeThinkingLevel(level string) (genai.ThinkingLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "low":
		return genai.ThinkingLevelLow, true
	case "medium":
		return genai.ThinkingLevelMedium, true
	case "high":
		return genai.ThinkingLevelHigh, true
	case "minimal":
		return genai.ThinkingLevelMinimal, true
	default:
		return "", false
	}
}

// extractParts 는 첫 후보의 본문 조각과 사고 조각을 분리한다.
func extractParts(response *genai.GenerateContentResponse) ([]string, []string) {
	if response == nil || len(response.Candidates) == 0 {
		return nil, nil
	}
	content := response.Candidates[0].Content
	if content == nil || len(content.Parts) == 0 {
		return nil, nil
	}

	texts := make([]string, 0, len(content.Parts))
	var thoughts []string
	for _, part := range content.Parts {
		if part == nil || part.Text == "" {
			continue
		}
		if part.Thought {
			thoughts = append(thoughts, part.Text)
			continue
		}
		texts = append(texts, part.Text)
	}
	return texts, thoughts
}

func extractUsage(response *genai.GenerateContentResponse) llm.Usage {
	if response == nil || response.UsageMetadata == nil {
		return llm.Usage{}
	}
	usage := response.UsageMetadata
	return llm.Usage{
		InputTokens:     int(usage.PromptTokenCount),
		OutputTokens:    int(usage.CandidatesTokenCount) + int(usage.ThoughtsTokenCount),
		TotalTokens:     int(usage.TotalTokenCount),
		ReasoningTokens: int(usage.ThoughtsTokenCount),
		CachedTokens:    int(usage.CachedContentTokenCount),
	}
}

func isGemini3(model string) bool {
	return strings.Contains(strings.ToLower(model), "gemini-3")
}
