package health

import (
	"context"
	"time"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/config"
)

var startTime = time.Now()

const deepCheckTimeout = 2 * time.Second

// Component 는 상태 구성 요소다.
type Component struct {
	Status string         `json:"status"`
	Detail map[string]any `json:"detail"`
}

// Response 는 상태 응답 본문이다.
type Response struct {
	Status     string               `json:"status"`
	Components map[string]Component `json:"components"`
}

// Pinger 는 deep check 대상 의존성이다.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies 는 readiness 에서 확인할 외부 의존성이다. nil 항목은 건너뛴다.
type Dependencies struct {
	Database     Pinger
	VerdictCache Pinger
}

// Collect 는 헬스 상태를 수집한다.
// deepChecks 가 false 면 외부 의존성을 호출하지 않는다 (liveness).
func Collect(ctx context.Context, cfg *config.Config, deps Dependencies, deepChecks bool) Response {
	if ctx == nil {
		ctx = context.Background()
	}
	components := map[string]Component{
		"app":        buildAppStatus(),
		"classifier": buildClassifierStatus(cfg),
	}
	if deps.Database != nil {
		components["database"] = buildPingStatus(ctx, deps.Database, deepChecks, databaseDetail(cfg))
	}
	if deps.VerdictCache != nil {
		components["verdict_cache"] = buildPingStatus(ctx, deps.VerdictCache, deepChecks, verdictCacheDetail(cfg))
	}

	overall := "ok"
	for _, component := range components {
		if component.Status != "ok" {
			overall = "degraded"
			break
		}
	}

	return Response{
		Status:     overall,
		Components: components,
	}
}

func buildAppStatus() Component {
	uptimeSeconds := int(time.Since(startTime).Seconds())
	return Component{
		Status: "ok",
		Detail: map[string]any{
			"uptime_seconds": uptimeSeconds,
		},
	}
}

// buildClassifierStatus: 문맥 계층이 켜져 있는데 API 키가 없으면 모든 호출이 fallback 이 되므로 degraded 입니다.
func buildClassifierStatus(cfg *config.Config) Component {
	apiKeyPresent := false
	contextual := false
	model := ""
	timeoutSeconds := 0
	fallback := ""

	if cfg != nil {
		apiKeyPresent = cfg.Gemini.PrimaryKey() != ""
		contextual = cfg.Guard.UseContextualLayer
		model = cfg.Classifier.Model
		timeoutSeconds = cfg.Classifier.TimeoutSeconds
		fallback = cfg.Classifier.FallbackVerdict
	}
	status := "ok"
	if contextual && !apiKeyPresent {
		status = "degraded"
	}

	return Component{
		Status: status,
		Detail: map[string]any{
			"use_contextual_layer": contextual,
			"api_key_present":      apiKeyPresent,
			"model":                model,
			"timeout_seconds":      timeoutSeconds,
			"fallback_verdict":     fallback,
		},
	}
}

func buildPingStatus(ctx context.Context, target Pinger, deepChecks bool, detail map[string]any) Component {
	if detail == nil {
		detail = map[string]any{}
	}
	detail["deep_checked"] = deepChecks
	if !deepChecks {
		return Component{Status: "ok", Detail: detail}
	}

	checkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deepCheckTimeout)
	defer cancel()

	status := "ok"
	if err := target.Ping(checkCtx); err != nil {
		status = "degraded"
		detail["error"] = err.Error()
	}
	detail["connected"] = status == "ok"
	return Component{Status: status, Detail: detail}
}

func databaseDetail(cfg *config.Config) map[string]any {
	if cfg == nil {
		return nil
	}
	return map[string]any{
		"driver":               cfg.Database.Driver,
		"usage_enabled":        cfg.Database.UsageEnabled,
		"security_log_backend": cfg.SecurityLog.Backend,
	}
}

func verdictCacheDetail(cfg *config.Config) map[string]any {
	if cfg == nil {
		return nil
	}
	backend := "memory"
	if cfg.VerdictCache.URL != "" {
		backend = "valkey"
	}
	return map[string]any{
		"backend":     backend,
		"ttl_seconds": cfg.VerdictCache.TTLSeconds,
	}
}
