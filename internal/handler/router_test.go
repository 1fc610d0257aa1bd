package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/config"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/guard"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/health"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/hybrid"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/metrics"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/middleware"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/prompt"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/risk"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/securitylog"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	cfg := &config.Config{
		Guard: config.GuardConfig{
			UseContextualLayer:  true,
			EscalationThreshold: "low",
			Sanitizer:           "escape",
			RefusalMessage:      "blocked",
			FileExcerptChars:    5000,
		},
		Classifier: config.ClassifierConfig{Model: "gemini-3-flash-preview", TimeoutSeconds: 5, FallbackVerdict: "suspicious"},
		HTTPAuth:   config.HTTPAuthConfig{APIKeys: []string{"secret"}},
		Telemetry:  config.TelemetryConfig{ServiceName: "risk-guard-test"},
	}

	matcher, err := guard.NewMatcher(cfg, nil)
	if err != nil {
		t.Fatalf("new matcher: %v", err)
	}
	store, err := securitylog.NewFileStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	events, err := securitylog.NewLogger(store, nil)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	engine, err := hybrid.NewEngine(cfg, matcher, &stubClassifier{verdict: risk.VerdictSafe}, events, metrics.NewStore(), nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	prompts, err := prompt.NewSafePromptBuilder()
	if err != nil {
		t.Fatalf("new prompt builder: %v", err)
	}

	return NewRouter(
		cfg,
		nil,
		NewGuardHandler(engine, prompts, nil),
		NewSecurityHandler(events, nil),
		NewUsageHandler(cfg, nil, nil),
		health.Dependencies{},
	)
}

func TestRouterRequiresAPIKey(t *testing.T) {
	router := newTestRouter(t)

	resp := postJSON(router, "/api/guard/checks", `{"text":"hello"}`)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
	if resp.Header().Get(middleware.RequestIDHeader) == "" {
		t.Fatalf("expected request id header on rejected request")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	healthResp := httptest.NewRecorder()
	router.ServeHTTP(healthResp, req)
	if healthResp.Code != http.StatusOK {
		t.Fatalf("expected public health route, got %d", healthResp.Code)
	}
}

func TestRouterServesAuthorizedCheck(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/security/events?project_id=p1", nil)
	req.Header.Set("X-API-Key", "secret")
	req.Header.Set("Accept-Encoding", "gzip")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if resp.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected gzip encoded event list")
	}
}

func TestRouterRecoversFromPanic(t *testing.T) {
	router := newTestRouter(t)
	router.GET("/panic", func(*gin.Context) { panic("boom") })

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/panic", nil))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
}
