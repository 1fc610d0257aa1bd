package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/goccy/go-json"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/config"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/database"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/httperror"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/usage"
)

func usageConfig() *config.Config {
	return &config.Config{
		Classifier: config.ClassifierConfig{
			Model:              "gemini-3-test",
			InputPricePerMTok:  0.5,
			OutputPricePerMTok: 3.0,
		},
		Database: config.DatabaseConfig{UsageEnabled: true},
	}
}

func newUsageRouter(t *testing.T, cfg *config.Config) (*gin.Engine, *usage.Recorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "usage.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	handle := database.FromDB(db)
	t.Cleanup(handle.Close)

	recorder := usage.NewRecorder(cfg, usage.NewRepository(handle, nil), nil)
	t.Cleanup(recorder.Close)

	router := gin.New()
	NewUsageHandler(cfg, recorder, nil).RegisterRoutes(router)
	return router, recorder
}

func TestUsageDailyAndTotal(t *testing.T) {
	router, recorder := newUsageRouter(t, usageConfig())
	ctx := context.Background()
	recorder.Record(ctx, "alpha", 1_000_000, 1_000_000, 0)
	recorder.Record(ctx, "beta", 1_000_000, 0, 0)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/usage/daily", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var daily DailyUsageResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &daily); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if daily.InputTokens != 2_000_000 || daily.RequestCount != 2 || daily.EstimatedCostUSD != 4.0 {
		t.Fatalf("unexpected daily usage: %+v", daily)
	}
	if daily.UsageDate != time.Now().UTC().Format(usageDateLayout) {
		t.Fatalf("unexpected usage date: %s", daily.UsageDate)
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/usage/total?days=1&project_id=alpha", nil))
	var total UsageTotalResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &total); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if total.ProjectID != "alpha" || total.TotalTokens != 2_000_000 || total.EstimatedCostUSD != 3.5 || total.Model != "gemini-3-test" {
		t.Fatalf("unexpected total: %+v", total)
	}
}

func TestUsageRecentRejectsInvalidDays(t *testing.T) {
	router, _ := newUsageRouter(t, usageConfig())

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/usage/recent?days=0", nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/usage/recent", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var list UsageListResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Usages) != 0 || list.TotalTokens != 0 {
		t.Fatalf("expected empty usage list: %+v", list)
	}
}

func TestUsageDisabled(t *testing.T) {
	cfg := usageConfig()
	cfg.Database.UsageEnabled = false
	router, _ := newUsageRouter(t, cfg)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/usage/daily", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
	var payload httperror.ErrorResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.ErrorCode != string(httperror.ErrorCodeUsageDisabled) {
		t.Fatalf("unexpected error code: %s", payload.ErrorCode)
	}
}

func TestBuildUsageListResponse(t *testing.T) {
	handler := &UsageHandler{cfg: usageConfig()}

	rows := []usage.DailyUsage{
		{InputTokens: 1, OutputTokens: 2, ReasoningTokens: 0, RequestCount: 1, UsageDate: time.Now()},
		{InputTokens: 3, OutputTokens: 4, ReasoningTokens: 1, RequestCount: 2, UsageDate: time.Now()},
	}
	resp := handler.buildUsageListResponse(rows)
	if resp.TotalInputTokens != 4 || resp.TotalOutputTokens != 6 || resp.TotalRequestCount != 3 {
		t.Fatalf("unexpected totals: %+v", resp)
	}
	if resp.Usages[0].Model != "gemini-3-test" {
		t.Fatalf("unexpected model: %s", resp.Usages[0].Model)
	}
}
