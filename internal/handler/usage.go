package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/config"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/handler/shared"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/usage"
)

const usageDateLayout = "2006-01-02"

// DailyUsageResponse: 일자별 분류기 사용량 응답입니다.
type DailyUsageResponse struct {
	UsageDate        string  `json:"usage_date"`
	InputTokens      int64   `json:"input_tokens"`
	OutputTokens     int64   `json:"output_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	ReasoningTokens  int64   `json:"reasoning_tokens"`
	RequestCount     int64   `json:"request_count"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
	Model            string  `json:"model"`
}

// UsageListResponse: 사용량 목록 응답입니다.
type UsageListResponse struct {
	Usages            []DailyUsageResponse `json:"usages"`
	TotalInputTokens  int64                `json:"total_input_tokens"`
	TotalOutputTokens int64                `json:"total_output_tokens"`
	TotalTokens       int64                `json:"total_tokens"`
	TotalRequestCount int64                `json:"total_request_count"`
	EstimatedCostUSD  float64              `json:"estimated_cost_usd"`
	Model             string               `json:"model"`
}

// UsageTotalResponse: 기간 합계 응답입니다.
type UsageTotalResponse struct {
	PeriodDays       int     `json:"period_days"`
	ProjectID        string  `json:"project_id,omitempty"`
	InputTokens      int64   `json:"input_tokens"`
	OutputTokens     int64   `json:"output_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	ReasoningTokens  int64   `json:"reasoning_tokens"`
	RequestCount     int64   `json:"request_count"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
	Model            string  `json:"model"`
}

// UsageHandler: 분류기 사용량 API 핸들러입니다.
type UsageHandler struct {
	cfg      *config.Config
	recorder *usage.Recorder
	logger   *slog.Logger
}

// NewUsageHandler: 사용량 핸들러를 생성합니다.
func NewUsageHandler(cfg *config.Config, recorder *usage.Recorder, logger *slog.Logger) *UsageHandler {
	return &UsageHandler{
		cfg:      cfg,
		recorder: recorder,
		logger:   logger,
	}
}

// RegisterRoutes: 사용량 라우트를 등록합니다.
func (h *UsageHandler) RegisterRoutes(router *gin.Engine) {
	group := router.Group("/api/usage")
	group.GET("/daily", h.handleDaily)
	group.GET("/recent", h.handleRecent)
	group.GET("/total", h.handleTotal)
}

func (h *UsageHandler) handleDaily(c *gin.Context) {
	usageRow, err := h.recorder.Daily(c.Request.Context(), time.Time{})
	if err != nil {
		shared.LogError(h.logger, "usage_request", err)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.buildDailyResponse(usageRow))
}

func (h *UsageHandler) handleRecent(c *gin.Context) {
	days, ok := shared.QueryPositiveInt(c, "days", 7)
	if !ok {
		return
	}

	usages, err := h.recorder.Recent(c.Request.Context(), days)
	if err != nil {
		shared.LogError(h.logger, "usage_request", err)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.buildUsageListResponse(usages))
}

func (h *UsageHandler) handleTotal(c *gin.Context) {
	days, ok := shared.QueryPositiveInt(c, "days", 30)
	if !ok {
		return
	}
	projectID := c.Query("project_id")

	total, err := h.recorder.Totals(c.Request.Context(), days, projectID)
	if err != nil {
		shared.LogError(h.logger, "usage_request", err)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, UsageTotalResponse{
		PeriodDays:       days,
		ProjectID:        projectID,
		InputTokens:      total.InputTokens,
		OutputTokens:     total.OutputTokens,
		TotalTokens:      total.TotalTokens(),
		ReasoningTokens:  total.ReasoningTokens,
		RequestCount:     total.RequestCount,
		EstimatedCostUSD: h.cost(total),
		Model:            h.cfg.Classifier.Model,
	})
}

func (h *UsageHandler) cost(row usage.DailyUsage) float64 {
	return row.EstimatedCostUSD(h.cfg.Classifier.InputPricePerMTok, h.cfg.Classifier.OutputPricePerMTok)
}

func (h *UsageHandler) toResponse(row usage.DailyUsage) DailyUsageResponse {
	return DailyUsageResponse{
		UsageDate:        row.UsageDate.Format(usageDateLayout),
		InputTokens:      row.InputTokens,
		OutputTokens:     row.OutputTokens,
		TotalTokens:      row.TotalTokens(),
		ReasoningTokens:  row.ReasoningTokens,
		RequestCount:     row.RequestCount,
		EstimatedCostUSD: h.cost(row),
		Model:            h.cfg.Classifier.Model,
	}
}

func (h *UsageHandler) buildDailyResponse(usageRow *usage.DailyUsage) DailyUsageResponse {
	if usageRow == nil {
		return h.toResponse(usage.DailyUsage{UsageDate: time.Now().UTC()})
	}
	return h.toResponse(*usageRow)
}

func (h *UsageHandler) buildUsageListResponse(usages []usage.DailyUsage) UsageListResponse {
	response := UsageListResponse{
		Usages: make([]DailyUsageResponse, 0, len(usages)),
		Model:  h.cfg.Classifier.Model,
	}

	var total usage.DailyUsage
	for _, row := range usages {
		response.Usages = append(response.Usages, h.toResponse(row))
		total.InputTokens += row.InputTokens
		total.OutputTokens += row.OutputTokens
		total.RequestCount += row.RequestCount
	}
	response.TotalInputTokens = total.InputTokens
	response.TotalOutputTokens = total.OutputTokens
	response.TotalTokens = total.TotalTokens()
	response.TotalRequestCount = total.RequestCount
	response.EstimatedCostUSD = h.cost(total)

	return response
}
