package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/handler/shared"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/risk"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/securitylog"
)

const defaultStatisticsDays = 7

// EventListResponse 는 최근 보안 이벤트 목록이다.
type EventListResponse struct {
	Events []securitylog.Event `json:"events"`
	Count  int                 `json:"count"`
}

// SecurityHandler: 보안 이벤트 조회 API 핸들러입니다.
type SecurityHandler struct {
	events *securitylog.Logger
	logger *slog.Logger
}

// NewSecurityHandler: 보안 이벤트 핸들러를 생성합니다.
func NewSecurityHandler(events *securitylog.Logger, logger *slog.Logger) *SecurityHandler {
	return &SecurityHandler{events: events, logger: logger}
}

// RegisterRoutes: 보안 이벤트 라우트를 등록합니다.
func (h *SecurityHandler) RegisterRoutes(router *gin.Engine) {
	group := router.Group("/api/security")
	group.GET("/statistics", h.handleStatistics)
	group.GET("/events", h.handleEvents)
}

func (h *SecurityHandler) handleStatistics(c *gin.Context) {
	projectID, ok := h.projectQuery(c)
	if !ok {
		return
	}
	days, ok := shared.QueryPositiveInt(c, "days", defaultStatisticsDays)
	if !ok {
		return
	}

	stats, err := h.events.Statistics(c.Request.Context(), projectID, days)
	if err != nil {
		shared.LogError(h.logger, "security_statistics", err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *SecurityHandler) handleEvents(c *gin.Context) {
	projectID, ok := h.projectQuery(c)
	if !ok {
		return
	}
	limit, ok := shared.QueryPositiveInt(c, "limit", 0)
	if !ok {
		return
	}
	minRisk, ok := shared.QueryRiskLevel(c, "min_risk_level", risk.LevelSafe)
	if !ok {
		return
	}

	events, err := h.events.RecentEvents(c.Request.Context(), securitylog.Query{
		ProjectID: projectID,
		Limit:     limit,
		MinRisk:   minRisk,
	})
	if err != nil {
		shared.LogError(h.logger, "security_events", err)
		writeError(c, err)
		return
	}
	if events == nil {
		events = []securitylog.Event{}
	}
	c.JSON(http.StatusOK, EventListResponse{Events: events, Count: len(events)})
}

func (h *SecurityHandler) projectQuery(c *gin.Context) (string, bool) {
	projectID := c.Query("project_id")
	if projectID != "" && !securitylog.ValidProjectID(projectID) {
		writeError(c, errInvalidProjectID)
		return "", false
	}
	return projectID, true
}
