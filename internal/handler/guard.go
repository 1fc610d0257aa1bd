package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/hybrid"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/prompt"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/risk"
	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/securitylog"
)

// CheckRequest 는 입력 검사 요청이다.
type CheckRequest struct {
	Text            string `json:"text" binding:"required"`
	ProjectID       string `json:"project_id" binding:"omitempty,max=128"`
	UserID          string `json:"user_id" binding:"omitempty,max=256"`
	Source          string `json:"source" binding:"omitempty,oneof=user_message file_upload"`
	ForceContextual bool   `json:"force_contextual"`
}

// CheckResponse 는 입력 검사 응답이다. 차단된 경우에도 200 으로 반환한다.
type CheckResponse struct {
	risk.CheckResult
	IsSafe bool `json:"is_safe"`
}

// EvaluationRequest 는 패턴 계층 단독 평가 요청이다.
type EvaluationRequest struct {
	Text string `json:"text" binding:"required"`
}

// EvaluationResponse 는 패턴 계층 평가 결과다.
type EvaluationResponse struct {
	RiskLevel risk.Level             `json:"risk_level"`
	Threats   []risk.ThreatSignature `json:"threats"`
}

// SafePromptRequest 는 안전 프롬프트 조립 요청이다.
type SafePromptRequest struct {
	SystemInstructions   string `json:"system_instructions" binding:"required"`
	UserInput            string `json:"user_input"`
	IncludeSafetyPreface *bool  `json:"include_safety_preface"`
}

// SafePromptResponse 는 조립된 프롬프트다.
type SafePromptResponse struct {
	Prompt string `json:"prompt"`
}

// GuardHandler 는 가드 API 핸들러다.
type GuardHandler struct {
	engine  *hybrid.Engine
	prompts *prompt.SafePromptBuilder
	logger  *slog.Logger
}

// NewGuardHandler 는 가드 핸들러를 생성한다.
func NewGuardHandler(engine *hybrid.Engine, prompts *prompt.SafePromptBuilder, logger *slog.Logger) *GuardHandler {
	return &GuardHandler{engine: engine, prompts: prompts, logger: logger}
}

// RegisterRoutes 는 가드 라우트를 등록한다.
func (h *GuardHandler) RegisterRoutes(router *gin.Engine) {
	group := router.Group("/api/guard")
	group.POST("/checks", h.handleCheck)
	group.POST("/evaluations", h.handleEvaluate)
	group.POST("/prompts", h.handlePrompt)
}

func (h *GuardHandler) handleCheck(c *gin.Context) {
	var req CheckRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.ProjectID != "" && !securitylog.ValidProjectID(req.ProjectID) {
		writeError(c, errInvalidProjectID)
		return
	}

	result := h.engine.CheckInput(
		c.Request.Context(),
		req.Text,
		req.ProjectID,
		req.UserID,
		hybrid.WithSource(req.Source),
		hybrid.WithForceContextual(req.ForceContextual),
	)
	c.JSON(http.StatusOK, CheckResponse{CheckResult: result, IsSafe: result.IsSafe()})
}

func (h *GuardHandler) handleEvaluate(c *gin.Context) {
	var req EvaluationRequest
	if !bindJSON(c, &req) {
		return
	}

	match := h.engine.Evaluate(req.Text)
	threats := match.Threats
	if threats == nil {
		threats = []risk.ThreatSignature{}
	}
	c.JSON(http.StatusOK, EvaluationResponse{RiskLevel: match.Risk, Threats: threats})
}

func (h *GuardHandler) handlePrompt(c *gin.Context) {
	var req SafePromptRequest
	if !bindJSON(c, &req) {
		return
	}

	includePreface := true
	if req.IncludeSafetyPreface != nil {
		includePreface = *req.IncludeSafetyPreface
	}
	built, err := h.prompts.Build(req.SystemInstructions, req.UserInput, includePreface)
	if err != nil {
		if h.logger != nil {
			h.logger.Warn("safe_prompt_build_failed", "err", err)
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SafePromptResponse{Prompt: built})
}
