package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Staxx7/quickscope-sub003/internal/adapter/billing"
	"github.com/Staxx7/quickscope-sub003/internal/config"
	"github.com/Staxx7/quickscope-sub003/internal/service"
)

// ProspectHandler serves lead management, transcripts, workflow, and
// checkout endpoints.
type ProspectHandler struct {
	Prospects *service.ProspectService
	Workflow  *service.WorkflowService
	Checkout  billing.CheckoutClient
	Config    config.Config
}

// NewProspectHandler creates the handler set.
func NewProspectHandler(prospects *service.ProspectService, workflow *service.WorkflowService, checkout billing.CheckoutClient, cfg config.Config) *ProspectHandler {
	return &ProspectHandler{Prospects: prospects, Workflow: workflow, Checkout: checkout, Config: cfg}
}

// Create upserts a prospect by email.
func (h *ProspectHandler) Create(c *gin.Context) {
	var input service.ProspectInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid prospect payload."})
		return
	}
	prospect, err := h.Prospects.Upsert(c.Request.Context(), input)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, prospect)
}

// List returns all prospects.
func (h *ProspectHandler) List(c *gin.Context) {
	prospects, err := h.Prospects.List(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prospects": prospects})
}

// Get returns one prospect.
func (h *ProspectHandler) Get(c *gin.Context) {
	id, ok := prospectID(c)
	if !ok {
		return
	}
	prospect, err := h.Prospects.Get(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, prospect)
}

// UploadTranscript stores a call transcript and runs analysis.
func (h *ProspectHandler) UploadTranscript(c *gin.Context) {
	id, ok := prospectID(c)
	if !ok {
		return
	}

	var req struct {
		Content  string    `json:"content"`
		CallDate time.Time `json:"call_date"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid transcript payload."})
		return
	}

	transcript, analysis, err := h.Prospects.IngestTranscript(c.Request.Context(), id, req.Content, req.CallDate)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	resp := gin.H{"transcript": transcript}
	if analysis != nil {
		resp["analysis"] = analysis
	}
	c.JSON(http.StatusOK, resp)
}

// WorkflowStatus reports stage, facts, and next action.
func (h *ProspectHandler) WorkflowStatus(c *gin.Context) {
	id, ok := prospectID(c)
	if !ok {
		return
	}
	stage, facts, nextAction, err := h.Workflow.Status(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"workflow_stage": stage,
		"next_action":    nextAction,
		"facts": gin.H{
			"has_prospect_record":    facts.HasProspectRecord,
			"transcript_count":       facts.TranscriptCount,
			"has_financial_snapshot": facts.HasFinancialSnapshot,
			"has_ai_analysis":        facts.HasAIAnalysis,
		},
	})
}

// GenerateReport produces an audit deck for a ready prospect.
func (h *ProspectHandler) GenerateReport(c *gin.Context) {
	id, ok := prospectID(c)
	if !ok {
		return
	}
	report, err := h.Prospects.GenerateReport(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// CreateCheckout creates a hosted subscription checkout session.
func (h *ProspectHandler) CreateCheckout(c *gin.Context) {
	var req struct {
		PriceID string `json:"price_id"`
		Email   string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid checkout payload."})
		return
	}

	base := strings.TrimRight(h.Config.AppBaseURL, "/")
	session, err := h.Checkout.CreateSession(c.Request.Context(), billing.SessionInput{
		PriceID:    req.PriceID,
		SuccessURL: base + "/billing/success",
		CancelURL:  base + "/billing/cancel",
		Email:      req.Email,
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "checkout_failed", "error_description": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"checkout_url": session.URL, "session_id": session.ID})
}

func prospectID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Prospect id must be a number."})
		return 0, false
	}
	return id, true
}
