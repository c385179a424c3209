package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Staxx7/quickscope-sub003/internal/config"
	"github.com/Staxx7/quickscope-sub003/internal/domain"
	"github.com/Staxx7/quickscope-sub003/internal/service"
)

// ConnectionHandler serves the OAuth connect flow and connection management.
type ConnectionHandler struct {
	Connections *service.ConnectionService
	Sync        *service.SyncService
	Config      config.Config
	Logger      *zap.Logger
}

// NewConnectionHandler creates the handler set.
func NewConnectionHandler(connections *service.ConnectionService, sync *service.SyncService, cfg config.Config, logger *zap.Logger) *ConnectionHandler {
	return &ConnectionHandler{Connections: connections, Sync: sync, Config: cfg, Logger: logger}
}

// Connect returns the provider authorization URL for the client to redirect
// to.
func (h *ConnectionHandler) Connect(c *gin.Context) {
	authURL, state, err := h.Connections.ConnectURL(c.Request.Context(), c.Query("redirect_uri"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"authorization_url": authURL, "state": state})
}

// Callback handles the provider redirect. Success lands on the frontend
// success page with the company name; failures land on the error page with a
// message code from the fixed vocabulary.
func (h *ConnectionHandler) Callback(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")
	realmID := c.Query("realmId")

	record, err := h.Connections.HandleCallback(c.Request.Context(), code, state, realmID)
	if err != nil {
		h.redirectError(c, err)
		return
	}

	target := fmt.Sprintf("%s/connect/success?company=%s&company_id=%s",
		strings.TrimRight(h.Config.AppBaseURL, "/"),
		url.QueryEscape(record.DisplayName()),
		url.QueryEscape(record.CompanyID),
	)
	c.Redirect(http.StatusFound, target)
}

func (h *ConnectionHandler) redirectError(c *gin.Context, err error) {
	var exchangeErr *domain.ExchangeError
	var storeErr *domain.StoreError

	message := "token_exchange_failed"
	switch {
	case errors.Is(err, domain.ErrMissingOAuthParams):
		message = "missing_oauth_params"
	case errors.Is(err, domain.ErrInvalidState):
		message = "invalid_state"
	case errors.As(err, &exchangeErr):
		message = "token_exchange_failed"
	case errors.As(err, &storeErr):
		message = "database_error: " + storeErr.Op
	}

	h.Logger.Warn("oauth callback failed", zap.String("message", message), zap.Error(err))
	target := fmt.Sprintf("%s/connect/error?message=%s",
		strings.TrimRight(h.Config.AppBaseURL, "/"),
		url.QueryEscape(message),
	)
	c.Redirect(http.StatusFound, target)
}

// List reports connected accounts with refresh-expiry warnings.
func (h *ConnectionHandler) List(c *gin.Context) {
	connections, err := h.Connections.ListConnections(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"connections": connections})
}

// Disconnect revokes and removes a connection with all dependent rows.
func (h *ConnectionHandler) Disconnect(c *gin.Context) {
	companyID := strings.TrimSpace(c.Param("companyId"))
	if companyID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "companyId is required."})
		return
	}
	if err := h.Connections.Disconnect(c.Request.Context(), companyID); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "disconnected", "company_id": companyID})
}

// SyncCompany pulls fresh financials for a connected company.
func (h *ConnectionHandler) SyncCompany(c *gin.Context) {
	companyID := strings.TrimSpace(c.Param("companyId"))
	snapshot, err := h.Sync.SyncCompany(c.Request.Context(), companyID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshot": snapshot})
}

// HealthScore computes the composite score for the latest snapshot.
func (h *ConnectionHandler) HealthScore(c *gin.Context) {
	companyID := strings.TrimSpace(c.Param("companyId"))
	score, err := h.Sync.HealthScore(c.Request.Context(), companyID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, score)
}

// respondServiceError maps tagged domain errors onto the user-visible
// categories.
func respondServiceError(c *gin.Context, err error) {
	var refreshErr *domain.RefreshError
	var exchangeErr *domain.ExchangeError
	var validationErr *domain.ValidationError
	var storeErr *domain.StoreError

	switch {
	case errors.Is(err, domain.ErrNotConnected):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_connected", "error_description": "Company is not connected."})
	case errors.Is(err, domain.ErrProspectNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": "Prospect not found."})
	case errors.Is(err, domain.ErrSnapshotNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "no_snapshot", "error_description": "No financial snapshot has been synced yet."})
	case errors.As(err, &refreshErr):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "reconnect_required", "error_description": "Token refresh failed. Please reconnect your QuickBooks account."})
	case errors.As(err, &exchangeErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": "token_exchange_failed", "error_description": "The accounting provider rejected the request."})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "error_description": validationErr.Error(), "field": validationErr.Field})
	case errors.As(err, &storeErr):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database_error", "error_description": storeErr.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": err.Error()})
	}
}
