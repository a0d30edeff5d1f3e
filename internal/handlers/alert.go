package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/farmguard-backend/internal/middleware"
	"github.com/yungbote/farmguard-backend/internal/repos"
	"github.com/yungbote/farmguard-backend/internal/services"
	"github.com/yungbote/farmguard-backend/internal/types"
)

type AlertHandler struct {
	alerts services.AlertService
}

func NewAlertHandler(alerts services.AlertService) *AlertHandler {
	return &AlertHandler{alerts: alerts}
}

// POST /api/alerts
func (h *AlertHandler) CreateAlert(c *gin.Context) {
	var event services.CreateAlertEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	alert, err := h.alerts.Create(c.Request.Context(), event)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"alert": alert})
}

// POST /api/alerts/:id/acknowledge
func (h *AlertHandler) AcknowledgeAlert(c *gin.Context) {
	alertID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_alert_id", err)
		return
	}
	userID := middleware.RequestUserID(c)
	if userID == uuid.Nil {
		RespondError(c, http.StatusForbidden, "forbidden", nil)
		return
	}
	alert, err := h.alerts.Acknowledge(c.Request.Context(), alertID, userID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"alert": alert})
}

// POST /api/alerts/:id/resolve
func (h *AlertHandler) ResolveAlert(c *gin.Context) {
	alertID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_alert_id", err)
		return
	}
	alert, err := h.alerts.Resolve(c.Request.Context(), alertID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"alert": alert})
}

// GET /api/alerts/:id
func (h *AlertHandler) GetAlertByID(c *gin.Context) {
	alertID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_alert_id", err)
		return
	}
	alert, err := h.alerts.GetByID(c.Request.Context(), alertID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"alert": alert})
}

// GET /api/alerts
func (h *AlertHandler) ListAlerts(c *gin.Context) {
	var filter repos.AlertFilter

	if v := c.Query("farm_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_farm_id", err)
			return
		}
		filter.FarmID = &id
	}
	if v := c.Query("type"); v != "" {
		t := types.AlertType(v)
		filter.Type = &t
	}
	if v := c.Query("severity"); v != "" {
		sev := types.Severity(v)
		if !sev.Valid() {
			RespondError(c, http.StatusBadRequest, "invalid_severity", nil)
			return
		}
		filter.Severity = &sev
	}
	if v := c.Query("status"); v != "" {
		st := types.AlertStatus(v)
		filter.Status = &st
	}
	if v := c.Query("from"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_from", err)
			return
		}
		filter.From = &ts
	}
	if v := c.Query("to"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_to", err)
			return
		}
		filter.To = &ts
	}
	filter.Limit = queryInt(c, "limit", 100)
	filter.Offset = queryInt(c, "offset", 0)

	alerts, err := h.alerts.List(c.Request.Context(), filter)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"alerts": alerts})
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
