package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/farmguard-backend/internal/services"
)

type ECallHandler struct {
	ecalls services.ECallService
}

func NewECallHandler(ecalls services.ECallService) *ECallHandler {
	return &ECallHandler{ecalls: ecalls}
}

// POST /api/ecalls
func (h *ECallHandler) OpenECall(c *gin.Context) {
	var cmd services.OpenECallCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	ecall, err := h.ecalls.Open(c.Request.Context(), cmd)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"ecall": ecall})
}

// POST /api/ecalls/:id/dispatch
func (h *ECallHandler) DispatchECall(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_ecall_id", err)
		return
	}
	ecall, err := h.ecalls.MarkDispatched(c.Request.Context(), id)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"ecall": ecall})
}

// POST /api/ecalls/:id/resolve
func (h *ECallHandler) ResolveECall(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_ecall_id", err)
		return
	}
	ecall, err := h.ecalls.Resolve(c.Request.Context(), id)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"ecall": ecall})
}

// POST /api/ecalls/:id/cancel
func (h *ECallHandler) CancelECall(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_ecall_id", err)
		return
	}
	ecall, err := h.ecalls.Cancel(c.Request.Context(), id)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"ecall": ecall})
}

// GET /api/ecalls/:id
func (h *ECallHandler) GetECallByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_ecall_id", err)
		return
	}
	ecall, err := h.ecalls.GetByID(c.Request.Context(), id)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"ecall": ecall})
}

// GET /api/ecalls?farm_id=
func (h *ECallHandler) ListECalls(c *gin.Context) {
	farmID, err := uuid.Parse(c.Query("farm_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_farm_id", err)
		return
	}
	ecalls, err := h.ecalls.ListByFarm(c.Request.Context(), farmID, queryInt(c, "limit", 100), queryInt(c, "offset", 0))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"ecalls": ecalls})
}
