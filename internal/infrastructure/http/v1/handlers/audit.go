package handlers

import (
	"github.com/gin-gonic/gin"

	"invclose/internal/core/apperror"
	"invclose/internal/core/id"
	"invclose/internal/infrastructure/http/v1/dto"
	"invclose/internal/infrastructure/storage/postgres"
)

const maxAuditHistoryLimit = 500

// AuditHandler serves the closing audit trail.
type AuditHandler struct {
	*BaseHandler
	audit *postgres.AuditService
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(base *BaseHandler, audit *postgres.AuditService) *AuditHandler {
	return &AuditHandler{BaseHandler: base, audit: audit}
}

// History handles GET /closing/audit
// Returns the newest-first audit trail for one closing key.
func (h *AuditHandler) History(c *gin.Context) {
	raw := c.Query("entityId")
	if raw == "" {
		h.Error(c, apperror.NewValidation("entityId is required"))
		return
	}
	entityID, err := id.Parse(raw)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid entityId format"))
		return
	}
	code := c.Query("facilityTypeCode")
	if code == "" {
		h.Error(c, apperror.NewValidation("facilityTypeCode is required"))
		return
	}

	limit := h.ParseIntQuery(c, "limit", 100)
	if limit < 1 || limit > maxAuditHistoryLimit {
		h.Error(c, apperror.NewValidation("limit must be between 1 and 500"))
		return
	}

	entries, err := h.audit.History(c.Request.Context(), entityID, code, limit)
	if err != nil {
		h.Error(c, apperror.NewDatabase("load audit history", err))
		return
	}

	h.OK(c, dto.FromAuditEntries(entries))
}
