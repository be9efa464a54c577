package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/postdeskhq/postdesk/internal/access"
	auditdomain "github.com/postdeskhq/postdesk/internal/audit/domain"
	"github.com/postdeskhq/postdesk/pkg/db/pagination"
)

func (s *Server) listAuditLogs(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID := s.tenantID(c)

	if err := s.accessSvc.Authorize(ctx, s.principal(c), tenantID, access.ObjectAuditLog, access.ActionAuditLogView); err != nil {
		AbortWithError(c, err)
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	startAt, err := parseOptionalTime(c.Query("start_at"), false)
	if err != nil {
		AbortWithError(c, newValidationError("start_at", "invalid_start_at", "invalid value"))
		return
	}
	endAt, err := parseOptionalTime(c.Query("end_at"), true)
	if err != nil {
		AbortWithError(c, newValidationError("end_at", "invalid_end_at", "invalid value"))
		return
	}

	resp, err := s.auditSvc.List(ctx, auditdomain.ListAuditLogRequest{
		Pagination: page,
		TenantID:   tenantID,
		Action:     strings.TrimSpace(c.Query("action")),
		EntityType: strings.TrimSpace(c.Query("entity_type")),
		EntityID:   strings.TrimSpace(c.Query("entity_id")),
		StartAt:    startAt,
		EndAt:      endAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
