package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/postdeskhq/postdesk/internal/access"
)

func (s *Server) listInbox(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID := s.tenantID(c)

	if err := s.accessSvc.Authorize(ctx, s.principal(c), tenantID, access.ObjectInbox, access.ActionInboxView); err != nil {
		AbortWithError(c, err)
		return
	}

	unread, err := parseOptionalBool(c.Query("unread"))
	if err != nil {
		AbortWithError(c, newValidationError("unread", "invalid_unread", "invalid value"))
		return
	}
	unreadOnly := unread != nil && *unread

	items, err := s.inboxSvc.List(ctx, tenantID, unreadOnly)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) markInboxRead(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID := s.tenantID(c)

	if err := s.accessSvc.Authorize(ctx, s.principal(c), tenantID, access.ObjectInbox, access.ActionInboxRead); err != nil {
		AbortWithError(c, err)
		return
	}

	itemID, err := snowflake.ParseString(c.Param("item_id"))
	if err != nil || itemID == 0 {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.inboxSvc.MarkRead(ctx, tenantID, itemID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
