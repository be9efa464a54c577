package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/postdeskhq/postdesk/internal/access"
	publishdomain "github.com/postdeskhq/postdesk/internal/publish/domain"
)

type publishPostRequest struct {
	Provider    string     `json:"provider"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

type remoteOperationRequest struct {
	Provider string `json:"provider"`
}

func (s *Server) publishPost(c *gin.Context) {
	postID, ok := s.postID(c)
	if !ok {
		return
	}

	var req publishPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.Provider) == "" {
		AbortWithError(c, newValidationError("provider", "invalid_provider", "provider is required"))
		return
	}

	intent, err := s.publishSvc.RecordPublishIntent(c.Request.Context(), s.principal(c), publishdomain.PublishIntentRequest{
		TenantID:    s.tenantID(c),
		PostID:      postID,
		Provider:    strings.TrimSpace(req.Provider),
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, intent)
}

func (s *Server) deleteRemote(c *gin.Context) {
	s.recordRemoteOperation(c, s.publishSvc.RecordDeleteIntent)
}

func (s *Server) syncComments(c *gin.Context) {
	s.recordRemoteOperation(c, s.publishSvc.RecordSyncIntent)
}

func (s *Server) listChannels(c *gin.Context) {
	postID, ok := s.postID(c)
	if !ok {
		return
	}

	channels, err := s.publishSvc.ListChannels(c.Request.Context(), s.principal(c), s.tenantID(c), postID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"channels": channels})
}

type remoteOperationFn func(ctx context.Context, principal access.Principal, tenantID, postID snowflake.ID, provider string) (*publishdomain.Intent, error)

func (s *Server) recordRemoteOperation(c *gin.Context, fn remoteOperationFn) {
	postID, ok := s.postID(c)
	if !ok {
		return
	}

	var req remoteOperationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.Provider) == "" {
		AbortWithError(c, newValidationError("provider", "invalid_provider", "provider is required"))
		return
	}

	intent, err := fn(c.Request.Context(), s.principal(c), s.tenantID(c), postID, strings.TrimSpace(req.Provider))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, intent)
}
