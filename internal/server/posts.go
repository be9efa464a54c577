package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/postdeskhq/postdesk/internal/access"
	postdomain "github.com/postdeskhq/postdesk/internal/post/domain"
	"github.com/postdeskhq/postdesk/pkg/db/pagination"
)

type createPostRequest struct {
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	Network     string     `json:"network"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

type updatePostRequest struct {
	Title       *string    `json:"title"`
	Body        *string    `json:"body"`
	Network     *string    `json:"network"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

type requestChangesRequest struct {
	Comment string `json:"comment"`
}

func (s *Server) createPost(c *gin.Context) {
	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	created, err := s.postSvc.Create(c.Request.Context(), s.principal(c), postdomain.CreatePostRequest{
		TenantID:    s.tenantID(c),
		Title:       req.Title,
		Body:        req.Body,
		Network:     req.Network,
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) listPosts(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.postSvc.List(c.Request.Context(), s.principal(c), postdomain.ListPostsRequest{
		Pagination: page,
		TenantID:   s.tenantID(c),
		Status:     postdomain.PostStatus(strings.TrimSpace(c.Query("status"))),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getPost(c *gin.Context) {
	postID, ok := s.postID(c)
	if !ok {
		return
	}

	found, err := s.postSvc.GetByID(c.Request.Context(), s.principal(c), s.tenantID(c), postID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, found)
}

func (s *Server) updatePost(c *gin.Context) {
	postID, ok := s.postID(c)
	if !ok {
		return
	}

	var req updatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	updated, err := s.postSvc.Update(c.Request.Context(), s.principal(c), postdomain.UpdatePostRequest{
		TenantID:    s.tenantID(c),
		PostID:      postID,
		Title:       req.Title,
		Body:        req.Body,
		Network:     req.Network,
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) sendForApproval(c *gin.Context) {
	s.transitionPost(c, s.postSvc.SendForApproval)
}

func (s *Server) approvePost(c *gin.Context) {
	s.transitionPost(c, s.postSvc.Approve)
}

func (s *Server) archivePost(c *gin.Context) {
	s.transitionPost(c, s.postSvc.Archive)
}

func (s *Server) requestChanges(c *gin.Context) {
	postID, ok := s.postID(c)
	if !ok {
		return
	}

	var req requestChangesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	updated, err := s.postSvc.RequestChanges(c.Request.Context(), s.principal(c), s.tenantID(c), postID, req.Comment)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) listComments(c *gin.Context) {
	postID, ok := s.postID(c)
	if !ok {
		return
	}

	comments, err := s.postSvc.ListComments(c.Request.Context(), s.principal(c), s.tenantID(c), postID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

func (s *Server) transitionPost(c *gin.Context, fn func(ctx context.Context, principal access.Principal, tenantID, postID snowflake.ID) (*postdomain.Post, error)) {
	postID, ok := s.postID(c)
	if !ok {
		return
	}

	updated, err := fn(c.Request.Context(), s.principal(c), s.tenantID(c), postID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) postID(c *gin.Context) (snowflake.ID, bool) {
	postID, err := snowflake.ParseString(c.Param("post_id"))
	if err != nil || postID == 0 {
		AbortWithError(c, invalidRequestError())
		return 0, false
	}
	return postID, true
}
