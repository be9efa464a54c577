package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	outboxdomain "github.com/postdeskhq/postdesk/internal/outbox/domain"
)

// HeaderWorkerToken authenticates the external worker's completion callback.
const HeaderWorkerToken = "X-Worker-Token"

type completeJobRequest struct {
	Outcome    string `json:"outcome"`
	ExternalID string `json:"external_id"`
	Reason     string `json:"reason"`
}

func (s *Server) listJobs(c *gin.Context) {
	status := outboxdomain.JobStatus(strings.TrimSpace(c.Query("status")))

	jobs, err := s.outboxSvc.List(c.Request.Context(), s.principal(c), s.tenantID(c), status)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (s *Server) getJob(c *gin.Context) {
	jobID, ok := s.jobID(c)
	if !ok {
		return
	}

	job, err := s.outboxSvc.GetByID(c.Request.Context(), s.principal(c), s.tenantID(c), jobID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) requeueJob(c *gin.Context) {
	jobID, ok := s.jobID(c)
	if !ok {
		return
	}

	if err := s.outboxSvc.Requeue(c.Request.Context(), s.principal(c), s.tenantID(c), jobID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// WorkerAuth validates the shared worker token. With no token configured the
// callback surface is open, which is only acceptable for local development.
func (s *Server) WorkerAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := strings.TrimSpace(s.cfg.WorkerToken)
		if expected == "" {
			c.Next()
			return
		}
		provided := strings.TrimSpace(c.GetHeader(HeaderWorkerToken))
		if subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func (s *Server) completeJob(c *gin.Context) {
	jobID, ok := s.jobID(c)
	if !ok {
		return
	}

	var req completeJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	err := s.outboxSvc.Complete(c.Request.Context(), outboxdomain.CompleteRequest{
		JobID:      jobID,
		Outcome:    outboxdomain.Outcome(strings.TrimSpace(req.Outcome)),
		ExternalID: strings.TrimSpace(req.ExternalID),
		Reason:     strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) jobID(c *gin.Context) (snowflake.ID, bool) {
	jobID, err := snowflake.ParseString(c.Param("job_id"))
	if err != nil || jobID == 0 {
		AbortWithError(c, invalidRequestError())
		return 0, false
	}
	return jobID, true
}
