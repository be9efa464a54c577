package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	tenantdomain "github.com/postdeskhq/postdesk/internal/tenant/domain"
)

func (s *Server) createTenant(c *gin.Context) {
	var req tenantdomain.CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	created, err := s.tenantSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// listTenants returns every tenant for admins and the caller's memberships
// for everyone else.
func (s *Server) listTenants(c *gin.Context) {
	ctx := c.Request.Context()
	principal := s.principal(c)

	if principal.IsAdmin() {
		tenants, err := s.tenantSvc.List(ctx)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"tenants": tenants})
		return
	}

	tenants := make([]*tenantdomain.Tenant, 0, len(principal.TenantIDs))
	for _, id := range principal.TenantIDs {
		found, err := s.tenantSvc.GetByID(ctx, id)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		tenants = append(tenants, found)
	}
	c.JSON(http.StatusOK, gin.H{"tenants": tenants})
}

func (s *Server) getTenant(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID := s.tenantID(c)

	if err := s.accessSvc.CheckAccess(s.principal(c), tenantID); err != nil {
		AbortWithError(c, err)
		return
	}

	found, err := s.tenantSvc.GetByID(ctx, tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, found)
}

func (s *Server) updateTenant(c *gin.Context) {
	var req tenantdomain.UpdateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	updated, err := s.tenantSvc.Update(c.Request.Context(), s.tenantID(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) deleteTenant(c *gin.Context) {
	if err := s.tenantSvc.Delete(c.Request.Context(), s.tenantID(c)); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) activateTenant(c *gin.Context) {
	s.setTenantActive(c, true)
}

func (s *Server) deactivateTenant(c *gin.Context) {
	s.setTenantActive(c, false)
}

func (s *Server) setTenantActive(c *gin.Context, active bool) {
	if err := s.tenantSvc.SetActive(c.Request.Context(), s.tenantID(c), active); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listMembers(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID := s.tenantID(c)

	if err := s.accessSvc.CheckAccess(s.principal(c), tenantID); err != nil {
		AbortWithError(c, err)
		return
	}

	members, err := s.tenantSvc.ListMembers(ctx, tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

func (s *Server) addMember(c *gin.Context) {
	var req tenantdomain.AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	member, err := s.tenantSvc.AddMember(c.Request.Context(), s.tenantID(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, member)
}

func (s *Server) removeMember(c *gin.Context) {
	userID, err := snowflake.ParseString(c.Param("user_id"))
	if err != nil || userID == 0 {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.tenantSvc.RemoveMember(c.Request.Context(), s.tenantID(c), userID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
