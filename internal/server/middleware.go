package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/postdeskhq/postdesk/internal/access"
	"github.com/postdeskhq/postdesk/pkg/tenantctx"
)

// Authentication happens upstream; the gateway forwards the verified identity
// in these headers.
const (
	HeaderUserID = "X-User-Id"
	HeaderRole   = "X-User-Role"

	contextPrincipalKey       = "principal"
	contextTenantIDKey        = "tenant_id"
	contextMembershipRolesKey = "membership_roles"
)

// PrincipalContext builds the request principal from the gateway identity
// headers and the caller's tenant memberships.
func (s *Server) PrincipalContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		rawUser := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if rawUser == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		userID, err := snowflake.ParseString(rawUser)
		if err != nil || userID == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		role := strings.TrimSpace(c.GetHeader(HeaderRole))
		if role != "" && !access.ValidRole(role) {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		memberships, err := s.tenantSvc.ListMemberships(c.Request.Context(), userID)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		tenantIDs := make([]snowflake.ID, 0, len(memberships))
		roles := make(map[snowflake.ID]string, len(memberships))
		for _, m := range memberships {
			tenantIDs = append(tenantIDs, m.TenantID)
			roles[m.TenantID] = m.Role
		}

		c.Set(contextPrincipalKey, access.Principal{
			UserID:    userID,
			Role:      role,
			TenantIDs: tenantIDs,
		})
		c.Set(contextMembershipRolesKey, roles)
		c.Next()
	}
}

// TenantContext resolves the :tenant_id path parameter, narrows the principal
// role to the membership role for that tenant, and stamps the request context
// so downstream logs carry the tenant.
func (s *Server) TenantContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, err := snowflake.ParseString(c.Param("tenant_id"))
		if err != nil || tenantID == 0 {
			AbortWithError(c, access.ErrTenantRequired)
			return
		}

		principal := s.principal(c)
		if !principal.IsAdmin() {
			if roles, ok := c.Get(contextMembershipRolesKey); ok {
				if role, ok := roles.(map[snowflake.ID]string)[tenantID]; ok {
					principal.Role = role
					c.Set(contextPrincipalKey, principal)
				}
			}
		}

		c.Set(contextTenantIDKey, tenantID)
		c.Request = c.Request.WithContext(tenantctx.WithTenantID(c.Request.Context(), tenantID))
		c.Next()
	}
}

// RequireAdmin gates the tenant management surface.
func (s *Server) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.principal(c).IsAdmin() {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

// RateLimit throttles mutating requests per tenant when a limiter is
// configured.
func (s *Server) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}
		switch c.Request.Method {
		case http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete:
		default:
			c.Next()
			return
		}

		result, err := s.limiter.Allow(c.Request.Context(), s.tenantID(c))
		if err != nil {
			// Rate limiting failing open beats blocking the API on redis.
			c.Next()
			return
		}
		if !result.Allowed {
			if result.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())+1))
			}
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

func (s *Server) principal(c *gin.Context) access.Principal {
	value, ok := c.Get(contextPrincipalKey)
	if !ok {
		return access.Principal{}
	}
	principal, _ := value.(access.Principal)
	return principal
}

func (s *Server) tenantID(c *gin.Context) snowflake.ID {
	value, ok := c.Get(contextTenantIDKey)
	if !ok {
		return 0
	}
	id, _ := value.(snowflake.ID)
	return id
}
