// Package access decides whether a principal may act inside a tenant.
package access

import (
	"github.com/bwmarrin/snowflake"
)

const (
	RoleAgencyAdmin = "agency_admin"
	RoleAgency      = "agency"
	RoleClient      = "client"

	// ActorSystem marks writes performed by the job worker callback.
	ActorSystem = "system"
)

// Principal is the authenticated actor supplied by the session collaborator.
type Principal struct {
	UserID    snowflake.ID
	Role      string
	TenantIDs []snowflake.ID
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAgencyAdmin
}

func (p Principal) MemberOf(tenantID snowflake.ID) bool {
	for _, id := range p.TenantIDs {
		if id == tenantID {
			return true
		}
	}
	return false
}

func ValidRole(role string) bool {
	switch role {
	case RoleAgencyAdmin, RoleAgency, RoleClient:
		return true
	default:
		return false
	}
}
