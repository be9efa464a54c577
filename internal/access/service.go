package access

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrTenantRequired = errors.New("tenant_required")
	ErrTenantInactive = errors.New("tenant_inactive")
	ErrForbidden      = errors.New("forbidden")
)

const (
	ObjectTenant   = "tenant"
	ObjectPost     = "post"
	ObjectJob      = "job"
	ObjectAuditLog = "audit_log"
	ObjectInbox    = "inbox"
)

const (
	ActionTenantView   = "tenant.view"
	ActionTenantManage = "tenant.manage"

	ActionPostView            = "post.view"
	ActionPostCreate          = "post.create"
	ActionPostUpdate          = "post.update"
	ActionPostSendForApproval = "post.send_for_approval"
	ActionPostApprove         = "post.approve"
	ActionPostRequestChanges  = "post.request_changes"
	ActionPostPublish         = "post.publish"
	ActionPostDeleteRemote    = "post.delete_remote"
	ActionPostSyncComments    = "post.sync_comments"
	ActionPostArchive         = "post.archive"

	ActionJobView    = "job.view"
	ActionJobRequeue = "job.requeue"

	ActionAuditLogView = "audit_log.view"

	ActionInboxView = "inbox.view"
	ActionInboxRead = "inbox.read"
)

// Service is the tenant access guard. It must be consulted before every
// mutating operation; it never writes.
type Service interface {
	// CheckAccess verifies tenant membership only.
	CheckAccess(principal Principal, tenantID snowflake.ID) error
	// CheckActiveAccess additionally loads the tenant and blocks non-admin
	// access to deactivated tenants.
	CheckActiveAccess(ctx context.Context, principal Principal, tenantID snowflake.ID) error
	// Authorize runs CheckActiveAccess and then the role/action policy.
	Authorize(ctx context.Context, principal Principal, tenantID snowflake.ID, object, action string) error
}
