package access

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	tenantdomain "github.com/postdeskhq/postdesk/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Enforcer   *casbin.SyncedEnforcer
	TenantRepo tenantdomain.Repository
}

type ServiceImpl struct {
	db         *gorm.DB
	log        *zap.Logger
	enforcer   *casbin.SyncedEnforcer
	tenantRepo tenantdomain.Repository
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:         p.DB,
		log:        p.Log.Named("access.service"),
		enforcer:   p.Enforcer,
		tenantRepo: p.TenantRepo,
	}
}

func (s *ServiceImpl) CheckAccess(principal Principal, tenantID snowflake.ID) error {
	if principal.UserID == 0 && principal.Role != ActorSystem {
		return ErrUnauthorized
	}
	if tenantID == 0 {
		return ErrTenantRequired
	}
	if principal.IsAdmin() || principal.Role == ActorSystem {
		return nil
	}
	if !principal.MemberOf(tenantID) {
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) CheckActiveAccess(ctx context.Context, principal Principal, tenantID snowflake.ID) error {
	if err := s.CheckAccess(principal, tenantID); err != nil {
		return err
	}

	tenant, err := s.tenantRepo.FindByID(ctx, s.db, tenantID)
	if err != nil {
		return err
	}
	if !tenant.Active && !principal.IsAdmin() {
		return ErrTenantInactive
	}
	return nil
}

func (s *ServiceImpl) Authorize(ctx context.Context, principal Principal, tenantID snowflake.ID, object, action string) error {
	if err := s.CheckActiveAccess(ctx, principal, tenantID); err != nil {
		return err
	}

	role := principal.Role
	if !ValidRole(role) && role != ActorSystem {
		return ErrForbidden
	}

	// Enforce against the role the caller carries right now. Persisting
	// user→role groupings would outlive membership changes, so the decision
	// stays a pure read.
	subject := "role:" + role
	domain := fmt.Sprintf("tenant:%s", tenantID)
	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("user_id", principal.UserID.String()),
			zap.String("subject", subject),
			zap.String("domain", domain),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{"role:agency_admin", "*", "*", "*"},
		{"role:system", "*", "*", "*"},

		{"role:agency", "*", ObjectTenant, ActionTenantView},
		{"role:agency", "*", ObjectTenant, ActionTenantManage},
		{"role:agency", "*", ObjectPost, ActionPostView},
		{"role:agency", "*", ObjectPost, ActionPostCreate},
		{"role:agency", "*", ObjectPost, ActionPostUpdate},
		{"role:agency", "*", ObjectPost, ActionPostSendForApproval},
		{"role:agency", "*", ObjectPost, ActionPostPublish},
		{"role:agency", "*", ObjectPost, ActionPostDeleteRemote},
		{"role:agency", "*", ObjectPost, ActionPostSyncComments},
		{"role:agency", "*", ObjectPost, ActionPostArchive},
		{"role:agency", "*", ObjectJob, ActionJobView},
		{"role:agency", "*", ObjectJob, ActionJobRequeue},
		{"role:agency", "*", ObjectAuditLog, ActionAuditLogView},
		{"role:agency", "*", ObjectInbox, ActionInboxView},
		{"role:agency", "*", ObjectInbox, ActionInboxRead},

		{"role:client", "*", ObjectTenant, ActionTenantView},
		{"role:client", "*", ObjectPost, ActionPostView},
		{"role:client", "*", ObjectPost, ActionPostApprove},
		{"role:client", "*", ObjectPost, ActionPostRequestChanges},
		{"role:client", "*", ObjectInbox, ActionInboxView},
		{"role:client", "*", ObjectInbox, ActionInboxRead},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy[0], policy[1], policy[2], policy[3])
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy[0], policy[1], policy[2], policy[3]); err != nil {
			return err
		}
	}
	return nil
}

var Module = fx.Module("access.service",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)
