package access

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	tenantdomain "github.com/postdeskhq/postdesk/internal/tenant/domain"
	tenantrepo "github.com/postdeskhq/postdesk/internal/tenant/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type accessFixture struct {
	svc  Service
	db   *gorm.DB
	node *snowflake.Node
}

func newAccessFixture(t *testing.T) *accessFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&tenantdomain.Tenant{}, &tenantdomain.TenantMember{}))

	enforcer, err := NewEnforcer(db)
	require.NoError(t, err)

	node, err := snowflake.NewNode(6)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:         db,
		Log:        zaptest.NewLogger(t),
		Enforcer:   enforcer,
		TenantRepo: tenantrepo.Provide(),
	})
	return &accessFixture{svc: svc, db: db, node: node}
}

func (f *accessFixture) seedTenant(t *testing.T, active bool) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, f.db.Create(&tenantdomain.Tenant{
		ID: id, Name: "Tenant", Slug: "tenant-" + id.String(), Active: active,
		CreatedAt: now, UpdatedAt: now,
	}).Error)
	return id
}

func TestCheckAccess(t *testing.T) {
	f := newAccessFixture(t)
	tenantID := f.seedTenant(t, true)
	userID := f.node.Generate()

	member := Principal{UserID: userID, Role: RoleAgency, TenantIDs: []snowflake.ID{tenantID}}
	assert.NoError(t, f.svc.CheckAccess(member, tenantID))

	outsider := Principal{UserID: userID, Role: RoleAgency}
	assert.ErrorIs(t, f.svc.CheckAccess(outsider, tenantID), ErrForbidden)

	anonymous := Principal{Role: RoleAgency}
	assert.ErrorIs(t, f.svc.CheckAccess(anonymous, tenantID), ErrUnauthorized)

	assert.ErrorIs(t, f.svc.CheckAccess(member, 0), ErrTenantRequired)

	// Admins cross tenant boundaries without membership rows.
	admin := Principal{UserID: userID, Role: RoleAgencyAdmin}
	assert.NoError(t, f.svc.CheckAccess(admin, tenantID))
}

func TestCheckActiveAccess_InactiveTenant(t *testing.T) {
	f := newAccessFixture(t)
	ctx := context.Background()
	tenantID := f.seedTenant(t, false)
	userID := f.node.Generate()

	member := Principal{UserID: userID, Role: RoleAgency, TenantIDs: []snowflake.ID{tenantID}}
	assert.ErrorIs(t, f.svc.CheckActiveAccess(ctx, member, tenantID), ErrTenantInactive)

	admin := Principal{UserID: userID, Role: RoleAgencyAdmin}
	assert.NoError(t, f.svc.CheckActiveAccess(ctx, admin, tenantID))
}

func TestAuthorize_RolePolicy(t *testing.T) {
	f := newAccessFixture(t)
	ctx := context.Background()
	tenantID := f.seedTenant(t, true)

	agency := Principal{UserID: f.node.Generate(), Role: RoleAgency, TenantIDs: []snowflake.ID{tenantID}}
	client := Principal{UserID: f.node.Generate(), Role: RoleClient, TenantIDs: []snowflake.ID{tenantID}}

	assert.NoError(t, f.svc.Authorize(ctx, agency, tenantID, ObjectPost, ActionPostCreate))
	assert.ErrorIs(t, f.svc.Authorize(ctx, client, tenantID, ObjectPost, ActionPostCreate), ErrForbidden)

	assert.NoError(t, f.svc.Authorize(ctx, client, tenantID, ObjectPost, ActionPostApprove))
	assert.ErrorIs(t, f.svc.Authorize(ctx, agency, tenantID, ObjectPost, ActionPostApprove), ErrForbidden)

	assert.NoError(t, f.svc.Authorize(ctx, client, tenantID, ObjectPost, ActionPostRequestChanges))
	assert.ErrorIs(t, f.svc.Authorize(ctx, client, tenantID, ObjectJob, ActionJobRequeue), ErrForbidden)
	assert.NoError(t, f.svc.Authorize(ctx, agency, tenantID, ObjectJob, ActionJobRequeue))

	unknownRole := Principal{UserID: f.node.Generate(), Role: "auditor", TenantIDs: []snowflake.ID{tenantID}}
	assert.ErrorIs(t, f.svc.Authorize(ctx, unknownRole, tenantID, ObjectPost, ActionPostView), ErrForbidden)
}

func TestAuthorize_RoleChangeTakesEffect(t *testing.T) {
	f := newAccessFixture(t)
	ctx := context.Background()
	tenantID := f.seedTenant(t, true)
	userID := f.node.Generate()

	asAgency := Principal{UserID: userID, Role: RoleAgency, TenantIDs: []snowflake.ID{tenantID}}
	require.NoError(t, f.svc.Authorize(ctx, asAgency, tenantID, ObjectPost, ActionPostPublish))
	require.NoError(t, f.svc.Authorize(ctx, asAgency, tenantID, ObjectPost, ActionPostCreate))

	// A demoted member carries only the new role. Earlier agency requests
	// must leave no grant behind.
	asClient := Principal{UserID: userID, Role: RoleClient, TenantIDs: []snowflake.ID{tenantID}}
	assert.ErrorIs(t, f.svc.Authorize(ctx, asClient, tenantID, ObjectPost, ActionPostPublish), ErrForbidden)
	assert.ErrorIs(t, f.svc.Authorize(ctx, asClient, tenantID, ObjectPost, ActionPostCreate), ErrForbidden)
	assert.ErrorIs(t, f.svc.Authorize(ctx, asClient, tenantID, ObjectJob, ActionJobRequeue), ErrForbidden)
	assert.NoError(t, f.svc.Authorize(ctx, asClient, tenantID, ObjectPost, ActionPostApprove))

	// And a promotion works without any stored grouping either.
	assert.NoError(t, f.svc.Authorize(ctx, asAgency, tenantID, ObjectPost, ActionPostPublish))

	// Authorize stays a pure read: no user grouping rows accumulate.
	groups, err := f.svc.(*ServiceImpl).enforcer.GetGroupingPolicy()
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestAuthorize_AdminAndSystemBypass(t *testing.T) {
	f := newAccessFixture(t)
	ctx := context.Background()
	tenantID := f.seedTenant(t, true)

	admin := Principal{UserID: f.node.Generate(), Role: RoleAgencyAdmin}
	assert.NoError(t, f.svc.Authorize(ctx, admin, tenantID, ObjectTenant, ActionTenantManage))

	system := Principal{Role: ActorSystem}
	assert.NoError(t, f.svc.Authorize(ctx, system, tenantID, ObjectPost, ActionPostPublish))
}

func TestValidRole(t *testing.T) {
	assert.True(t, ValidRole(RoleAgencyAdmin))
	assert.True(t, ValidRole(RoleAgency))
	assert.True(t, ValidRole(RoleClient))
	assert.False(t, ValidRole(ActorSystem))
	assert.False(t, ValidRole(""))
	assert.False(t, ValidRole("owner"))
}
