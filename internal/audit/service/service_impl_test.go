package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/postdeskhq/postdesk/internal/audit/domain"
	"github.com/postdeskhq/postdesk/internal/audit/repository"
	"github.com/postdeskhq/postdesk/internal/clock"
	"github.com/postdeskhq/postdesk/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type auditFixture struct {
	svc   auditdomain.Service
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
}

func newAuditFixture(t *testing.T) *auditFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(7)
	require.NoError(t, err)
	fc := clock.NewFakeClock(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))

	svc := NewService(Params{
		DB: db, Log: zaptest.NewLogger(t), GenID: node, Clock: fc, Repo: repository.Provide(),
	})
	return &auditFixture{svc: svc, db: db, node: node, clock: fc}
}

func TestAppend(t *testing.T) {
	f := newAuditFixture(t)
	ctx := context.Background()
	tenantID := f.node.Generate()
	actorID := f.node.Generate()
	entityID := f.node.Generate()

	err := f.svc.Append(ctx, auditdomain.Entry{
		TenantID:   tenantID,
		ActorRole:  "agency",
		ActorID:    &actorID,
		Action:     "post.create",
		EntityType: "post",
		EntityID:   &entityID,
		Metadata:   map[string]any{"title": "Launch"},
	})
	require.NoError(t, err)

	var row auditdomain.AuditLog
	require.NoError(t, f.db.First(&row).Error)
	assert.Equal(t, tenantID, row.TenantID)
	assert.Equal(t, "post.create", row.Action)
	require.NotNil(t, row.ActorID)
	assert.Equal(t, actorID.String(), *row.ActorID)
	assert.Equal(t, "Launch", row.Metadata["title"])
}

func TestAppend_Validation(t *testing.T) {
	f := newAuditFixture(t)
	ctx := context.Background()

	err := f.svc.Append(ctx, auditdomain.Entry{TenantID: f.node.Generate(), Action: "  "})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)

	err = f.svc.Append(ctx, auditdomain.Entry{Action: "post.create"})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTenant)
}

func TestAppend_CapturesRequestID(t *testing.T) {
	f := newAuditFixture(t)
	ctx := correlation.ContextWithCorrelationID(context.Background(), "req-123")

	require.NoError(t, f.svc.Append(ctx, auditdomain.Entry{
		TenantID: f.node.Generate(), ActorRole: "agency", Action: "post.update", EntityType: "post",
	}))

	var row auditdomain.AuditLog
	require.NoError(t, f.db.First(&row).Error)
	assert.Equal(t, "req-123", row.Metadata["request_id"])
}

func TestAppendTx_RollsBackWithCaller(t *testing.T) {
	f := newAuditFixture(t)
	ctx := context.Background()

	err := f.db.Transaction(func(tx *gorm.DB) error {
		if err := f.svc.AppendTx(ctx, tx, auditdomain.Entry{
			TenantID: f.node.Generate(), ActorRole: "agency", Action: "post.create", EntityType: "post",
		}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)

	var n int64
	require.NoError(t, f.db.Table("audit_logs").Count(&n).Error)
	assert.Zero(t, n)
}

func TestList(t *testing.T) {
	f := newAuditFixture(t)
	ctx := context.Background()
	tenantID := f.node.Generate()
	otherTenant := f.node.Generate()

	actions := []string{"post.create", "post.update", "post.approve"}
	for _, action := range actions {
		require.NoError(t, f.svc.Append(ctx, auditdomain.Entry{
			TenantID: tenantID, ActorRole: "agency", Action: action, EntityType: "post",
		}))
		f.clock.Advance(time.Minute)
	}
	require.NoError(t, f.svc.Append(ctx, auditdomain.Entry{
		TenantID: otherTenant, ActorRole: "agency", Action: "post.create", EntityType: "post",
	}))

	resp, err := f.svc.List(ctx, auditdomain.ListAuditLogRequest{TenantID: tenantID})
	require.NoError(t, err)
	assert.Len(t, resp.AuditLogs, 3)

	// Newest first.
	assert.Equal(t, "post.approve", resp.AuditLogs[0].Action)

	byAction, err := f.svc.List(ctx, auditdomain.ListAuditLogRequest{
		TenantID: tenantID, Action: "post.update",
	})
	require.NoError(t, err)
	require.Len(t, byAction.AuditLogs, 1)
	assert.Equal(t, "post.update", byAction.AuditLogs[0].Action)
}

func TestList_Pagination(t *testing.T) {
	f := newAuditFixture(t)
	ctx := context.Background()
	tenantID := f.node.Generate()

	for i := 0; i < 3; i++ {
		require.NoError(t, f.svc.Append(ctx, auditdomain.Entry{
			TenantID: tenantID, ActorRole: "agency", Action: "post.create", EntityType: "post",
		}))
		f.clock.Advance(time.Minute)
	}

	req := auditdomain.ListAuditLogRequest{TenantID: tenantID}
	req.PageSize = 2
	page1, err := f.svc.List(ctx, req)
	require.NoError(t, err)
	assert.Len(t, page1.AuditLogs, 2)
	require.True(t, page1.HasMore)

	req.PageToken = page1.NextPageToken
	page2, err := f.svc.List(ctx, req)
	require.NoError(t, err)
	assert.Len(t, page2.AuditLogs, 1)
	assert.False(t, page2.HasMore)

	req.PageToken = "not-base64!"
	_, err = f.svc.List(ctx, req)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)
}

func TestList_Validation(t *testing.T) {
	f := newAuditFixture(t)
	ctx := context.Background()

	_, err := f.svc.List(ctx, auditdomain.ListAuditLogRequest{})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTenant)

	start := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	_, err = f.svc.List(ctx, auditdomain.ListAuditLogRequest{
		TenantID: f.node.Generate(), StartAt: &start, EndAt: &end,
	})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)
}
