package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/postdeskhq/postdesk/internal/access"
	auditrepo "github.com/postdeskhq/postdesk/internal/audit/repository"
	auditsvc "github.com/postdeskhq/postdesk/internal/audit/service"
	"github.com/postdeskhq/postdesk/internal/clock"
	inboxdomain "github.com/postdeskhq/postdesk/internal/inbox/domain"
	inboxsvc "github.com/postdeskhq/postdesk/internal/inbox/service"
	"github.com/postdeskhq/postdesk/internal/migration"
	"github.com/postdeskhq/postdesk/internal/post/domain"
	"github.com/postdeskhq/postdesk/internal/post/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

// allowAll grants every principal every action. Service tests exercise the
// state machine, not the guard; the guard has its own tests.
type allowAll struct{}

func (allowAll) CheckAccess(access.Principal, snowflake.ID) error { return nil }
func (allowAll) CheckActiveAccess(context.Context, access.Principal, snowflake.ID) error {
	return nil
}
func (allowAll) Authorize(context.Context, access.Principal, snowflake.ID, string, string) error {
	return nil
}

type postFixture struct {
	svc    domain.Service
	db     *gorm.DB
	node   *snowflake.Node
	clock  *clock.FakeClock
	tenant snowflake.ID
	agency access.Principal
	client access.Principal
}

func newPostFixture(t *testing.T) *postFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, migration.AutoMigrate(db))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fc := clock.NewFakeClock(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	log := zaptest.NewLogger(t)

	audit := auditsvc.NewService(auditsvc.Params{
		DB: db, Log: log, GenID: node, Clock: fc, Repo: auditrepo.Provide(),
	})
	inbox := inboxsvc.NewService(inboxsvc.Params{DB: db, Log: log, GenID: node, Clock: fc})

	svc := NewService(Params{
		DB:     db,
		Log:    log,
		GenID:  node,
		Clock:  fc,
		Repo:   repository.Provide(),
		Access: allowAll{},
		Audit:  audit,
		Inbox:  inbox,
	})

	tenantID := node.Generate()
	return &postFixture{
		svc:    svc,
		db:     db,
		node:   node,
		clock:  fc,
		tenant: tenantID,
		agency: access.Principal{UserID: node.Generate(), Role: access.RoleAgency, TenantIDs: []snowflake.ID{tenantID}},
		client: access.Principal{UserID: node.Generate(), Role: access.RoleClient, TenantIDs: []snowflake.ID{tenantID}},
	}
}

func (f *postFixture) createPost(t *testing.T, title string) *domain.Post {
	t.Helper()
	post, err := f.svc.Create(context.Background(), f.agency, domain.CreatePostRequest{
		TenantID: f.tenant,
		Title:    title,
		Body:     "body",
		Network:  "linkedin",
	})
	require.NoError(t, err)
	return post
}

func (f *postFixture) auditCount(t *testing.T, action string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Table("audit_logs").
		Where("tenant_id = ? AND action = ?", f.tenant, action).Count(&n).Error)
	return n
}

func TestCreatePost(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()

	post := f.createPost(t, "  Launch teaser  ")
	assert.Equal(t, domain.StatusDraft, post.Status)
	assert.Equal(t, "Launch teaser", post.Title)
	assert.Equal(t, int64(1), f.auditCount(t, access.ActionPostCreate))

	_, err := f.svc.Create(ctx, f.agency, domain.CreatePostRequest{TenantID: f.tenant, Title: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidTitle)
}

func TestApprovalFlow(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()
	post := f.createPost(t, "Quarterly recap")

	sent, err := f.svc.SendForApproval(ctx, f.agency, f.tenant, post.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingClient, sent.Status)

	// The client gets a validation notification for the transition.
	var items []*inboxdomain.InboxItem
	require.NoError(t, f.db.Where("tenant_id = ?", f.tenant).Find(&items).Error)
	require.Len(t, items, 1)
	assert.Nil(t, items[0].ReadAt)

	approved, err := f.svc.Approve(ctx, f.client, f.tenant, post.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, approved.Status)

	// A second approve finds the post no longer pending.
	_, err = f.svc.Approve(ctx, f.client, f.tenant, post.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestClientCannotSendForApproval(t *testing.T) {
	f := newPostFixture(t)
	post := f.createPost(t, "Draft post")

	_, err := f.svc.SendForApproval(context.Background(), f.client, f.tenant, post.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestRequestChanges(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()
	post := f.createPost(t, "Needs work")
	_, err := f.svc.SendForApproval(ctx, f.agency, f.tenant, post.ID)
	require.NoError(t, err)

	_, err = f.svc.RequestChanges(ctx, f.client, f.tenant, post.ID, "   ")
	assert.ErrorIs(t, err, domain.ErrCommentRequired)

	// The empty-comment rejection must not have moved the post.
	current, err := f.svc.GetByID(ctx, f.client, f.tenant, post.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingClient, current.Status)

	changed, err := f.svc.RequestChanges(ctx, f.client, f.tenant, post.ID, "Tone down the opener")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusChangesRequested, changed.Status)

	comments, err := f.svc.ListComments(ctx, f.agency, f.tenant, post.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, access.RoleClient, comments[0].AuthorRole)
	assert.Equal(t, "Tone down the opener", comments[0].Body)

	// The agency revises and resubmits.
	resent, err := f.svc.SendForApproval(ctx, f.agency, f.tenant, post.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingClient, resent.Status)
}

func TestUpdateOnlyWhileEditable(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()
	post := f.createPost(t, "Editable")

	title := "Edited title"
	updated, err := f.svc.Update(ctx, f.agency, domain.UpdatePostRequest{
		TenantID: f.tenant, PostID: post.ID, Title: &title,
	})
	require.NoError(t, err)
	assert.Equal(t, "Edited title", updated.Title)

	_, err = f.svc.SendForApproval(ctx, f.agency, f.tenant, post.ID)
	require.NoError(t, err)

	body := "new body"
	_, err = f.svc.Update(ctx, f.agency, domain.UpdatePostRequest{
		TenantID: f.tenant, PostID: post.ID, Body: &body,
	})
	assert.ErrorIs(t, err, domain.ErrNotEditable)

	// changes_requested reopens editing.
	_, err = f.svc.RequestChanges(ctx, f.client, f.tenant, post.ID, "swap the image")
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, f.agency, domain.UpdatePostRequest{
		TenantID: f.tenant, PostID: post.ID, Body: &body,
	})
	assert.NoError(t, err)
}

func TestMarkScheduledAndPublished(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()
	post := f.createPost(t, "Scheduled launch")
	_, err := f.svc.SendForApproval(ctx, f.agency, f.tenant, post.ID)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, f.client, f.tenant, post.ID)
	require.NoError(t, err)

	err = f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.MarkScheduledTx(ctx, tx, f.tenant, post.ID)
	})
	require.NoError(t, err)

	current, err := f.svc.GetByID(ctx, f.agency, f.tenant, post.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusScheduled, current.Status)

	err = f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.MarkPublishedTx(ctx, tx, f.tenant, post.ID)
	})
	require.NoError(t, err)

	current, err = f.svc.GetByID(ctx, f.agency, f.tenant, post.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPublished, current.Status)

	// Publishing twice is rejected by the guard on the current status.
	err = f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.MarkPublishedTx(ctx, tx, f.tenant, post.ID)
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestPublishDirectlyFromApproved(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()
	post := f.createPost(t, "Immediate publish")
	_, err := f.svc.SendForApproval(ctx, f.agency, f.tenant, post.ID)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, f.client, f.tenant, post.ID)
	require.NoError(t, err)

	err = f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.MarkPublishedTx(ctx, tx, f.tenant, post.ID)
	})
	require.NoError(t, err)

	current, err := f.svc.GetByID(ctx, f.agency, f.tenant, post.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPublished, current.Status)
}

func TestArchive(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()
	post := f.createPost(t, "Old campaign")

	archived, err := f.svc.Archive(ctx, f.agency, f.tenant, post.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusArchived, archived.Status)

	_, err = f.svc.SendForApproval(ctx, f.agency, f.tenant, post.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.svc.Archive(ctx, f.agency, f.tenant, post.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestGetByID_UnknownPost(t *testing.T) {
	f := newPostFixture(t)
	_, err := f.svc.GetByID(context.Background(), f.agency, f.tenant, f.node.Generate())
	assert.ErrorIs(t, err, domain.ErrPostNotFound)
}

func TestListPosts(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		f.createPost(t, "Post")
		f.clock.Advance(time.Minute)
	}

	req := domain.ListPostsRequest{TenantID: f.tenant}
	req.PageSize = 2
	page1, err := f.svc.List(ctx, f.agency, req)
	require.NoError(t, err)
	assert.Len(t, page1.Posts, 2)
	assert.True(t, page1.HasMore)
	require.NotEmpty(t, page1.NextPageToken)

	// Newest first.
	assert.True(t, page1.Posts[0].CreatedAt.After(page1.Posts[1].CreatedAt))

	req.PageToken = page1.NextPageToken
	page2, err := f.svc.List(ctx, f.agency, req)
	require.NoError(t, err)
	assert.Len(t, page2.Posts, 2)
	assert.True(t, page2.HasMore)

	req.PageToken = page2.NextPageToken
	page3, err := f.svc.List(ctx, f.agency, req)
	require.NoError(t, err)
	assert.Len(t, page3.Posts, 1)
	assert.False(t, page3.HasMore)
	assert.Empty(t, page3.NextPageToken)
}

func TestListPosts_StatusFilter(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()

	post := f.createPost(t, "Pending one")
	f.createPost(t, "Draft one")
	_, err := f.svc.SendForApproval(ctx, f.agency, f.tenant, post.ID)
	require.NoError(t, err)

	req := domain.ListPostsRequest{TenantID: f.tenant, Status: domain.StatusPendingClient}
	resp, err := f.svc.List(ctx, f.agency, req)
	require.NoError(t, err)
	require.Len(t, resp.Posts, 1)
	assert.Equal(t, post.ID, resp.Posts[0].ID)

	req.Status = "bogus"
	_, err = f.svc.List(ctx, f.agency, req)
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}
