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
	inboxsvc "github.com/postdeskhq/postdesk/internal/inbox/service"
	"github.com/postdeskhq/postdesk/internal/migration"
	"github.com/postdeskhq/postdesk/internal/outbox/domain"
	"github.com/postdeskhq/postdesk/internal/outbox/repository"
	postdomain "github.com/postdeskhq/postdesk/internal/post/domain"
	postrepo "github.com/postdeskhq/postdesk/internal/post/repository"
	postsvc "github.com/postdeskhq/postdesk/internal/post/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type allowAll struct{}

func (allowAll) CheckAccess(access.Principal, snowflake.ID) error { return nil }
func (allowAll) CheckActiveAccess(context.Context, access.Principal, snowflake.ID) error {
	return nil
}
func (allowAll) Authorize(context.Context, access.Principal, snowflake.ID, string, string) error {
	return nil
}

type outboxFixture struct {
	svc    domain.Service
	posts  postdomain.Service
	db     *gorm.DB
	node   *snowflake.Node
	clock  *clock.FakeClock
	tenant snowflake.ID
	agency access.Principal
}

func newOutboxFixture(t *testing.T) *outboxFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, migration.AutoMigrate(db))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	fc := clock.NewFakeClock(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	log := zaptest.NewLogger(t)

	audit := auditsvc.NewService(auditsvc.Params{
		DB: db, Log: log, GenID: node, Clock: fc, Repo: auditrepo.Provide(),
	})
	inbox := inboxsvc.NewService(inboxsvc.Params{DB: db, Log: log, GenID: node, Clock: fc})
	posts := postsvc.NewService(postsvc.Params{
		DB: db, Log: log, GenID: node, Clock: fc,
		Repo: postrepo.Provide(), Access: allowAll{}, Audit: audit, Inbox: inbox,
	})

	svc := NewService(Params{
		DB: db, Log: log, GenID: node, Clock: fc,
		Repo: repository.Provide(), Access: allowAll{}, Post: posts, Audit: audit,
	})

	tenantID := node.Generate()
	return &outboxFixture{
		svc:    svc,
		posts:  posts,
		db:     db,
		node:   node,
		clock:  fc,
		tenant: tenantID,
		agency: access.Principal{UserID: node.Generate(), Role: access.RoleAgency, TenantIDs: []snowflake.ID{tenantID}},
	}
}

func (f *outboxFixture) enqueue(t *testing.T, job *domain.Job) *domain.Job {
	t.Helper()
	err := f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.EnqueueTx(context.Background(), tx, job)
	})
	require.NoError(t, err)
	return job
}

// approvedPost walks a fresh post to approved so publish completion has a
// legal source state.
func (f *outboxFixture) approvedPost(t *testing.T) *postdomain.Post {
	t.Helper()
	ctx := context.Background()
	client := access.Principal{UserID: f.node.Generate(), Role: access.RoleClient, TenantIDs: []snowflake.ID{f.tenant}}

	post, err := f.posts.Create(ctx, f.agency, postdomain.CreatePostRequest{
		TenantID: f.tenant, Title: "Post", Network: "linkedin",
	})
	require.NoError(t, err)
	_, err = f.posts.SendForApproval(ctx, f.agency, f.tenant, post.ID)
	require.NoError(t, err)
	_, err = f.posts.Approve(ctx, client, f.tenant, post.ID)
	require.NoError(t, err)
	return post
}

func TestEnqueueTx(t *testing.T) {
	f := newOutboxFixture(t)
	ctx := context.Background()

	err := f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.EnqueueTx(ctx, tx, &domain.Job{TenantID: f.tenant, Type: "mystery"})
	})
	assert.ErrorIs(t, err, domain.ErrInvalidJobType)

	job := f.enqueue(t, &domain.Job{
		TenantID: f.tenant,
		Type:     domain.JobTypePublish,
		Payload:  datatypes.JSONMap{domain.PayloadProvider: "linkedin"},
	})
	assert.NotZero(t, job.ID)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.Equal(t, 0, job.Attempts)
}

func TestEnqueueTx_RollsBackWithCaller(t *testing.T) {
	f := newOutboxFixture(t)
	ctx := context.Background()

	boom := assert.AnError
	err := f.db.Transaction(func(tx *gorm.DB) error {
		if err := f.svc.EnqueueTx(ctx, tx, &domain.Job{
			TenantID: f.tenant, Type: domain.JobTypePublish, Payload: datatypes.JSONMap{},
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var n int64
	require.NoError(t, f.db.Table("outbox_jobs").Count(&n).Error)
	assert.Zero(t, n)
}

func TestComplete_PublishSuccessAdvancesPost(t *testing.T) {
	f := newOutboxFixture(t)
	ctx := context.Background()
	post := f.approvedPost(t)

	job := f.enqueue(t, &domain.Job{
		TenantID: f.tenant,
		Type:     domain.JobTypePublish,
		Payload:  datatypes.JSONMap{domain.PayloadPostID: post.ID.String()},
	})

	err := f.svc.Complete(ctx, domain.CompleteRequest{
		JobID:      job.ID,
		Outcome:    domain.OutcomeSuccess,
		ExternalID: "li-post-8841",
	})
	require.NoError(t, err)

	done, err := f.svc.GetByID(ctx, f.agency, f.tenant, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusDone, done.Status)
	require.NotNil(t, done.ExternalID)
	assert.Equal(t, "li-post-8841", *done.ExternalID)

	current, err := f.posts.GetByID(ctx, f.agency, f.tenant, post.ID)
	require.NoError(t, err)
	assert.Equal(t, postdomain.StatusPublished, current.Status)

	// Closing an already-closed job is a conflict.
	err = f.svc.Complete(ctx, domain.CompleteRequest{JobID: job.ID, Outcome: domain.OutcomeSuccess})
	assert.ErrorIs(t, err, domain.ErrAlreadyComplete)
}

func TestComplete_Failure(t *testing.T) {
	f := newOutboxFixture(t)
	ctx := context.Background()
	post := f.approvedPost(t)

	job := f.enqueue(t, &domain.Job{
		TenantID: f.tenant,
		Type:     domain.JobTypePublish,
		Payload:  datatypes.JSONMap{domain.PayloadPostID: post.ID.String()},
	})

	err := f.svc.Complete(ctx, domain.CompleteRequest{
		JobID:   job.ID,
		Outcome: domain.OutcomeFailure,
		Reason:  "provider returned 502",
	})
	require.NoError(t, err)

	failed, err := f.svc.GetByID(ctx, f.agency, f.tenant, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, failed.Status)
	require.NotNil(t, failed.LastError)
	assert.Equal(t, "provider returned 502", *failed.LastError)

	// A failed delivery must not move the post.
	current, err := f.posts.GetByID(ctx, f.agency, f.tenant, post.ID)
	require.NoError(t, err)
	assert.Equal(t, postdomain.StatusApproved, current.Status)
}

func TestComplete_Validation(t *testing.T) {
	f := newOutboxFixture(t)
	ctx := context.Background()

	err := f.svc.Complete(ctx, domain.CompleteRequest{JobID: f.node.Generate(), Outcome: "sideways"})
	assert.ErrorIs(t, err, domain.ErrInvalidOutcome)

	err = f.svc.Complete(ctx, domain.CompleteRequest{JobID: f.node.Generate(), Outcome: domain.OutcomeSuccess})
	assert.ErrorIs(t, err, domain.ErrJobNotFound)

	// A publish job without a usable post id cannot close successfully.
	job := f.enqueue(t, &domain.Job{
		TenantID: f.tenant,
		Type:     domain.JobTypePublish,
		Payload:  datatypes.JSONMap{domain.PayloadProvider: "linkedin"},
	})
	err = f.svc.Complete(ctx, domain.CompleteRequest{JobID: job.ID, Outcome: domain.OutcomeSuccess})
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
}

func TestRequeue(t *testing.T) {
	f := newOutboxFixture(t)
	ctx := context.Background()

	job := f.enqueue(t, &domain.Job{
		TenantID: f.tenant, Type: domain.JobTypeSyncComments, Payload: datatypes.JSONMap{},
	})

	// Pending jobs have nothing to requeue.
	err := f.svc.Requeue(ctx, f.agency, f.tenant, job.ID)
	assert.ErrorIs(t, err, domain.ErrNotRequeueable)

	require.NoError(t, f.svc.Complete(ctx, domain.CompleteRequest{
		JobID: job.ID, Outcome: domain.OutcomeFailure, Reason: "timeout",
	}))

	require.NoError(t, f.svc.Requeue(ctx, f.agency, f.tenant, job.ID))

	requeued, err := f.svc.GetByID(ctx, f.agency, f.tenant, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, requeued.Status)
	assert.Equal(t, 0, requeued.Attempts)
	assert.Nil(t, requeued.LastError)
}

func TestRequeue_WrongTenant(t *testing.T) {
	f := newOutboxFixture(t)
	ctx := context.Background()

	job := f.enqueue(t, &domain.Job{
		TenantID: f.tenant, Type: domain.JobTypeSyncComments, Payload: datatypes.JSONMap{},
	})
	require.NoError(t, f.svc.Complete(ctx, domain.CompleteRequest{
		JobID: job.ID, Outcome: domain.OutcomeFailure, Reason: "timeout",
	}))

	otherTenant := f.node.Generate()
	err := f.svc.Requeue(ctx, f.agency, otherTenant, job.ID)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestGetByID_TenantScoped(t *testing.T) {
	f := newOutboxFixture(t)
	ctx := context.Background()

	job := f.enqueue(t, &domain.Job{
		TenantID: f.tenant, Type: domain.JobTypePublish, Payload: datatypes.JSONMap{},
	})

	_, err := f.svc.GetByID(ctx, f.agency, f.node.Generate(), job.ID)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestList_FiltersByStatus(t *testing.T) {
	f := newOutboxFixture(t)
	ctx := context.Background()

	pending := f.enqueue(t, &domain.Job{
		TenantID: f.tenant, Type: domain.JobTypePublish, Payload: datatypes.JSONMap{},
	})
	failed := f.enqueue(t, &domain.Job{
		TenantID: f.tenant, Type: domain.JobTypeDeleteRemote, Payload: datatypes.JSONMap{},
	})
	require.NoError(t, f.svc.Complete(ctx, domain.CompleteRequest{
		JobID: failed.ID, Outcome: domain.OutcomeFailure, Reason: "gone",
	}))

	all, err := f.svc.List(ctx, f.agency, f.tenant, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyPending, err := f.svc.List(ctx, f.agency, f.tenant, domain.JobStatusPending)
	require.NoError(t, err)
	require.Len(t, onlyPending, 1)
	assert.Equal(t, pending.ID, onlyPending[0].ID)
}
