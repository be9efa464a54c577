package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/postdeskhq/postdesk/internal/outbox/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func newRepoDB(t *testing.T) (*gorm.DB, *snowflake.Node) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.Job{}))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	return db, node
}

func seedJob(t *testing.T, db *gorm.DB, node *snowflake.Node, status domain.JobStatus, createdAt time.Time) *domain.Job {
	t.Helper()
	job := &domain.Job{
		ID:        node.Generate(),
		TenantID:  node.Generate(),
		Type:      domain.JobTypePublish,
		Payload:   datatypes.JSONMap{},
		Status:    status,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	require.NoError(t, db.Create(job).Error)
	return job
}

func TestClaim(t *testing.T) {
	db, node := newRepoDB(t)
	r := Provide()
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	job := seedJob(t, db, node, domain.JobStatusPending, now)

	claimed, ok, err := r.Claim(ctx, db, job.ID, now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.JobStatusProcessing, claimed.Status)
	assert.Equal(t, 1, claimed.Attempts)
	require.NotNil(t, claimed.LockedAt)

	// Claimed means claimed: a second worker loses the race.
	_, ok, err = r.Claim(ctx, db, job.ID, now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClaim_RespectsBackoffWindow(t *testing.T) {
	db, node := newRepoDB(t)
	r := Provide()
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	job := seedJob(t, db, node, domain.JobStatusPending, now)
	next := now.Add(time.Minute)
	require.NoError(t, db.Model(&domain.Job{}).Where("id = ?", job.ID).
		Update("next_attempt_at", next).Error)

	_, ok, err := r.Claim(ctx, db, job.ID, now)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = r.Claim(ctx, db, job.ID, next)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRelease(t *testing.T) {
	db, node := newRepoDB(t)
	r := Provide()
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	job := seedJob(t, db, node, domain.JobStatusPending, now)
	_, ok, err := r.Claim(ctx, db, job.ID, now)
	require.NoError(t, err)
	require.True(t, ok)

	next := now.Add(time.Minute)
	require.NoError(t, r.Release(ctx, db, job.ID, "connection reset", &next, false, now))

	released, err := r.FindByID(ctx, db, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, released.Status)
	assert.Nil(t, released.LockedAt)
	require.NotNil(t, released.NextAttemptAt)
	require.NotNil(t, released.LastError)
	assert.Equal(t, "connection reset", *released.LastError)
	assert.Equal(t, 1, released.Attempts)
}

func TestRelease_FailsExhaustedJob(t *testing.T) {
	db, node := newRepoDB(t)
	r := Provide()
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	job := seedJob(t, db, node, domain.JobStatusPending, now)
	_, ok, err := r.Claim(ctx, db, job.ID, now)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, r.Release(ctx, db, job.ID, "gave up", nil, true, now))

	failed, err := r.FindByID(ctx, db, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, failed.Status)
}

func TestPendingIDs(t *testing.T) {
	db, node := newRepoDB(t)
	r := Provide()
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	oldest := seedJob(t, db, node, domain.JobStatusPending, base)
	middle := seedJob(t, db, node, domain.JobStatusPending, base.Add(time.Minute))
	newest := seedJob(t, db, node, domain.JobStatusPending, base.Add(2*time.Minute))
	seedJob(t, db, node, domain.JobStatusDone, base)

	// A job waiting out its backoff is not dispatchable yet.
	future := base.Add(time.Hour)
	require.NoError(t, db.Model(&domain.Job{}).Where("id = ?", middle.ID).
		Update("next_attempt_at", future).Error)

	now := base.Add(5 * time.Minute)
	ids, err := r.PendingIDs(ctx, db, 10, now)
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{oldest.ID, newest.ID}, ids)

	// Oldest first under a tight limit.
	ids, err = r.PendingIDs(ctx, db, 1, now)
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{oldest.ID}, ids)
}

func TestReclaimStale(t *testing.T) {
	db, node := newRepoDB(t)
	r := Provide()
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	stale := seedJob(t, db, node, domain.JobStatusPending, base)
	fresh := seedJob(t, db, node, domain.JobStatusPending, base)

	_, ok, err := r.Claim(ctx, db, stale.ID, base)
	require.NoError(t, err)
	require.True(t, ok)

	// The fresh claim happens well inside the lease.
	later := base.Add(110 * time.Second)
	_, ok, err = r.Claim(ctx, db, fresh.ID, later)
	require.NoError(t, err)
	require.True(t, ok)

	lease := 2 * time.Minute
	now := base.Add(3 * time.Minute)
	reclaimed, err := r.ReclaimStale(ctx, db, lease, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reclaimed)

	first, err := r.FindByID(ctx, db, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, first.Status)
	assert.Nil(t, first.LockedAt)

	second, err := r.FindByID(ctx, db, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, second.Status)
}

func TestMarkDoneAndMarkFailed_GuardClosedJobs(t *testing.T) {
	db, node := newRepoDB(t)
	r := Provide()
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	job := seedJob(t, db, node, domain.JobStatusPending, now)

	closed, err := r.MarkDone(ctx, db, job.ID, "ext-1", now)
	require.NoError(t, err)
	assert.True(t, closed)

	closed, err = r.MarkDone(ctx, db, job.ID, "ext-2", now)
	require.NoError(t, err)
	assert.False(t, closed)

	closed, err = r.MarkFailed(ctx, db, job.ID, "late failure", now)
	require.NoError(t, err)
	assert.False(t, closed)

	done, err := r.FindByID(ctx, db, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusDone, done.Status)
	require.NotNil(t, done.ExternalID)
	assert.Equal(t, "ext-1", *done.ExternalID)
}
