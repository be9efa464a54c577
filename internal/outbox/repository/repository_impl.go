package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/postdeskhq/postdesk/internal/outbox/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertTx(ctx context.Context, tx *gorm.DB, job *domain.Job) error {
	return tx.WithContext(ctx).Create(job).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, jobID snowflake.ID) (*domain.Job, error) {
	var job domain.Job
	err := db.WithContext(ctx).First(&job, "id = ?", jobID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (r *repo) FindOpenByKey(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, key string) (*domain.Job, error) {
	var job domain.Job
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND idempotency_key = ?", tenantID, key).
		Where("status IN (?, ?)", domain.JobStatusPending, domain.JobStatusProcessing).
		Order("created_at").
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (r *repo) FindByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, status domain.JobStatus) ([]*domain.Job, error) {
	stmt := db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if status != "" {
		stmt = stmt.Where("status = ?", status)
	}

	var jobs []*domain.Job
	err := stmt.Order("created_at desc, id desc").Find(&jobs).Error
	return jobs, err
}

func (r *repo) Claim(ctx context.Context, db *gorm.DB, jobID snowflake.ID, now time.Time) (*domain.Job, bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE outbox_jobs
		 SET status = ?, attempts = attempts + 1, locked_at = ?, updated_at = ?
		 WHERE id = ?
		   AND status = ?
		   AND (next_attempt_at IS NULL OR next_attempt_at <= ?)`,
		domain.JobStatusProcessing,
		now,
		now,
		jobID,
		domain.JobStatusPending,
		now,
	)
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, false, nil
	}

	job, err := r.FindByID(ctx, db, jobID)
	if err != nil {
		return nil, false, err
	}
	return job, true, nil
}

func (r *repo) Release(ctx context.Context, db *gorm.DB, jobID snowflake.ID, reason string, nextAttempt *time.Time, failed bool, now time.Time) error {
	status := domain.JobStatusPending
	if failed {
		status = domain.JobStatusFailed
	}
	return db.WithContext(ctx).Exec(
		`UPDATE outbox_jobs
		 SET status = ?, last_error = ?, next_attempt_at = ?, locked_at = NULL, updated_at = ?
		 WHERE id = ? AND status = ?`,
		status,
		reason,
		nextAttempt,
		now,
		jobID,
		domain.JobStatusProcessing,
	).Error
}

func (r *repo) MarkDone(ctx context.Context, tx *gorm.DB, jobID snowflake.ID, externalID string, now time.Time) (bool, error) {
	var external *string
	if externalID != "" {
		external = &externalID
	}
	result := tx.WithContext(ctx).Exec(
		`UPDATE outbox_jobs
		 SET status = ?, external_id = ?, last_error = NULL, locked_at = NULL,
		     processed_at = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		domain.JobStatusDone,
		external,
		now,
		now,
		jobID,
		domain.JobStatusPending,
		domain.JobStatusProcessing,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) MarkFailed(ctx context.Context, tx *gorm.DB, jobID snowflake.ID, reason string, now time.Time) (bool, error) {
	result := tx.WithContext(ctx).Exec(
		`UPDATE outbox_jobs
		 SET status = ?, last_error = ?, locked_at = NULL, processed_at = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		domain.JobStatusFailed,
		reason,
		now,
		now,
		jobID,
		domain.JobStatusPending,
		domain.JobStatusProcessing,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) Requeue(ctx context.Context, db *gorm.DB, tenantID, jobID snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE outbox_jobs
		 SET status = ?, last_error = NULL, next_attempt_at = NULL, attempts = 0,
		     locked_at = NULL, updated_at = ?
		 WHERE id = ? AND tenant_id = ? AND status = ?`,
		domain.JobStatusPending,
		now,
		jobID,
		tenantID,
		domain.JobStatusFailed,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) PendingIDs(ctx context.Context, db *gorm.DB, limit int, now time.Time) ([]snowflake.ID, error) {
	if limit <= 0 {
		limit = 50
	}

	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM outbox_jobs
		 WHERE status = ?
		   AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
		 ORDER BY created_at
		 LIMIT ?`,
		domain.JobStatusPending,
		now,
		limit,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) ReclaimStale(ctx context.Context, db *gorm.DB, lease time.Duration, now time.Time) (int64, error) {
	cutoff := now.Add(-lease)
	result := db.WithContext(ctx).Exec(
		`UPDATE outbox_jobs
		 SET status = ?, locked_at = NULL, updated_at = ?
		 WHERE status = ? AND locked_at IS NOT NULL AND locked_at < ?`,
		domain.JobStatusPending,
		now,
		domain.JobStatusProcessing,
		cutoff,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
