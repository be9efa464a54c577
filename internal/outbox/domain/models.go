// Package domain contains the transactional outbox types.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type JobType string

const (
	JobTypePublish      JobType = "publish"
	JobTypeDeleteRemote JobType = "delete_remote"
	JobTypeSyncComments JobType = "sync_comments"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusFailed     JobStatus = "failed"
)

// Payload keys every job carries. The idempotency key lets a worker recognize
// an already-completed unit of work after a crash and restart.
const (
	PayloadPostID         = "post_id"
	PayloadChannelID      = "channel_id"
	PayloadProvider       = "provider"
	PayloadIdempotencyKey = "idempotency_key"
	PayloadScheduledAt    = "scheduled_at"
)

// Job is a durable record of work that must eventually happen outside the
// transaction that created it.
type Job struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	Type     JobType      `gorm:"type:text;not null" json:"type"`
	// IdempotencyKey identifies the logical intent the job delivers. Open
	// jobs (pending/processing) are unique per key; recorders adopt an
	// existing open job instead of inserting a second one.
	IdempotencyKey string            `gorm:"type:text;not null;index" json:"idempotency_key"`
	Payload        datatypes.JSONMap `gorm:"type:jsonb;not null" json:"payload"`
	Status         JobStatus         `gorm:"type:text;not null;index" json:"status"`
	Attempts       int               `gorm:"not null;default:0" json:"attempts"`
	LastError      *string           `gorm:"type:text" json:"last_error,omitempty"`
	ExternalID     *string           `gorm:"type:text" json:"external_id,omitempty"`
	LockedAt       *time.Time        `gorm:"" json:"locked_at,omitempty"`
	NextAttemptAt  *time.Time        `gorm:"index" json:"next_attempt_at,omitempty"`
	ProcessedAt    *time.Time        `gorm:"" json:"processed_at,omitempty"`
	CreatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Job) TableName() string { return "outbox_jobs" }

func (t JobType) Valid() bool {
	switch t {
	case JobTypePublish, JobTypeDeleteRemote, JobTypeSyncComments:
		return true
	default:
		return false
	}
}
