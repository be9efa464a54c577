// Package domain contains the publish intent types and the deterministic
// idempotency key derivation.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// PostChannel links a post to one external publishing target. One row per
// logical publish intent; the idempotency key is unique so a retried request
// lands on the existing row instead of creating a second intent.
type PostChannel struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID       snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	PostID         snowflake.ID `gorm:"not null;index" json:"post_id"`
	Provider       string       `gorm:"type:text;not null" json:"provider"`
	IdempotencyKey string       `gorm:"type:text;not null;uniqueIndex:ux_post_channel_key" json:"idempotency_key"`
	JobID          snowflake.ID `gorm:"not null" json:"job_id"`
	ScheduledAt    *time.Time   `gorm:"" json:"scheduled_at,omitempty"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (PostChannel) TableName() string { return "post_channels" }
