// Package domain contains the post lifecycle types and the transition table
// that governs them.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type PostStatus string

const (
	StatusDraft            PostStatus = "draft"
	StatusPendingClient    PostStatus = "pending_client"
	StatusChangesRequested PostStatus = "changes_requested"
	StatusApproved         PostStatus = "approved"
	StatusScheduled        PostStatus = "scheduled"
	StatusPublished        PostStatus = "published"
	StatusArchived         PostStatus = "archived"
)

func (s PostStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPendingClient, StatusChangesRequested,
		StatusApproved, StatusScheduled, StatusPublished, StatusArchived:
		return true
	default:
		return false
	}
}

type Post struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID    snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	Title       string       `gorm:"type:text;not null" json:"title"`
	Body        string       `gorm:"type:text;not null" json:"body"`
	Network     string       `gorm:"type:text" json:"network,omitempty"`
	ScheduledAt *time.Time   `gorm:"" json:"scheduled_at,omitempty"`
	Status      PostStatus   `gorm:"type:text;not null;index" json:"status"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Post) TableName() string { return "posts" }

// Comment is feedback attached to a post, written when a client requests
// changes.
type Comment struct {
	ID         snowflake.ID  `gorm:"primaryKey" json:"id"`
	TenantID   snowflake.ID  `gorm:"not null;index" json:"tenant_id"`
	PostID     snowflake.ID  `gorm:"not null;index" json:"post_id"`
	AuthorRole string        `gorm:"type:text;not null" json:"author_role"`
	AuthorID   *snowflake.ID `gorm:"" json:"author_id,omitempty"`
	Body       string        `gorm:"type:text;not null" json:"body"`
	CreatedAt  time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Comment) TableName() string { return "post_comments" }
