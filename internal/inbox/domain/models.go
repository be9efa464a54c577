// Package domain contains the notification inbox types.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// InboxItem is one tenant-scoped notification. The (tenant_id, entity_key)
// pair is unique so repeated notifications for the same logical event update
// the existing row instead of duplicating it.
type InboxItem struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID    snowflake.ID `gorm:"not null;index;uniqueIndex:ux_inbox_tenant_entity,priority:1" json:"tenant_id"`
	Type        string       `gorm:"type:text;not null" json:"type"`
	EntityKey   string       `gorm:"type:text;not null;uniqueIndex:ux_inbox_tenant_entity,priority:2" json:"entity_key"`
	Title       string       `gorm:"type:text;not null" json:"title"`
	Description string       `gorm:"type:text" json:"description"`
	ActionURL   string       `gorm:"type:text" json:"action_url"`
	ReadAt      *time.Time   `gorm:"" json:"read_at,omitempty"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (InboxItem) TableName() string { return "inbox_items" }
