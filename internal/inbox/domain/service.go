package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrItemNotFound   = errors.New("inbox_item_not_found")
	ErrInvalidKey     = errors.New("invalid_entity_key")
	ErrInvalidTenant  = errors.New("invalid_tenant")
	ErrInvalidMessage = errors.New("invalid_message")
)

// Notification is the collaborator-facing payload of one notify call.
type Notification struct {
	TenantID    snowflake.ID
	Type        string
	EntityKey   string
	Title       string
	Description string
	ActionURL   string
}

// Service delivers deduplicated notifications. NotifyTx runs inside the
// caller's transaction so the item commits with the transition it describes.
type Service interface {
	NotifyTx(ctx context.Context, tx *gorm.DB, n Notification) error
	List(ctx context.Context, tenantID snowflake.ID, unreadOnly bool) ([]*InboxItem, error)
	MarkRead(ctx context.Context, tenantID, itemID snowflake.ID) error
}
