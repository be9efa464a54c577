package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/postdeskhq/postdesk/pkg/db/pagination"
	"gorm.io/gorm"
)

var (
	ErrInvalidTenant    = errors.New("invalid_tenant")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
	ErrInvalidAction    = errors.New("invalid_action")
)

// Entry is the caller-facing shape of one audit write.
type Entry struct {
	TenantID   snowflake.ID
	ActorRole  string
	ActorID    *snowflake.ID
	Action     string
	EntityType string
	EntityID   *snowflake.ID
	Metadata   map[string]any
}

type ListAuditLogRequest struct {
	pagination.Pagination
	TenantID   snowflake.ID
	Action     string
	EntityType string
	EntityID   string
	StartAt    *time.Time
	EndAt      *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []*AuditLog `json:"audit_logs"`
}

// Service writes and reads the ledger. AppendTx participates in the caller's
// transaction so the audit row commits or rolls back with the business write.
type Service interface {
	AppendTx(ctx context.Context, tx *gorm.DB, entry Entry) error
	Append(ctx context.Context, entry Entry) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

type ListFilter struct {
	TenantID   snowflake.ID
	Action     string
	EntityType string
	EntityID   string
	StartAt    *time.Time
	EndAt      *time.Time
	Cursor     *AuditCursor
	Limit      int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}
