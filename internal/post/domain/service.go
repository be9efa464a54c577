package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/postdeskhq/postdesk/internal/access"
	"github.com/postdeskhq/postdesk/pkg/db/pagination"
	"gorm.io/gorm"
)

var (
	ErrPostNotFound      = errors.New("post_not_found")
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrCommentRequired   = errors.New("comment_required")
	ErrInvalidTitle      = errors.New("invalid_title")
	ErrInvalidStatus     = errors.New("invalid_status")
	ErrNotEditable       = errors.New("post_not_editable")
)

type CreatePostRequest struct {
	TenantID    snowflake.ID
	Title       string
	Body        string
	Network     string
	ScheduledAt *time.Time
}

type UpdatePostRequest struct {
	TenantID    snowflake.ID
	PostID      snowflake.ID
	Title       *string
	Body        *string
	Network     *string
	ScheduledAt *time.Time
}

type ListPostsRequest struct {
	pagination.Pagination
	TenantID snowflake.ID
	Status   PostStatus
}

type ListPostsResponse struct {
	pagination.PageInfo
	Posts []*Post `json:"posts"`
}

// Service is the post lifecycle. Every transition is one transaction holding
// the status-guarded update, its audit row and its inbox notification.
type Service interface {
	Create(ctx context.Context, principal access.Principal, req CreatePostRequest) (*Post, error)
	GetByID(ctx context.Context, principal access.Principal, tenantID, postID snowflake.ID) (*Post, error)
	List(ctx context.Context, principal access.Principal, req ListPostsRequest) (ListPostsResponse, error)
	// Update edits content while the post is in draft or changes_requested.
	Update(ctx context.Context, principal access.Principal, req UpdatePostRequest) (*Post, error)
	SendForApproval(ctx context.Context, principal access.Principal, tenantID, postID snowflake.ID) (*Post, error)
	Approve(ctx context.Context, principal access.Principal, tenantID, postID snowflake.ID) (*Post, error)
	RequestChanges(ctx context.Context, principal access.Principal, tenantID, postID snowflake.ID, comment string) (*Post, error)
	Archive(ctx context.Context, principal access.Principal, tenantID, postID snowflake.ID) (*Post, error)
	ListComments(ctx context.Context, principal access.Principal, tenantID, postID snowflake.ID) ([]*Comment, error)
	// MarkScheduledTx moves approved -> scheduled inside the recorder's
	// transaction when a publish intent carries a future schedule.
	MarkScheduledTx(ctx context.Context, tx *gorm.DB, tenantID, postID snowflake.ID) error
	// MarkPublishedTx is the system-actor transition run by the job
	// completion callback, inside the transaction that closes the job.
	MarkPublishedTx(ctx context.Context, tx *gorm.DB, tenantID, postID snowflake.ID) error
}

type PostCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	TenantID snowflake.ID
	Status   PostStatus
	Cursor   *PostCursor
	Limit    int
}

type Repository interface {
	Insert(ctx context.Context, tx *gorm.DB, post *Post) error
	FindByID(ctx context.Context, db *gorm.DB, tenantID, postID snowflake.ID) (*Post, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Post, error)
	// UpdateContent writes editable fields guarded on the editable statuses.
	// Returns false when the post was not in an editable state.
	UpdateContent(ctx context.Context, db *gorm.DB, post *Post, editable []PostStatus) (bool, error)
	// UpdateStatus is guarded on the expected current status. Zero rows
	// affected means a concurrent writer advanced the post first.
	UpdateStatus(ctx context.Context, tx *gorm.DB, tenantID, postID snowflake.ID, from, to PostStatus, now time.Time) (bool, error)
	InsertComment(ctx context.Context, tx *gorm.DB, comment *Comment) error
	FindComments(ctx context.Context, db *gorm.DB, tenantID, postID snowflake.ID) ([]*Comment, error)
}
