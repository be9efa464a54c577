package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/postdeskhq/postdesk/internal/access"
	outboxdomain "github.com/postdeskhq/postdesk/internal/outbox/domain"
	"gorm.io/gorm"
)

var (
	ErrProviderDisabled = errors.New("provider_disabled")
	ErrChannelNotFound  = errors.New("channel_not_found")
)

type PublishIntentRequest struct {
	TenantID    snowflake.ID
	PostID      snowflake.ID
	Provider    string
	ScheduledAt *time.Time
}

// Intent is the committed pair the recorder hands back: the channel row and
// the outbox job that will carry it to the provider.
type Intent struct {
	Channel *PostChannel
	Job     *outboxdomain.Job
}

// Service records publish intents. Each Record call wraps the channel row,
// the outbox job and the audit row in one transaction, then nudges the
// dispatcher after commit.
type Service interface {
	// RecordPublishIntent is idempotent: repeating the same request returns
	// the already-committed channel and job instead of creating new ones.
	RecordPublishIntent(ctx context.Context, principal access.Principal, req PublishIntentRequest) (*Intent, error)
	// RecordDeleteIntent enqueues removal of the remote copy of a published
	// post.
	RecordDeleteIntent(ctx context.Context, principal access.Principal, tenantID, postID snowflake.ID, provider string) (*Intent, error)
	// RecordSyncIntent enqueues a pull of provider-side comments.
	RecordSyncIntent(ctx context.Context, principal access.Principal, tenantID, postID snowflake.ID, provider string) (*Intent, error)
	ListChannels(ctx context.Context, principal access.Principal, tenantID, postID snowflake.ID) ([]*PostChannel, error)
}

type Repository interface {
	InsertChannel(ctx context.Context, tx *gorm.DB, channel *PostChannel) error
	FindChannelByKey(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, key string) (*PostChannel, error)
	FindChannels(ctx context.Context, db *gorm.DB, tenantID, postID snowflake.ID) ([]*PostChannel, error)
}
