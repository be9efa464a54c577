package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/postdeskhq/postdesk/internal/publish/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertChannel(ctx context.Context, tx *gorm.DB, channel *domain.PostChannel) error {
	return tx.WithContext(ctx).Create(channel).Error
}

func (r *repo) FindChannelByKey(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, key string) (*domain.PostChannel, error) {
	var channel domain.PostChannel
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND idempotency_key = ?", tenantID, key).
		First(&channel).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrChannelNotFound
		}
		return nil, err
	}
	return &channel, nil
}

func (r *repo) FindChannels(ctx context.Context, db *gorm.DB, tenantID, postID snowflake.ID) ([]*domain.PostChannel, error) {
	var channels []*domain.PostChannel
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND post_id = ?", tenantID, postID).
		Order("created_at desc, id desc").
		Find(&channels).Error
	return channels, err
}
