package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/postdeskhq/postdesk/internal/post/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, post *domain.Post) error {
	return tx.WithContext(ctx).Create(post).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, tenantID, postID snowflake.ID) (*domain.Post, error) {
	var post domain.Post
	err := db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", postID, tenantID).
		First(&post).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPostNotFound
		}
		return nil, err
	}
	return &post, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Post, error) {
	stmt := db.WithContext(ctx).Where("tenant_id = ?", filter.TenantID)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt, filter.Cursor.CreatedAt, filter.Cursor.ID,
		)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 25
	}

	var posts []*domain.Post
	err := stmt.Order("created_at desc, id desc").Limit(limit + 1).Find(&posts).Error
	return posts, err
}

func (r *repo) UpdateContent(ctx context.Context, db *gorm.DB, post *domain.Post, editable []domain.PostStatus) (bool, error) {
	result := db.WithContext(ctx).Model(&domain.Post{}).
		Where("id = ? AND tenant_id = ? AND status IN ?", post.ID, post.TenantID, editable).
		Updates(map[string]any{
			"title":        post.Title,
			"body":         post.Body,
			"network":      post.Network,
			"scheduled_at": post.ScheduledAt,
			"updated_at":   post.UpdatedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) UpdateStatus(ctx context.Context, tx *gorm.DB, tenantID, postID snowflake.ID, from, to domain.PostStatus, now time.Time) (bool, error) {
	result := tx.WithContext(ctx).Exec(
		`UPDATE posts SET status = ?, updated_at = ? WHERE id = ? AND tenant_id = ? AND status = ?`,
		to, now, postID, tenantID, from,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) InsertComment(ctx context.Context, tx *gorm.DB, comment *domain.Comment) error {
	return tx.WithContext(ctx).Create(comment).Error
}

func (r *repo) FindComments(ctx context.Context, db *gorm.DB, tenantID, postID snowflake.ID) ([]*domain.Comment, error) {
	var comments []*domain.Comment
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND post_id = ?", tenantID, postID).
		Order("created_at asc, id asc").
		Find(&comments).Error
	return comments, err
}
