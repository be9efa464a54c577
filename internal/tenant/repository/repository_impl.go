package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/postdeskhq/postdesk/internal/tenant/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := db.WithContext(ctx).First(&tenant, "id = ?", tenantID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTenantNotFound
		}
		return nil, err
	}
	return &tenant, nil
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := db.WithContext(ctx).First(&tenant, "slug = ?", slug).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTenantNotFound
		}
		return nil, err
	}
	return &tenant, nil
}

func (r *repo) FindAll(ctx context.Context, db *gorm.DB) ([]*domain.Tenant, error) {
	var tenants []*domain.Tenant
	err := db.WithContext(ctx).Order("created_at asc").Find(&tenants).Error
	return tenants, err
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tenant *domain.Tenant) error {
	return db.WithContext(ctx).Create(tenant).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, tenant *domain.Tenant) error {
	return db.WithContext(ctx).Save(tenant).Error
}

// DeleteCascade removes the tenant and every row it owns. Callers wrap this in
// a transaction so a partial cascade is never visible.
func (r *repo) DeleteCascade(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) error {
	for _, stmt := range []string{
		`DELETE FROM inbox_items WHERE tenant_id = ?`,
		`DELETE FROM audit_logs WHERE tenant_id = ?`,
		`DELETE FROM outbox_jobs WHERE tenant_id = ?`,
		`DELETE FROM post_channels WHERE post_id IN (SELECT id FROM posts WHERE tenant_id = ?)`,
		`DELETE FROM post_comments WHERE post_id IN (SELECT id FROM posts WHERE tenant_id = ?)`,
		`DELETE FROM posts WHERE tenant_id = ?`,
		`DELETE FROM tenant_members WHERE tenant_id = ?`,
		`DELETE FROM tenants WHERE id = ?`,
	} {
		if err := db.WithContext(ctx).Exec(stmt, tenantID).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) InsertMember(ctx context.Context, db *gorm.DB, member *domain.TenantMember) error {
	return db.WithContext(ctx).Create(member).Error
}

func (r *repo) DeleteMember(ctx context.Context, db *gorm.DB, tenantID, userID snowflake.ID) error {
	result := db.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ?", tenantID, userID).
		Delete(&domain.TenantMember{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}

func (r *repo) FindMembers(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]*domain.TenantMember, error) {
	var members []*domain.TenantMember
	err := db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at asc").
		Find(&members).Error
	return members, err
}

func (r *repo) FindMembershipsByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]*domain.TenantMember, error) {
	var members []*domain.TenantMember
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at asc").
		Find(&members).Error
	return members, err
}
