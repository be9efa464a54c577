package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrTenantNotFound = errors.New("tenant_not_found")
	ErrMemberNotFound = errors.New("member_not_found")
	ErrInvalidName    = errors.New("invalid_tenant_name")
	ErrSlugTaken      = errors.New("tenant_slug_taken")
	ErrInvalidRole    = errors.New("invalid_role")
)

type CreateTenantRequest struct {
	Name string `json:"name"`
}

type UpdateTenantRequest struct {
	Name string `json:"name"`
}

type AddMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type Service interface {
	Create(ctx context.Context, req CreateTenantRequest) (*Tenant, error)
	GetByID(ctx context.Context, tenantID snowflake.ID) (*Tenant, error)
	List(ctx context.Context) ([]*Tenant, error)
	Update(ctx context.Context, tenantID snowflake.ID, req UpdateTenantRequest) (*Tenant, error)
	SetActive(ctx context.Context, tenantID snowflake.ID, active bool) error
	Delete(ctx context.Context, tenantID snowflake.ID) error

	AddMember(ctx context.Context, tenantID snowflake.ID, req AddMemberRequest) (*TenantMember, error)
	RemoveMember(ctx context.Context, tenantID, userID snowflake.ID) error
	ListMembers(ctx context.Context, tenantID snowflake.ID) ([]*TenantMember, error)
	ListMemberships(ctx context.Context, userID snowflake.ID) ([]*TenantMember, error)
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*Tenant, error)
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Tenant, error)
	FindAll(ctx context.Context, db *gorm.DB) ([]*Tenant, error)
	Insert(ctx context.Context, db *gorm.DB, tenant *Tenant) error
	Update(ctx context.Context, db *gorm.DB, tenant *Tenant) error
	DeleteCascade(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) error

	InsertMember(ctx context.Context, db *gorm.DB, member *TenantMember) error
	DeleteMember(ctx context.Context, db *gorm.DB, tenantID, userID snowflake.ID) error
	FindMembers(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]*TenantMember, error)
	FindMembershipsByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]*TenantMember, error)
}
