// Package domain contains persistence models for tenants ("spaces").
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Tenant is the isolation boundary every business entity belongs to.
type Tenant struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Slug      string       `gorm:"type:text;not null;uniqueIndex:ux_tenants_slug" json:"slug"`
	// No default tag: gorm drops zero-value fields that carry one on
	// insert, which would turn Active=false into true. Callers set it.
	Active    bool         `gorm:"not null" json:"active"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Tenant) TableName() string { return "tenants" }

// TenantMember represents membership of a user in a tenant.
type TenantMember struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_tenant_user,priority:1" json:"tenant_id"`
	UserID   snowflake.ID `gorm:"not null;index;uniqueIndex:ux_tenant_user,priority:2" json:"user_id"`
	Role     string       `gorm:"type:text;not null" json:"role"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (TenantMember) TableName() string { return "tenant_members" }
