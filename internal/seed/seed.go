// Package seed bootstraps the default tenant so a fresh install is usable
// without manual setup.
package seed

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	tenantdomain "github.com/postdeskhq/postdesk/internal/tenant/domain"
	"gorm.io/gorm"
)

const (
	defaultTenantName = "Main"
	defaultTenantSlug = "main"
)

// EnsureDefaultTenant creates the default tenant if no tenant with its slug
// exists yet.
func EnsureDefaultTenant(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}
	return ensure(db, node.Generate())
}

// EnsureDefaultTenantWithID is the deployment-pinned variant: operators who
// reference the default tenant from config get a stable id across installs.
func EnsureDefaultTenantWithID(db *gorm.DB, id snowflake.ID) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if id == 0 {
		return errors.New("seed tenant id is required")
	}
	return ensure(db, id)
}

func ensure(db *gorm.DB, id snowflake.ID) error {
	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing tenantdomain.Tenant
		err := tx.Where("slug = ?", defaultTenantSlug).First(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		tenant := &tenantdomain.Tenant{
			ID:     id,
			Name:   defaultTenantName,
			Slug:   defaultTenantSlug,
			Active: true,
		}
		return tx.Create(tenant).Error
	})
}
