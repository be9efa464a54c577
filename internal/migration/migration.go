// Package migration creates the schema on startup so the server is usable
// out of the box for local and self-hosted environments.
package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/postdeskhq/postdesk/internal/audit/domain"
	inboxdomain "github.com/postdeskhq/postdesk/internal/inbox/domain"
	outboxdomain "github.com/postdeskhq/postdesk/internal/outbox/domain"
	postdomain "github.com/postdeskhq/postdesk/internal/post/domain"
	publishdomain "github.com/postdeskhq/postdesk/internal/publish/domain"
	tenantdomain "github.com/postdeskhq/postdesk/internal/tenant/domain"
	"gorm.io/gorm"
)

// RunMigrations applies the embedded SQL migrations against Postgres.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// AutoMigrate is the non-Postgres path (sqlite, mysql): derive the schema
// from the models instead of the versioned SQL.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}
	return db.AutoMigrate(
		&tenantdomain.Tenant{},
		&tenantdomain.TenantMember{},
		&postdomain.Post{},
		&postdomain.Comment{},
		&publishdomain.PostChannel{},
		&outboxdomain.Job{},
		&auditdomain.AuditLog{},
		&inboxdomain.InboxItem{},
	)
}
