package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/postdeskhq/postdesk/internal/access"
	auditdomain "github.com/postdeskhq/postdesk/internal/audit/domain"
	"github.com/postdeskhq/postdesk/internal/clock"
	"github.com/postdeskhq/postdesk/internal/tenant/domain"
	"github.com/postdeskhq/postdesk/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
	Audit auditdomain.Service
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
	audit auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("tenant.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		audit: p.Audit,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateTenantRequest) (*domain.Tenant, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	now := s.clock.Now()
	tenant := &domain.Tenant{
		ID:        s.genID.Generate(),
		Name:      name,
		Slug:      slug.Make(name),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.repo.FindBySlug(ctx, tx, tenant.Slug); err == nil {
			return domain.ErrSlugTaken
		} else if !errors.Is(err, domain.ErrTenantNotFound) {
			return err
		}
		if err := s.repo.Insert(ctx, tx, tenant); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrSlugTaken
			}
			return err
		}
		return s.audit.AppendTx(ctx, tx, s.auditEntry(tenant.ID, "tenant.create", map[string]any{
			"name": tenant.Name,
			"slug": tenant.Slug,
		}))
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("tenant created",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("slug", tenant.Slug))
	return tenant, nil
}

func (s *Service) GetByID(ctx context.Context, tenantID snowflake.ID) (*domain.Tenant, error) {
	return s.repo.FindByID(ctx, s.db, tenantID)
}

func (s *Service) List(ctx context.Context) ([]*domain.Tenant, error) {
	return s.repo.FindAll(ctx, s.db)
}

func (s *Service) Update(ctx context.Context, tenantID snowflake.ID, req domain.UpdateTenantRequest) (*domain.Tenant, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	var tenant *domain.Tenant
	err := s.db.Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.FindByID(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		found.Name = name
		found.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, found); err != nil {
			return err
		}
		tenant = found
		return s.audit.AppendTx(ctx, tx, s.auditEntry(tenantID, "tenant.update", map[string]any{
			"name": name,
		}))
	})
	if err != nil {
		return nil, err
	}
	return tenant, nil
}

func (s *Service) SetActive(ctx context.Context, tenantID snowflake.ID, active bool) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		tenant, err := s.repo.FindByID(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		if tenant.Active == active {
			return nil
		}
		tenant.Active = active
		tenant.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, tenant); err != nil {
			return err
		}
		action := "tenant.deactivate"
		if active {
			action = "tenant.activate"
		}
		return s.audit.AppendTx(ctx, tx, s.auditEntry(tenantID, action, nil))
	})
}

// Delete removes the tenant and everything scoped to it in one transaction.
// The audit trail goes with it; deletion is the one operation the ledger
// does not outlive.
func (s *Service) Delete(ctx context.Context, tenantID snowflake.ID) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.repo.FindByID(ctx, tx, tenantID); err != nil {
			return err
		}
		return s.repo.DeleteCascade(ctx, tx, tenantID)
	})
}

func (s *Service) AddMember(ctx context.Context, tenantID snowflake.ID, req domain.AddMemberRequest) (*domain.TenantMember, error) {
	if !access.ValidRole(req.Role) {
		return nil, domain.ErrInvalidRole
	}
	userID, err := snowflake.ParseString(strings.TrimSpace(req.UserID))
	if err != nil {
		return nil, domain.ErrMemberNotFound
	}

	member := &domain.TenantMember{
		ID:        s.genID.Generate(),
		TenantID:  tenantID,
		UserID:    userID,
		Role:      req.Role,
		CreatedAt: s.clock.Now(),
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.repo.FindByID(ctx, tx, tenantID); err != nil {
			return err
		}
		if err := s.repo.InsertMember(ctx, tx, member); err != nil {
			return err
		}
		return s.audit.AppendTx(ctx, tx, s.auditEntry(tenantID, "tenant.member_add", map[string]any{
			"user_id": userID.String(),
			"role":    req.Role,
		}))
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}

func (s *Service) RemoveMember(ctx context.Context, tenantID, userID snowflake.ID) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.repo.DeleteMember(ctx, tx, tenantID, userID); err != nil {
			return err
		}
		return s.audit.AppendTx(ctx, tx, s.auditEntry(tenantID, "tenant.member_remove", map[string]any{
			"user_id": userID.String(),
		}))
	})
}

func (s *Service) ListMembers(ctx context.Context, tenantID snowflake.ID) ([]*domain.TenantMember, error) {
	if _, err := s.repo.FindByID(ctx, s.db, tenantID); err != nil {
		return nil, err
	}
	return s.repo.FindMembers(ctx, s.db, tenantID)
}

func (s *Service) ListMemberships(ctx context.Context, userID snowflake.ID) ([]*domain.TenantMember, error) {
	return s.repo.FindMembershipsByUser(ctx, s.db, userID)
}

func (s *Service) auditEntry(tenantID snowflake.ID, action string, metadata map[string]any) auditdomain.Entry {
	id := tenantID
	return auditdomain.Entry{
		TenantID:   tenantID,
		ActorRole:  access.RoleAgencyAdmin,
		Action:     action,
		EntityType: "tenant",
		EntityID:   &id,
		Metadata:   metadata,
	}
}
