package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/postdeskhq/postdesk/internal/clock"
	inboxdomain "github.com/postdeskhq/postdesk/internal/inbox/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p Params) inboxdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("inbox.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) NotifyTx(ctx context.Context, tx *gorm.DB, n inboxdomain.Notification) error {
	if n.TenantID == 0 {
		return inboxdomain.ErrInvalidTenant
	}
	entityKey := strings.TrimSpace(n.EntityKey)
	if entityKey == "" {
		return inboxdomain.ErrInvalidKey
	}
	if strings.TrimSpace(n.Title) == "" {
		return inboxdomain.ErrInvalidMessage
	}

	now := s.clock.Now()
	item := inboxdomain.InboxItem{
		ID:          s.genID.Generate(),
		TenantID:    n.TenantID,
		Type:        strings.TrimSpace(n.Type),
		EntityKey:   entityKey,
		Title:       strings.TrimSpace(n.Title),
		Description: strings.TrimSpace(n.Description),
		ActionURL:   strings.TrimSpace(n.ActionURL),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// Same logical event: refresh the item and flip it back to unread.
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "entity_key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"type":        item.Type,
			"title":       item.Title,
			"description": item.Description,
			"action_url":  item.ActionURL,
			"read_at":     nil,
			"updated_at":  now,
		}),
	}).Create(&item).Error
}

func (s *Service) List(ctx context.Context, tenantID snowflake.ID, unreadOnly bool) ([]*inboxdomain.InboxItem, error) {
	if tenantID == 0 {
		return nil, inboxdomain.ErrInvalidTenant
	}
	stmt := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("updated_at desc, id desc")
	if unreadOnly {
		stmt = stmt.Where("read_at IS NULL")
	}

	var items []*inboxdomain.InboxItem
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Service) MarkRead(ctx context.Context, tenantID, itemID snowflake.ID) error {
	if tenantID == 0 {
		return inboxdomain.ErrInvalidTenant
	}
	now := s.clock.Now()
	result := s.db.WithContext(ctx).Model(&inboxdomain.InboxItem{}).
		Where("tenant_id = ? AND id = ? AND read_at IS NULL", tenantID, itemID).
		Updates(map[string]any{"read_at": now, "updated_at": now})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return inboxdomain.ErrItemNotFound
	}
	return nil
}
