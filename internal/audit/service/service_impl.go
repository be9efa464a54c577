package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/postdeskhq/postdesk/internal/audit/domain"
	"github.com/postdeskhq/postdesk/internal/clock"
	"github.com/postdeskhq/postdesk/pkg/db/pagination"
	"github.com/postdeskhq/postdesk/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) AppendTx(ctx context.Context, tx *gorm.DB, entry auditdomain.Entry) error {
	row, err := s.buildRow(ctx, entry)
	if err != nil {
		return err
	}
	if err := s.repo.Insert(ctx, tx, row); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", entry.Action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) Append(ctx context.Context, entry auditdomain.Entry) error {
	return s.AppendTx(ctx, s.db, entry)
}

func (s *Service) buildRow(ctx context.Context, entry auditdomain.Entry) (*auditdomain.AuditLog, error) {
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return nil, auditdomain.ErrInvalidAction
	}
	if entry.TenantID == 0 {
		return nil, auditdomain.ErrInvalidTenant
	}

	entityType := strings.TrimSpace(entry.EntityType)
	if entityType == "" {
		entityType = "unknown"
	}

	payload := map[string]any{}
	for key, value := range entry.Metadata {
		if key == "" {
			continue
		}
		payload[key] = value
	}
	if requestID := correlation.ExtractCorrelationID(ctx); requestID != "" {
		payload["request_id"] = requestID
	}

	row := &auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		TenantID:   entry.TenantID,
		ActorRole:  strings.TrimSpace(entry.ActorRole),
		Action:     action,
		EntityType: entityType,
		Metadata:   datatypes.JSONMap(payload),
		CreatedAt:  s.clock.Now(),
	}
	if entry.ActorID != nil {
		id := entry.ActorID.String()
		row.ActorID = &id
	}
	if entry.EntityID != nil {
		id := entry.EntityID.String()
		row.EntityID = &id
	}
	return row, nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	if req.TenantID == 0 {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTenant
	}
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTimeRange
	}

	var cursor *auditdomain.AuditCursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(decoded.ID)
		if err != nil {
			return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidPageToken
		}
		cursor = &auditdomain.AuditCursor{ID: id, CreatedAt: createdAt}
	}

	limit := req.PageSize
	if limit <= 0 {
		limit = 25
	}

	logs, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		TenantID:   req.TenantID,
		Action:     req.Action,
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
		Cursor:     cursor,
		Limit:      limit,
	})
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	pageInfo, logs := pagination.BuildCursorPageInfo(logs, limit, func(row *auditdomain.AuditLog) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        row.ID.String(),
			CreatedAt: row.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	resp := auditdomain.ListAuditLogResponse{AuditLogs: logs}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	if !resp.HasMore {
		resp.NextPageToken = ""
	}
	return resp, nil
}
