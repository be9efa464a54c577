package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/postdeskhq/postdesk/internal/access"
	auditdomain "github.com/postdeskhq/postdesk/internal/audit/domain"
	"github.com/postdeskhq/postdesk/internal/clock"
	inboxdomain "github.com/postdeskhq/postdesk/internal/inbox/domain"
	"github.com/postdeskhq/postdesk/internal/observability/metrics"
	"github.com/postdeskhq/postdesk/internal/post/domain"
	"github.com/postdeskhq/postdesk/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var editableStatuses = []domain.PostStatus{domain.StatusDraft, domain.StatusChangesRequested}

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   domain.Repository
	Access access.Service
	Audit  auditdomain.Service
	Inbox  inboxdomain.Service
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	repo   domain.Repository
	access access.Service
	audit  auditdomain.Service
	inbox  inboxdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("post.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		repo:   p.Repo,
		access: p.Access,
		audit:  p.Audit,
		inbox:  p.Inbox,
	}
}

func (s *Service) Create(ctx context.Context, principal access.Principal, req domain.CreatePostRequest) (*domain.Post, error) {
	if err := s.access.Authorize(ctx, principal, req.TenantID, access.ObjectPost, access.ActionPostCreate); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, domain.ErrInvalidTitle
	}

	now := s.clock.Now()
	post := &domain.Post{
		ID:          s.genID.Generate(),
		TenantID:    req.TenantID,
		Title:       strings.TrimSpace(req.Title),
		Body:        req.Body,
		Network:     req.Network,
		ScheduledAt: req.ScheduledAt,
		Status:      domain.StatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, post); err != nil {
			return err
		}
		return s.audit.AppendTx(ctx, tx, s.auditEntry(principal, post, access.ActionPostCreate, nil))
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("post created",
		zap.String("post_id", post.ID.String()),
		zap.String("tenant_id", post.TenantID.String()))
	return post, nil
}

func (s *Service) GetByID(ctx context.Context, principal access.Principal, tenantID, postID snowflake.ID) (*domain.Post, error) {
	if err := s.access.Authorize(ctx, principal, tenantID, access.ObjectPost, access.ActionPostView); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, s.db, tenantID, postID)
}

func (s *Service) List(ctx context.Context, principal access.Principal, req domain.ListPostsRequest) (domain.ListPostsResponse, error) {
	if err := s.access.Authorize(ctx, principal, req.TenantID, access.ObjectPost, access.ActionPostView); err != nil {
		return domain.ListPostsResponse{}, err
	}
	if req.Status != "" && !req.Status.Valid() {
		return domain.ListPostsResponse{}, domain.ErrInvalidStatus
	}

	var cursor *pagination.Cursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return domain.ListPostsResponse{}, fmt.Errorf("invalid page token: %w", err)
		}
		cursor = decoded
	}

	limit := req.PageSize
	if limit <= 0 {
		limit = 25
	}

	filter := domain.ListFilter{TenantID: req.TenantID, Status: req.Status, Limit: limit}
	if cursor != nil {
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return domain.ListPostsResponse{}, fmt.Errorf("invalid page token: %w", err)
		}
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return domain.ListPostsResponse{}, fmt.Errorf("invalid page token: %w", err)
		}
		filter.Cursor = &domain.PostCursor{ID: id, CreatedAt: createdAt}
	}

	posts, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListPostsResponse{}, err
	}

	pageInfo, posts := pagination.BuildCursorPageInfo(posts, limit, func(row *domain.Post) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        row.ID.String(),
			CreatedAt: row.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	resp := domain.ListPostsResponse{Posts: posts}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	if !resp.HasMore {
		resp.NextPageToken = ""
	}
	return resp, nil
}

func (s *Service) Update(ctx context.Context, principal access.Principal, req domain.UpdatePostRequest) (*domain.Post, error) {
	if err := s.access.Authorize(ctx, principal, req.TenantID, access.ObjectPost, access.ActionPostUpdate); err != nil {
		return nil, err
	}

	post, err := s.repo.FindByID(ctx, s.db, req.TenantID, req.PostID)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			return nil, domain.ErrInvalidTitle
		}
		post.Title = strings.TrimSpace(*req.Title)
	}
	if req.Body != nil {
		post.Body = *req.Body
	}
	if req.Network != nil {
		post.Network = *req.Network
	}
	if req.ScheduledAt != nil {
		post.ScheduledAt = req.ScheduledAt
	}
	post.UpdatedAt = s.clock.Now()

	err = s.db.Transaction(func(tx *gorm.DB) error {
		updated, err := s.repo.UpdateContent(ctx, tx, post, editableStatuses)
		if err != nil {
			return err
		}
		if !updated {
			return domain.ErrNotEditable
		}
		return s.audit.AppendTx(ctx, tx, s.auditEntry(principal, post, access.ActionPostUpdate, nil))
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

func (s *Service) SendForApproval(ctx context.Context, principal access.Principal, tenantID, postID snowflake.ID) (*domain.Post, error) {
	return s.transition(ctx, principal, tenantID, postID, transitionInput{
		action:       domain.ActionSendForApproval,
		policyAction: access.ActionPostSendForApproval,
		notifyKind:   "post_validation",
		title:        "Post awaiting your approval",
	})
}

func (s *Service) Approve(ctx context.Context, principal access.Principal, tenantID, postID snowflake.ID) (*domain.Post, error) {
	return s.transition(ctx, principal, tenantID, postID, transitionInput{
		action:       domain.ActionApprove,
		policyAction: access.ActionPostApprove,
		notifyKind:   "post_validation",
		title:        "Post approved",
	})
}

func (s *Service) RequestChanges(ctx context.Context, principal access.Principal, tenantID, postID snowflake.ID, comment string) (*domain.Post, error) {
	if strings.TrimSpace(comment) == "" {
		return nil, domain.ErrCommentRequired
	}
	return s.transition(ctx, principal, tenantID, postID, transitionInput{
		action:       domain.ActionRequestChanges,
		policyAction: access.ActionPostRequestChanges,
		notifyKind:   "post_thread",
		title:        "Changes requested",
		comment:      strings.TrimSpace(comment),
	})
}

func (s *Service) Archive(ctx context.Context, principal access.Principal, tenantID, postID snowflake.ID) (*domain.Post, error) {
	return s.transition(ctx, principal, tenantID, postID, transitionInput{
		action:       domain.ActionArchive,
		policyAction: access.ActionPostArchive,
		notifyKind:   "post_validation",
		title:        "Post archived",
	})
}

func (s *Service) ListComments(ctx context.Context, principal access.Principal, tenantID, postID snowflake.ID) ([]*domain.Comment, error) {
	if err := s.access.Authorize(ctx, principal, tenantID, access.ObjectPost, access.ActionPostView); err != nil {
		return nil, err
	}
	if _, err := s.repo.FindByID(ctx, s.db, tenantID, postID); err != nil {
		return nil, err
	}
	return s.repo.FindComments(ctx, s.db, tenantID, postID)
}

// MarkScheduledTx and MarkPublishedTx run inside a caller-owned transaction
// with the system actor, so they skip membership checks.

func (s *Service) MarkScheduledTx(ctx context.Context, tx *gorm.DB, tenantID, postID snowflake.ID) error {
	return s.applyTx(ctx, tx, tenantID, postID, domain.ActionSchedule, access.RoleAgency, access.ActionPostPublish, nil)
}

func (s *Service) MarkPublishedTx(ctx context.Context, tx *gorm.DB, tenantID, postID snowflake.ID) error {
	return s.applyTx(ctx, tx, tenantID, postID, domain.ActionPublish, access.ActorSystem, access.ActionPostPublish, nil)
}

type transitionInput struct {
	action       domain.TransitionAction
	policyAction string
	notifyKind   string
	title        string
	comment      string
}

func (s *Service) transition(ctx context.Context, principal access.Principal, tenantID, postID snowflake.ID, in transitionInput) (*domain.Post, error) {
	if err := s.access.Authorize(ctx, principal, tenantID, access.ObjectPost, in.policyAction); err != nil {
		return nil, err
	}

	post, err := s.repo.FindByID(ctx, s.db, tenantID, postID)
	if err != nil {
		return nil, err
	}

	to, ok := domain.ResolveTransition(in.action, post.Status, principal.Role)
	if !ok {
		return nil, domain.ErrInvalidTransition
	}
	from := post.Status
	now := s.clock.Now()

	err = s.db.Transaction(func(tx *gorm.DB) error {
		moved, err := s.repo.UpdateStatus(ctx, tx, tenantID, postID, from, to, now)
		if err != nil {
			return err
		}
		if !moved {
			return domain.ErrInvalidTransition
		}

		if in.comment != "" {
			comment := &domain.Comment{
				ID:         s.genID.Generate(),
				TenantID:   tenantID,
				PostID:     postID,
				AuthorRole: principal.Role,
				Body:       in.comment,
				CreatedAt:  now,
			}
			if principal.UserID != 0 {
				userID := principal.UserID
				comment.AuthorID = &userID
			}
			if err := s.repo.InsertComment(ctx, tx, comment); err != nil {
				return err
			}
		}

		entry := s.auditEntry(principal, post, in.policyAction, map[string]any{
			"from": string(from),
			"to":   string(to),
		})
		if err := s.audit.AppendTx(ctx, tx, entry); err != nil {
			return err
		}

		return s.inbox.NotifyTx(ctx, tx, inboxdomain.Notification{
			TenantID:    tenantID,
			Type:        in.policyAction,
			EntityKey:   fmt.Sprintf("%s:%s:%s", in.notifyKind, tenantID, postID),
			Title:       in.title,
			Description: fmt.Sprintf("%q moved from %s to %s", post.Title, from, to),
			ActionURL:   fmt.Sprintf("/tenants/%s/posts/%s", tenantID, postID),
		})
	})
	if err != nil {
		return nil, err
	}

	post.Status = to
	post.UpdatedAt = now
	metrics.Pipeline().IncPostTransition(string(from), string(to))
	s.log.Info("post transitioned",
		zap.String("post_id", postID.String()),
		zap.String("tenant_id", tenantID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	return post, nil
}

// applyTx runs a role-fixed transition inside the caller's transaction. Used
// by the publish recorder (schedule) and the job completion callback
// (publish); both already hold the surrounding transaction.
func (s *Service) applyTx(ctx context.Context, tx *gorm.DB, tenantID, postID snowflake.ID, action domain.TransitionAction, role, auditAction string, metadata map[string]any) error {
	post, err := s.repo.FindByID(ctx, tx, tenantID, postID)
	if err != nil {
		return err
	}

	to, ok := domain.ResolveTransition(action, post.Status, role)
	if !ok {
		return domain.ErrInvalidTransition
	}
	now := s.clock.Now()

	moved, err := s.repo.UpdateStatus(ctx, tx, tenantID, postID, post.Status, to, now)
	if err != nil {
		return err
	}
	if !moved {
		return domain.ErrInvalidTransition
	}

	meta := map[string]any{"from": string(post.Status), "to": string(to)}
	for k, v := range metadata {
		meta[k] = v
	}
	entry := auditdomain.Entry{
		TenantID:   tenantID,
		ActorRole:  role,
		Action:     auditAction,
		EntityType: "post",
		EntityID:   &postID,
		Metadata:   meta,
	}
	if err := s.audit.AppendTx(ctx, tx, entry); err != nil {
		return err
	}

	metrics.Pipeline().IncPostTransition(string(post.Status), string(to))
	return s.inbox.NotifyTx(ctx, tx, inboxdomain.Notification{
		TenantID:    tenantID,
		Type:        auditAction,
		EntityKey:   fmt.Sprintf("post_validation:%s:%s", tenantID, postID),
		Title:       fmt.Sprintf("Post %s", to),
		Description: fmt.Sprintf("%q moved from %s to %s", post.Title, post.Status, to),
		ActionURL:   fmt.Sprintf("/tenants/%s/posts/%s", tenantID, postID),
	})
}

func (s *Service) auditEntry(principal access.Principal, post *domain.Post, action string, metadata map[string]any) auditdomain.Entry {
	entry := auditdomain.Entry{
		TenantID:   post.TenantID,
		ActorRole:  principal.Role,
		Action:     action,
		EntityType: "post",
		Metadata:   metadata,
	}
	postID := post.ID
	entry.EntityID = &postID
	if principal.UserID != 0 {
		userID := principal.UserID
		entry.ActorID = &userID
	}
	return entry
}
