package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/postdeskhq/postdesk/internal/access"
	auditdomain "github.com/postdeskhq/postdesk/internal/audit/domain"
	"github.com/postdeskhq/postdesk/internal/clock"
	"github.com/postdeskhq/postdesk/internal/config"
	outboxdomain "github.com/postdeskhq/postdesk/internal/outbox/domain"
	postdomain "github.com/postdeskhq/postdesk/internal/post/domain"
	"github.com/postdeskhq/postdesk/internal/publish/domain"
	"github.com/postdeskhq/postdesk/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// errDuplicateIntent aborts the recording transaction when another request
// committed the same idempotency key first. The caller re-reads the winner.
var errDuplicateIntent = errors.New("duplicate_intent")

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	PostRepo   postdomain.Repository
	PostSvc    postdomain.Service
	Outbox     outboxdomain.Service
	OutboxRepo outboxdomain.Repository
	Dispatcher outboxdomain.Dispatcher
	Access     access.Service
	Audit      auditdomain.Service
	Publishing *config.PublishingConfigHolder
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	postRepo   postdomain.Repository
	postSvc    postdomain.Service
	outbox     outboxdomain.Service
	outboxRepo outboxdomain.Repository
	dispatcher outboxdomain.Dispatcher
	access     access.Service
	audit      auditdomain.Service
	publishing *config.PublishingConfigHolder
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("publish.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		postRepo:   p.PostRepo,
		postSvc:    p.PostSvc,
		outbox:     p.Outbox,
		outboxRepo: p.OutboxRepo,
		dispatcher: p.Dispatcher,
		access:     p.Access,
		audit:      p.Audit,
		publishing: p.Publishing,
	}
}

func (s *Service) RecordPublishIntent(ctx context.Context, principal access.Principal, req domain.PublishIntentRequest) (*domain.Intent, error) {
	if err := s.access.Authorize(ctx, principal, req.TenantID, access.ObjectPost, access.ActionPostPublish); err != nil {
		return nil, err
	}
	if !s.publishing.ProviderEnabled(req.Provider) {
		return nil, domain.ErrProviderDisabled
	}

	key := domain.BuildIdempotencyKey(req.PostID, req.Provider, req.ScheduledAt)

	var intent *domain.Intent
	created := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		post, err := s.postRepo.FindByID(ctx, tx, req.TenantID, req.PostID)
		if err != nil {
			return err
		}
		if post.Status != postdomain.StatusApproved && post.Status != postdomain.StatusScheduled {
			return postdomain.ErrInvalidTransition
		}

		existing, err := s.repo.FindChannelByKey(ctx, tx, req.TenantID, key)
		if err == nil {
			job, err := s.outboxRepo.FindByID(ctx, tx, existing.JobID)
			if err != nil {
				return err
			}
			intent = &domain.Intent{Channel: existing, Job: job}
			return nil
		}
		if !errors.Is(err, domain.ErrChannelNotFound) {
			return err
		}

		job := &outboxdomain.Job{
			TenantID:       req.TenantID,
			Type:           outboxdomain.JobTypePublish,
			IdempotencyKey: key,
			Payload: datatypes.JSONMap{
				outboxdomain.PayloadPostID:         req.PostID.String(),
				outboxdomain.PayloadProvider:       req.Provider,
				outboxdomain.PayloadIdempotencyKey: key,
			},
		}
		if req.ScheduledAt != nil {
			job.Payload[outboxdomain.PayloadScheduledAt] = req.ScheduledAt.UTC().Format("2006-01-02T15:04:05Z07:00")
		}
		if err := s.outbox.EnqueueTx(ctx, tx, job); err != nil {
			return err
		}

		channel := &domain.PostChannel{
			ID:             s.genID.Generate(),
			TenantID:       req.TenantID,
			PostID:         req.PostID,
			Provider:       req.Provider,
			IdempotencyKey: key,
			JobID:          job.ID,
			ScheduledAt:    req.ScheduledAt,
			CreatedAt:      s.clock.Now(),
		}
		job.Payload[outboxdomain.PayloadChannelID] = channel.ID.String()
		if err := s.repo.InsertChannel(ctx, tx, channel); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return errDuplicateIntent
			}
			return err
		}

		if req.ScheduledAt != nil && post.Status == postdomain.StatusApproved {
			if err := s.postSvc.MarkScheduledTx(ctx, tx, req.TenantID, req.PostID); err != nil {
				return err
			}
		}

		if err := s.audit.AppendTx(ctx, tx, s.auditEntry(principal, req.TenantID, req.PostID, access.ActionPostPublish, map[string]any{
			"provider":        req.Provider,
			"idempotency_key": key,
			"job_id":          job.ID.String(),
		})); err != nil {
			return err
		}

		intent = &domain.Intent{Channel: channel, Job: job}
		created = true
		return nil
	})
	if errors.Is(err, errDuplicateIntent) {
		// Another request won the key race. Its transaction committed the
		// channel and job we wanted, so adopt them.
		return s.readIntent(ctx, req.TenantID, key)
	}
	if err != nil {
		return nil, err
	}

	if created {
		s.dispatcher.Dispatch(intent.Job.ID)
		s.log.Info("publish intent recorded",
			zap.String("post_id", req.PostID.String()),
			zap.String("tenant_id", req.TenantID.String()),
			zap.String("provider", req.Provider),
			zap.String("idempotency_key", key))
	}
	return intent, nil
}

func (s *Service) RecordDeleteIntent(ctx context.Context, principal access.Principal, tenantID, postID snowflake.ID, provider string) (*domain.Intent, error) {
	return s.recordOperation(ctx, principal, tenantID, postID, provider,
		outboxdomain.JobTypeDeleteRemote, access.ActionPostDeleteRemote)
}

func (s *Service) RecordSyncIntent(ctx context.Context, principal access.Principal, tenantID, postID snowflake.ID, provider string) (*domain.Intent, error) {
	return s.recordOperation(ctx, principal, tenantID, postID, provider,
		outboxdomain.JobTypeSyncComments, access.ActionPostSyncComments)
}

func (s *Service) ListChannels(ctx context.Context, principal access.Principal, tenantID, postID snowflake.ID) ([]*domain.PostChannel, error) {
	if err := s.access.Authorize(ctx, principal, tenantID, access.ObjectPost, access.ActionPostView); err != nil {
		return nil, err
	}
	if _, err := s.postRepo.FindByID(ctx, s.db, tenantID, postID); err != nil {
		return nil, err
	}
	return s.repo.FindChannels(ctx, s.db, tenantID, postID)
}

// recordOperation enqueues a job against the already-published remote copy
// of a post. No channel row is written; an open job with the same operation
// key is adopted instead of enqueueing a second copy of the work.
func (s *Service) recordOperation(ctx context.Context, principal access.Principal, tenantID, postID snowflake.ID, provider string, jobType outboxdomain.JobType, action string) (*domain.Intent, error) {
	if err := s.access.Authorize(ctx, principal, tenantID, access.ObjectPost, action); err != nil {
		return nil, err
	}
	if !s.publishing.ProviderEnabled(provider) {
		return nil, domain.ErrProviderDisabled
	}

	key := domain.BuildOperationKey(postID, provider, string(jobType))

	var intent *domain.Intent
	created := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		post, err := s.postRepo.FindByID(ctx, tx, tenantID, postID)
		if err != nil {
			return err
		}
		if post.Status != postdomain.StatusPublished && post.Status != postdomain.StatusArchived {
			return postdomain.ErrInvalidTransition
		}

		open, err := s.outboxRepo.FindOpenByKey(ctx, tx, tenantID, key)
		if err == nil {
			intent = &domain.Intent{Job: open}
			return nil
		}
		if !errors.Is(err, outboxdomain.ErrJobNotFound) {
			return err
		}

		job := &outboxdomain.Job{
			TenantID:       tenantID,
			Type:           jobType,
			IdempotencyKey: key,
			Payload: datatypes.JSONMap{
				outboxdomain.PayloadPostID:         postID.String(),
				outboxdomain.PayloadProvider:       provider,
				outboxdomain.PayloadIdempotencyKey: key,
			},
		}
		if err := s.outbox.EnqueueTx(ctx, tx, job); err != nil {
			return err
		}

		if err := s.audit.AppendTx(ctx, tx, s.auditEntry(principal, tenantID, postID, action, map[string]any{
			"provider":        provider,
			"idempotency_key": key,
			"job_id":          job.ID.String(),
		})); err != nil {
			return err
		}

		intent = &domain.Intent{Job: job}
		created = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.dispatcher.Dispatch(intent.Job.ID)
	}
	return intent, nil
}

func (s *Service) readIntent(ctx context.Context, tenantID snowflake.ID, key string) (*domain.Intent, error) {
	channel, err := s.repo.FindChannelByKey(ctx, s.db, tenantID, key)
	if err != nil {
		return nil, err
	}
	job, err := s.outboxRepo.FindByID(ctx, s.db, channel.JobID)
	if err != nil {
		return nil, err
	}
	return &domain.Intent{Channel: channel, Job: job}, nil
}

func (s *Service) auditEntry(principal access.Principal, tenantID, postID snowflake.ID, action string, metadata map[string]any) auditdomain.Entry {
	entry := auditdomain.Entry{
		TenantID:   tenantID,
		ActorRole:  principal.Role,
		Action:     action,
		EntityType: "post",
		EntityID:   &postID,
		Metadata:   metadata,
	}
	if principal.UserID != 0 {
		userID := principal.UserID
		entry.ActorID = &userID
	}
	return entry
}
