package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/postdeskhq/postdesk/internal/access"
	auditdomain "github.com/postdeskhq/postdesk/internal/audit/domain"
	"github.com/postdeskhq/postdesk/internal/clock"
	"github.com/postdeskhq/postdesk/internal/observability/metrics"
	"github.com/postdeskhq/postdesk/internal/outbox/domain"
	postdomain "github.com/postdeskhq/postdesk/internal/post/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   domain.Repository
	Access access.Service
	Post   postdomain.Service
	Audit  auditdomain.Service
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	repo   domain.Repository
	access access.Service
	post   postdomain.Service
	audit  auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("outbox.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		repo:   p.Repo,
		access: p.Access,
		post:   p.Post,
		audit:  p.Audit,
	}
}

func (s *Service) EnqueueTx(ctx context.Context, tx *gorm.DB, job *domain.Job) error {
	if !job.Type.Valid() {
		return domain.ErrInvalidJobType
	}
	if job.ID == 0 {
		job.ID = s.genID.Generate()
	}
	now := s.clock.Now()
	job.Status = domain.JobStatusPending
	job.Attempts = 0
	job.CreatedAt = now
	job.UpdatedAt = now

	if err := s.repo.InsertTx(ctx, tx, job); err != nil {
		return err
	}
	metrics.Pipeline().IncJobEnqueued(string(job.Type))
	return nil
}

func (s *Service) GetByID(ctx context.Context, principal access.Principal, tenantID, jobID snowflake.ID) (*domain.Job, error) {
	if err := s.access.Authorize(ctx, principal, tenantID, access.ObjectJob, access.ActionJobView); err != nil {
		return nil, err
	}
	job, err := s.repo.FindByID(ctx, s.db, jobID)
	if err != nil {
		return nil, err
	}
	if job.TenantID != tenantID {
		return nil, domain.ErrJobNotFound
	}
	return job, nil
}

func (s *Service) List(ctx context.Context, principal access.Principal, tenantID snowflake.ID, status domain.JobStatus) ([]*domain.Job, error) {
	if err := s.access.Authorize(ctx, principal, tenantID, access.ObjectJob, access.ActionJobView); err != nil {
		return nil, err
	}
	return s.repo.FindByTenant(ctx, s.db, tenantID, status)
}

func (s *Service) Requeue(ctx context.Context, principal access.Principal, tenantID, jobID snowflake.ID) error {
	if err := s.access.Authorize(ctx, principal, tenantID, access.ObjectJob, access.ActionJobRequeue); err != nil {
		return err
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		requeued, err := s.repo.Requeue(ctx, tx, tenantID, jobID, s.clock.Now())
		if err != nil {
			return err
		}
		if !requeued {
			job, err := s.repo.FindByID(ctx, tx, jobID)
			if err != nil {
				return err
			}
			if job.TenantID != tenantID {
				return domain.ErrJobNotFound
			}
			return domain.ErrNotRequeueable
		}

		entry := auditdomain.Entry{
			TenantID:   tenantID,
			ActorRole:  principal.Role,
			Action:     access.ActionJobRequeue,
			EntityType: "outbox_job",
			EntityID:   &jobID,
		}
		if principal.UserID != 0 {
			userID := principal.UserID
			entry.ActorID = &userID
		}
		return s.audit.AppendTx(ctx, tx, entry)
	})
	if err != nil {
		return err
	}

	metrics.Pipeline().IncJobRequeued()
	s.log.Info("job requeued",
		zap.String("job_id", jobID.String()),
		zap.String("tenant_id", tenantID.String()))
	return nil
}

func (s *Service) Complete(ctx context.Context, req domain.CompleteRequest) error {
	if req.Outcome != domain.OutcomeSuccess && req.Outcome != domain.OutcomeFailure {
		return domain.ErrInvalidOutcome
	}

	job, err := s.repo.FindByID(ctx, s.db, req.JobID)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if req.Outcome == domain.OutcomeFailure {
			closed, err := s.repo.MarkFailed(ctx, tx, req.JobID, req.Reason, now)
			if err != nil {
				return err
			}
			if !closed {
				return domain.ErrAlreadyComplete
			}
			return nil
		}

		closed, err := s.repo.MarkDone(ctx, tx, req.JobID, req.ExternalID, now)
		if err != nil {
			return err
		}
		if !closed {
			return domain.ErrAlreadyComplete
		}

		if job.Type == domain.JobTypePublish {
			postID, err := payloadID(job, domain.PayloadPostID)
			if err != nil {
				return err
			}
			return s.post.MarkPublishedTx(ctx, tx, job.TenantID, postID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.Pipeline().IncJobCompleted(string(job.Type), string(req.Outcome))
	s.log.Info("job completed",
		zap.String("job_id", req.JobID.String()),
		zap.String("type", string(job.Type)),
		zap.String("outcome", string(req.Outcome)))
	return nil
}

func payloadID(job *domain.Job, key string) (snowflake.ID, error) {
	raw, ok := job.Payload[key].(string)
	if !ok {
		return 0, domain.ErrInvalidPayload
	}
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return 0, domain.ErrInvalidPayload
	}
	return id, nil
}
