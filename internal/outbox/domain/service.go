package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/postdeskhq/postdesk/internal/access"
	"gorm.io/gorm"
)

var (
	ErrJobNotFound     = errors.New("job_not_found")
	ErrInvalidJobType  = errors.New("invalid_job_type")
	ErrInvalidPayload  = errors.New("invalid_job_payload")
	ErrInvalidOutcome  = errors.New("invalid_outcome")
	ErrNotRequeueable  = errors.New("job_not_requeueable")
	ErrAlreadyComplete = errors.New("job_already_complete")
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Dispatcher receives the identity of a committed job. Implementations must
// never block the caller; a dropped nudge is recovered by the sweep.
type Dispatcher interface {
	Dispatch(jobID snowflake.ID)
}

// Sender is the external execution surface. It receives the job identity and
// payload and performs (or forwards) the actual network call.
type Sender interface {
	Send(ctx context.Context, job *Job) error
}

type CompleteRequest struct {
	JobID      snowflake.ID
	Outcome    Outcome
	ExternalID string
	Reason     string
}

// Service owns the outbox job lifecycle after the recorder commits it.
type Service interface {
	// EnqueueTx inserts the job inside the caller's transaction. The job and
	// the business write it represents are never observed inconsistently.
	EnqueueTx(ctx context.Context, tx *gorm.DB, job *Job) error
	GetByID(ctx context.Context, principal access.Principal, tenantID, jobID snowflake.ID) (*Job, error)
	List(ctx context.Context, principal access.Principal, tenantID snowflake.ID, status JobStatus) ([]*Job, error)
	// Requeue returns a failed job to pending for another delivery attempt.
	// The reconciliation sweep picks it up on its next pass.
	Requeue(ctx context.Context, principal access.Principal, tenantID, jobID snowflake.ID) error
	// Complete is the worker callback. On publish success it advances the
	// post to published in the same transaction that closes the job.
	Complete(ctx context.Context, req CompleteRequest) error
}

type Repository interface {
	InsertTx(ctx context.Context, tx *gorm.DB, job *Job) error
	FindByID(ctx context.Context, db *gorm.DB, jobID snowflake.ID) (*Job, error)
	FindByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, status JobStatus) ([]*Job, error)
	// FindOpenByKey returns the pending or processing job carrying the
	// idempotency key, or ErrJobNotFound when none is open.
	FindOpenByKey(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, key string) (*Job, error)

	// Claim moves pending -> processing. Returns false when another worker
	// won the race or the job is no longer pending.
	Claim(ctx context.Context, db *gorm.DB, jobID snowflake.ID, now time.Time) (*Job, bool, error)
	// Release returns a claimed job to pending with backoff, or fails it once
	// the attempt budget is spent.
	Release(ctx context.Context, db *gorm.DB, jobID snowflake.ID, reason string, nextAttempt *time.Time, failed bool, now time.Time) error
	MarkDone(ctx context.Context, tx *gorm.DB, jobID snowflake.ID, externalID string, now time.Time) (bool, error)
	MarkFailed(ctx context.Context, tx *gorm.DB, jobID snowflake.ID, reason string, now time.Time) (bool, error)
	Requeue(ctx context.Context, db *gorm.DB, tenantID, jobID snowflake.ID, now time.Time) (bool, error)

	// PendingIDs lists dispatchable jobs for the reconciliation sweep.
	PendingIDs(ctx context.Context, db *gorm.DB, limit int, now time.Time) ([]snowflake.ID, error)
	// ReclaimStale returns processing jobs whose lease expired to pending.
	ReclaimStale(ctx context.Context, db *gorm.DB, lease time.Duration, now time.Time) (int64, error)
}
