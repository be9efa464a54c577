package dispatcher

import (
	"context"
	"fmt"

	"github.com/postdeskhq/postdesk/internal/outbox/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// LogSender stands in for the external publishing worker. It logs the
// delivery and immediately reports success through the completion callback,
// so the pipeline is exercised end to end without a network provider.
type LogSender struct {
	log *zap.Logger
	svc domain.Service
}

type SenderParams struct {
	fx.In

	Log *zap.Logger
	Svc domain.Service
}

func NewLogSender(p SenderParams) domain.Sender {
	return &LogSender{log: p.Log.Named("outbox.sender"), svc: p.Svc}
}

func (s *LogSender) Send(ctx context.Context, job *domain.Job) error {
	s.log.Info("delivering job",
		zap.String("job_id", job.ID.String()),
		zap.String("tenant_id", job.TenantID.String()),
		zap.String("type", string(job.Type)))

	return s.svc.Complete(ctx, domain.CompleteRequest{
		JobID:      job.ID,
		Outcome:    domain.OutcomeSuccess,
		ExternalID: fmt.Sprintf("local-%s", job.ID),
	})
}
