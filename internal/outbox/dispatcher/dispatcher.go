// Package dispatcher drains committed outbox jobs to the external worker.
// Delivery is at-least-once: a post-commit nudge feeds a worker pool, and a
// periodic sweep re-discovers jobs whose nudge was lost.
package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/postdeskhq/postdesk/internal/clock"
	"github.com/postdeskhq/postdesk/internal/config"
	"github.com/postdeskhq/postdesk/internal/observability/metrics"
	"github.com/postdeskhq/postdesk/internal/outbox/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const sendTimeout = 30 * time.Second

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Clock  clock.Clock
	Repo   domain.Repository
	Sender domain.Sender
	Config *config.PublishingConfigHolder
}

type Dispatcher struct {
	db     *gorm.DB
	log    *zap.Logger
	clock  clock.Clock
	repo   domain.Repository
	sender domain.Sender
	config *config.PublishingConfigHolder

	jobs chan snowflake.ID
	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func New(p Params) *Dispatcher {
	cfg := p.Config.Get().Dispatcher
	return &Dispatcher{
		db:     p.DB,
		log:    p.Log.Named("outbox.dispatcher"),
		clock:  p.Clock,
		repo:   p.Repo,
		sender: p.Sender,
		config: p.Config,
		jobs:   make(chan snowflake.ID, cfg.QueueSize),
		stop:   make(chan struct{}),
	}
}

// Dispatch nudges the pool with a committed job id. It never blocks: when the
// queue is full the nudge is dropped and the sweep recovers the job.
func (d *Dispatcher) Dispatch(jobID snowflake.ID) {
	select {
	case d.jobs <- jobID:
	case <-d.stop:
	default:
		d.log.Warn("dispatch queue full, deferring to sweep", zap.String("job_id", jobID.String()))
	}
}

func (d *Dispatcher) Start() {
	cfg := d.config.Get().Dispatcher
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.wg.Add(1)
	go d.sweepLoop(cfg.SweepInterval)
	d.log.Info("dispatcher started",
		zap.Int("workers", cfg.Workers),
		zap.Duration("sweep_interval", cfg.SweepInterval))
}

func (d *Dispatcher) Stop() {
	d.once.Do(func() { close(d.stop) })
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case jobID := <-d.jobs:
			d.process(jobID)
		case <-d.stop:
			return
		}
	}
}

func (d *Dispatcher) process(jobID snowflake.ID) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	start := d.clock.Now()
	job, claimed, err := d.repo.Claim(ctx, d.db, jobID, start)
	if err != nil {
		d.log.Error("claim failed", zap.String("job_id", jobID.String()), zap.Error(err))
		return
	}
	if !claimed {
		return
	}

	metrics.Pipeline().IncJobDispatched(string(job.Type))
	err = d.sender.Send(ctx, job)
	metrics.Pipeline().ObserveDispatch(d.clock.Now().Sub(start))
	if err == nil {
		// The job stays processing until the worker reports completion.
		return
	}

	cfg := d.config.Get().Dispatcher
	now := d.clock.Now()
	if job.Attempts >= cfg.MaxAttempts {
		d.log.Warn("attempt budget spent, failing job",
			zap.String("job_id", jobID.String()),
			zap.Int("attempts", job.Attempts),
			zap.Error(err))
		if rerr := d.repo.Release(ctx, d.db, jobID, err.Error(), nil, true, now); rerr != nil {
			d.log.Error("release failed", zap.String("job_id", jobID.String()), zap.Error(rerr))
		}
		return
	}

	next := now.Add(cfg.RetryBackoff)
	d.log.Warn("send failed, retrying later",
		zap.String("job_id", jobID.String()),
		zap.Int("attempts", job.Attempts),
		zap.Time("next_attempt_at", next),
		zap.Error(err))
	if rerr := d.repo.Release(ctx, d.db, jobID, err.Error(), &next, false, now); rerr != nil {
		d.log.Error("release failed", zap.String("job_id", jobID.String()), zap.Error(rerr))
	}
}

func (d *Dispatcher) sweepLoop(interval time.Duration) {
	defer d.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.Sweep(context.Background())
		case <-d.stop:
			return
		}
	}
}

// Sweep reclaims expired processing leases and re-enqueues dispatchable
// pending jobs. Exported so tests and operational tooling can force a pass.
func (d *Dispatcher) Sweep(ctx context.Context) {
	cfg := d.config.Get().Dispatcher
	now := d.clock.Now()

	lease := cfg.SweepInterval * 4
	reclaimed, err := d.repo.ReclaimStale(ctx, d.db, lease, now)
	if err != nil {
		d.log.Error("stale reclaim failed", zap.Error(err))
	} else if reclaimed > 0 {
		d.log.Info("reclaimed stale jobs", zap.Int64("count", reclaimed))
	}

	ids, err := d.repo.PendingIDs(ctx, d.db, cfg.SweepBatchSize, now)
	if err != nil {
		d.log.Error("sweep query failed", zap.Error(err))
		return
	}
	for _, id := range ids {
		d.Dispatch(id)
	}
	metrics.Pipeline().SetQueueDepth(len(d.jobs))
}

func Register(lc fx.Lifecycle, d *Dispatcher) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			d.Start()
			return nil
		},
		OnStop: func(context.Context) error {
			d.Stop()
			return nil
		},
	})
}
